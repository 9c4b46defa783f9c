// Package types defines the Trellis object model: the four-kind
// hierarchy (project, epic, feature, task), per-kind status sets, and
// header validation.
package types

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/trellis-dev/trellis/internal/errs"
)

// SchemaVersion is the current on-disk schema literal. Behaviors gated
// on it (standalone-task security checks) compare lexically, which is
// safe for "1.0"/"1.1".
const SchemaVersion = "1.1"

// Kind tags an object in the hierarchy.
type Kind string

// Object kinds.
const (
	KindProject Kind = "project"
	KindEpic    Kind = "epic"
	KindFeature Kind = "feature"
	KindTask    Kind = "task"
)

// AllKinds in hierarchy order.
var AllKinds = []Kind{KindProject, KindEpic, KindFeature, KindTask}

// IsValid checks if the kind value is valid.
func (k Kind) IsValid() bool {
	switch k {
	case KindProject, KindEpic, KindFeature, KindTask:
		return true
	}
	return false
}

// ParentKind returns the required parent kind, or "" for project
// (which must have none) and task (whose feature parent is optional).
func (k Kind) ParentKind() Kind {
	switch k {
	case KindEpic:
		return KindProject
	case KindFeature:
		return KindEpic
	case KindTask:
		return KindFeature
	}
	return ""
}

// IsContainer reports whether the kind holds children (everything but
// task).
func (k Kind) IsContainer() bool { return k != KindTask }

// Status represents an object's lifecycle state.
type Status string

// Statuses. Containers use draft/in-progress/done; tasks use
// open/in-progress/review/done. StatusDeleted is a write-only sentinel
// that triggers cascade delete and never appears on disk.
const (
	StatusDraft      Status = "draft"
	StatusOpen       Status = "open"
	StatusInProgress Status = "in-progress"
	StatusReview     Status = "review"
	StatusDone       Status = "done"
	StatusDeleted    Status = "deleted"
)

var containerStatuses = []Status{StatusDraft, StatusInProgress, StatusDone}
var taskStatuses = []Status{StatusOpen, StatusInProgress, StatusReview, StatusDone}

// StatusesFor returns the allowed status set for a kind.
func StatusesFor(k Kind) []Status {
	if k == KindTask {
		return taskStatuses
	}
	return containerStatuses
}

// ValidFor checks per-kind status membership.
func (s Status) ValidFor(k Kind) bool {
	for _, v := range StatusesFor(k) {
		if s == v {
			return true
		}
	}
	return false
}

// DefaultStatus returns the initial status for a freshly created object.
func DefaultStatus(k Kind) Status {
	if k == KindTask {
		return StatusOpen
	}
	return StatusDraft
}

// Priority orders tasks in the scheduler.
type Priority string

// Priorities. "medium" is accepted on input and canonicalized to
// normal; it never persists.
const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// CanonicalPriority maps raw input to a valid priority, applying the
// default and the medium→normal aliasing.
func CanonicalPriority(raw string) (Priority, error) {
	switch raw {
	case "", string(PriorityNormal), "medium":
		return PriorityNormal, nil
	case string(PriorityHigh):
		return PriorityHigh, nil
	case string(PriorityLow):
		return PriorityLow, nil
	}
	return "", errs.New(errs.CodeInvalidField,
		"Invalid priority '%s'. Must be one of: high, normal, low", raw)
}

// Rank returns the scheduler sort rank: 1 for high, 2 for normal,
// 3 for low.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 1
	case PriorityLow:
		return 3
	}
	return 2
}

// TimestampLayout is the microsecond ISO-8601 form used in headers.
const TimestampLayout = "2006-01-02T15:04:05.000000"

// Object is the common header of every stored Trellis object plus its
// Markdown body. The ID field holds the clean (unprefixed) form; the
// codec adds the prefix when writing.
type Object struct {
	Kind          Kind
	ID            string
	Parent        string // clean ID of the parent, "" when absent
	Status        Status
	Title         string
	Priority      Priority
	Prerequisites []string // as written, prefix optional
	Worktree      string   // "" when absent
	Created       time.Time
	Updated       time.Time
	SchemaVersion string

	// Extra holds unrecognized header keys in insertion order so
	// updates round-trip them untouched.
	Extra []ExtraField

	// KeyOrder records the header keys as read from disk so a rewrite
	// preserves their order. Empty for freshly created objects, which
	// use the canonical order.
	KeyOrder []string

	Body string
}

// ExtraField is an unrecognized header key preserved verbatim.
type ExtraField struct {
	Key   string
	Value any
}

// IsStandaloneTask reports whether the object is a task with no parent.
func (o *Object) IsStandaloneTask() bool {
	return o.Kind == KindTask && o.Parent == ""
}

// Validate checks the whole header and accumulates every violation so
// one response can report them all.
func (o *Object) Validate() error {
	var list errs.List

	if !o.Kind.IsValid() {
		kinds := make([]string, len(AllKinds))
		for i, k := range AllKinds {
			kinds[i] = string(k)
		}
		list.Addf(errs.CodeInvalidField,
			"Invalid kind '%s'. Must be one of: [%s]", o.Kind, strings.Join(kinds, ", "))
		return list.Err()
	}

	if missing := o.missingRequired(); len(missing) > 0 {
		sort.Strings(missing)
		list.Addf(errs.CodeMissingRequiredField,
			"Missing required fields: %s", strings.Join(missing, ", "))
	}

	if o.Status != "" && !o.Status.ValidFor(o.Kind) {
		allowed := StatusesFor(o.Kind)
		names := make([]string, len(allowed))
		for i, s := range allowed {
			names[i] = string(s)
		}
		list.Addf(errs.CodeInvalidField,
			"Invalid status '%s' for %s. Must be one of: %s", o.Status, o.Kind, strings.Join(names, ", "))
	}

	if o.Priority != "" {
		if _, err := CanonicalPriority(string(o.Priority)); err != nil {
			list.Add(err)
		}
	}

	list.Add(o.validateParentRule())

	if err := list.Err(); err != nil {
		return fmt.Errorf("validation failed for %s: %w", o.describe(), err)
	}
	return nil
}

func (o *Object) missingRequired() []string {
	var missing []string
	if o.ID == "" {
		missing = append(missing, "id")
	}
	if o.Title == "" {
		missing = append(missing, "title")
	}
	if o.Status == "" {
		missing = append(missing, "status")
	}
	return missing
}

func (o *Object) validateParentRule() error {
	switch o.Kind {
	case KindProject:
		if o.Parent != "" {
			return errs.New(errs.CodeParentInvalid,
				"project must not have a parent").WithObject(o.ID, string(o.Kind))
		}
	case KindEpic, KindFeature:
		if o.Parent == "" {
			return errs.New(errs.CodeParentInvalid,
				"%s requires a %s parent", o.Kind, o.Kind.ParentKind()).WithObject(o.ID, string(o.Kind))
		}
	case KindTask:
		// Parent optional: absent means standalone.
	}
	return nil
}

func (o *Object) describe() string {
	if o.ID == "" {
		return string(o.Kind)
	}
	return fmt.Sprintf("%s %s", o.Kind, o.ID)
}

// SetDefaults fills status, priority, prerequisites and schema_version
// for a new object. Call before Validate on the create path.
func (o *Object) SetDefaults() {
	if o.Status == "" {
		o.Status = DefaultStatus(o.Kind)
	}
	if o.Priority == "" {
		o.Priority = PriorityNormal
	}
	if o.Prerequisites == nil {
		o.Prerequisites = []string{}
	}
	if o.SchemaVersion == "" {
		o.SchemaVersion = SchemaVersion
	}
}

// Touch refreshes Updated, keeping it monotonically non-decreasing
// even under clock adjustment.
func (o *Object) Touch(now time.Time) {
	if now.After(o.Updated) {
		o.Updated = now
	}
}

// ChildSummary is one entry of an immediate-children listing.
type ChildSummary struct {
	ID       string    `json:"id" yaml:"id"`
	Title    string    `json:"title" yaml:"title"`
	Status   Status    `json:"status" yaml:"status"`
	Kind     Kind      `json:"kind" yaml:"kind"`
	Created  time.Time `json:"created" yaml:"created"`
	FilePath string    `json:"file_path,omitempty" yaml:"file_path,omitempty"`
}
