package types

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trellis-dev/trellis/internal/errs"
)

func validTask() *Object {
	now := time.Now()
	return &Object{
		Kind:          KindTask,
		ID:            "auth",
		Status:        StatusOpen,
		Title:         "Add auth",
		Priority:      PriorityNormal,
		Prerequisites: []string{},
		Created:       now,
		Updated:       now,
		SchemaVersion: SchemaVersion,
	}
}

func TestValidateAccumulatesAllViolations(t *testing.T) {
	obj := &Object{Kind: KindTask, Status: Status("bogus")}
	err := obj.Validate()
	require.Error(t, err)

	assert.True(t, errs.HasCode(err, errs.CodeMissingRequiredField))
	assert.True(t, errs.HasCode(err, errs.CodeInvalidField))
	assert.Contains(t, err.Error(), "Missing required fields: id, title")
	assert.Contains(t, err.Error(), "Invalid status 'bogus' for task. Must be one of: open, in-progress, review, done")
}

func TestValidateInvalidKindShortCircuits(t *testing.T) {
	obj := &Object{Kind: Kind("widget")}
	err := obj.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid kind 'widget'. Must be one of: [project, epic, feature, task]")
	// Field checks are pointless on an unknown kind; only one violation
	// is reported.
	assert.NotContains(t, err.Error(), "Missing required fields")
}

func TestValidateParentRules(t *testing.T) {
	tests := []struct {
		name    string
		kind    Kind
		parent  string
		wantErr bool
	}{
		{name: "project with parent", kind: KindProject, parent: "other", wantErr: true},
		{name: "project without parent", kind: KindProject, parent: ""},
		{name: "epic without parent", kind: KindEpic, parent: "", wantErr: true},
		{name: "epic with parent", kind: KindEpic, parent: "site"},
		{name: "feature without parent", kind: KindFeature, parent: "", wantErr: true},
		{name: "standalone task", kind: KindTask, parent: ""},
		{name: "hierarchical task", kind: KindTask, parent: "login"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj := validTask()
			obj.Kind = tt.kind
			obj.Parent = tt.parent
			obj.Status = DefaultStatus(tt.kind)
			err := obj.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errs.HasCode(err, errs.CodeParentInvalid))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStatusSetsPerKind(t *testing.T) {
	assert.True(t, StatusDraft.ValidFor(KindProject))
	assert.False(t, StatusDraft.ValidFor(KindTask))
	assert.True(t, StatusOpen.ValidFor(KindTask))
	assert.False(t, StatusOpen.ValidFor(KindEpic))
	assert.True(t, StatusReview.ValidFor(KindTask))
	assert.False(t, StatusReview.ValidFor(KindFeature))
	// The delete sentinel is never a stored status.
	assert.False(t, StatusDeleted.ValidFor(KindTask))
	assert.False(t, StatusDeleted.ValidFor(KindProject))
}

func TestCanonicalPriority(t *testing.T) {
	for raw, want := range map[string]Priority{
		"":       PriorityNormal,
		"normal": PriorityNormal,
		"medium": PriorityNormal,
		"high":   PriorityHigh,
		"low":    PriorityLow,
	} {
		got, err := CanonicalPriority(raw)
		require.NoError(t, err, "raw=%q", raw)
		assert.Equal(t, want, got, "raw=%q", raw)
	}
	_, err := CanonicalPriority("urgent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid priority 'urgent'. Must be one of: high, normal, low")
}

func TestPriorityRank(t *testing.T) {
	assert.Equal(t, 1, PriorityHigh.Rank())
	assert.Equal(t, 2, PriorityNormal.Rank())
	assert.Equal(t, 3, PriorityLow.Rank())
}

func TestSetDefaults(t *testing.T) {
	obj := &Object{Kind: KindTask, ID: "x", Title: "X"}
	obj.SetDefaults()
	assert.Equal(t, StatusOpen, obj.Status)
	assert.Equal(t, PriorityNormal, obj.Priority)
	assert.NotNil(t, obj.Prerequisites)
	assert.Equal(t, SchemaVersion, obj.SchemaVersion)

	container := &Object{Kind: KindEpic, ID: "y", Title: "Y", Parent: "p"}
	container.SetDefaults()
	assert.Equal(t, StatusDraft, container.Status)
}

func TestTouchIsMonotonic(t *testing.T) {
	obj := validTask()
	later := obj.Updated.Add(time.Second)
	obj.Touch(later)
	assert.Equal(t, later, obj.Updated)

	// A clock step backwards never rewinds the header.
	obj.Touch(later.Add(-time.Hour))
	assert.Equal(t, later, obj.Updated)
}

func TestTimestampLayoutHasMicroseconds(t *testing.T) {
	stamp := time.Date(2025, 6, 1, 9, 30, 0, 123456000, time.Local).Format(TimestampLayout)
	assert.Equal(t, "2025-06-01T09:30:00.123456", stamp)
	assert.False(t, strings.Contains(stamp, "Z"), "layout must be zone-free")
}
