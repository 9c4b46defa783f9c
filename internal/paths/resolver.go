// Package paths maps (kind, id) pairs onto the planning tree and back.
// The tree has a fixed shape:
//
//	<root>/projects/P-x/project.md
//	<root>/projects/P-x/epics/E-y/epic.md
//	<root>/projects/P-x/epics/E-y/features/F-z/feature.md
//	.../features/F-z/tasks-open/T-w.md
//	.../features/F-z/tasks-done/20060102_150405-T-w.md
//	<root>/tasks-open/T-s.md          (standalone)
//	<root>/tasks-done/<ts>-T-s.md
package paths

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/trellis-dev/trellis/internal/errs"
	"github.com/trellis-dev/trellis/internal/ids"
	"github.com/trellis-dev/trellis/internal/markdown"
	"github.com/trellis-dev/trellis/internal/types"
)

// Directory and file names of the planning tree.
const (
	PlanningDirName = "planning"
	ProjectsDir     = "projects"
	EpicsDir        = "epics"
	FeaturesDir     = "features"
	TasksOpenDir    = "tasks-open"
	TasksDoneDir    = "tasks-done"

	ProjectFile = "project.md"
	EpicFile    = "epic.md"
	FeatureFile = "feature.md"
)

// DoneStampLayout is the filename prefix stamped (in local time) when a
// task moves to tasks-done. Kept local-time for compatibility with
// existing trees; see DESIGN.md.
const DoneStampLayout = "20060102_150405"

// Roots carries the two shapes of the planning root.
type Roots struct {
	// Scanning is the directory whose subtree contains the planning
	// data (the parent of planning/).
	Scanning string
	// Resolution is the directory paths are built against (contains
	// projects/ and the standalone tasks-* dirs).
	Resolution string
}

// Resolve determines both roots from a user-supplied path. If
// <root>/planning exists the user pointed at the parent; otherwise the
// path itself is treated as the resolution root.
func Resolve(root string) (Roots, error) {
	if root == "" {
		return Roots{}, errs.New(errs.CodeMissingRequiredField, "projectRoot is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return Roots{}, errs.Wrap(errs.CodeInvalidField, err, "projectRoot could not be resolved")
	}
	planning := filepath.Join(abs, PlanningDirName)
	if info, err := os.Stat(planning); err == nil && info.IsDir() {
		return Roots{Scanning: abs, Resolution: planning}, nil
	}
	return Roots{Scanning: filepath.Dir(abs), Resolution: abs}, nil
}

// EnsureLayout creates the planning skeleton under a bare root:
// planning/projects plus the standalone tasks dirs.
func EnsureLayout(root string) (Roots, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Roots{}, errs.Wrap(errs.CodeInvalidField, err, "projectRoot could not be resolved")
	}
	res := filepath.Join(abs, PlanningDirName)
	for _, dir := range []string{
		filepath.Join(res, ProjectsDir),
		filepath.Join(res, TasksOpenDir),
		filepath.Join(res, TasksDoneDir),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Roots{}, errs.Wrap(errs.CodeInternal, err, "planning directory could not be created")
		}
	}
	return Roots{Scanning: abs, Resolution: res}, nil
}

// Resolver builds and inspects paths under one resolution root.
type Resolver struct {
	root string // resolution root
}

// NewResolver wraps a resolution root.
func NewResolver(roots Roots) *Resolver {
	return &Resolver{root: roots.Resolution}
}

// Root returns the resolution root.
func (r *Resolver) Root() string { return r.root }

// ProjectPath returns the file path for a project.
func (r *Resolver) ProjectPath(cleanID string) string {
	return filepath.Join(r.root, ProjectsDir, ids.PrefixProject+cleanID, ProjectFile)
}

// Path builds the file path for (kind, id, parent, status). For
// features and hierarchical tasks the parent file is located first so
// the enclosing directories come from the tree, not the caller. Done
// tasks get a timestamped filename; now supplies the stamp.
func (r *Resolver) Path(kind types.Kind, cleanID, parentClean string, status types.Status, now time.Time) (string, error) {
	switch kind {
	case types.KindProject:
		return r.ProjectPath(cleanID), nil

	case types.KindEpic:
		if parentClean == "" {
			return "", errs.New(errs.CodeParentInvalid, "epic requires a project parent").WithObject(cleanID, string(kind))
		}
		projectFile := r.ProjectPath(parentClean)
		if _, err := os.Stat(projectFile); err != nil {
			return "", errs.New(errs.CodeParentNotExist, "parent project does not exist").WithObject(cleanID, string(kind))
		}
		return filepath.Join(filepath.Dir(projectFile), EpicsDir, ids.PrefixEpic+cleanID, EpicFile), nil

	case types.KindFeature:
		if parentClean == "" {
			return "", errs.New(errs.CodeParentInvalid, "feature requires an epic parent").WithObject(cleanID, string(kind))
		}
		epicFile, err := r.Locate(types.KindEpic, parentClean)
		if err != nil {
			return "", errs.New(errs.CodeParentNotExist, "parent epic does not exist").WithObject(cleanID, string(kind))
		}
		return filepath.Join(filepath.Dir(epicFile), FeaturesDir, ids.PrefixFeature+cleanID, FeatureFile), nil

	case types.KindTask:
		var base string
		if parentClean == "" {
			base = r.root
		} else {
			featureFile, err := r.Locate(types.KindFeature, parentClean)
			if err != nil {
				return "", errs.New(errs.CodeParentNotExist, "parent feature does not exist").WithObject(cleanID, string(kind))
			}
			base = filepath.Dir(featureFile)
		}
		if status == types.StatusDone {
			name := now.Format(DoneStampLayout) + "-" + ids.PrefixTask + cleanID + ".md"
			return filepath.Join(base, TasksDoneDir, name), nil
		}
		return filepath.Join(base, TasksOpenDir, ids.PrefixTask+cleanID+".md"), nil
	}
	return "", errs.New(errs.CodeInvalidField, "Invalid kind '%s'. Must be one of: [project, epic, feature, task]", kind)
}

// Locate finds the existing file for (kind, clean id) anywhere in the
// tree. Tasks are searched across both systems and both status dirs.
func (r *Resolver) Locate(kind types.Kind, cleanID string) (string, error) {
	patterns := r.locatePatterns(kind, cleanID)
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		sort.Strings(matches)
		if len(matches) > 0 {
			return matches[0], nil
		}
	}
	return "", errs.New(errs.CodeInvalidField, "no %s found with ID %q", kind, cleanID).WithObject(cleanID, string(kind))
}

func (r *Resolver) locatePatterns(kind types.Kind, cleanID string) []string {
	switch kind {
	case types.KindProject:
		return []string{r.ProjectPath(cleanID)}
	case types.KindEpic:
		return []string{filepath.Join(r.root, ProjectsDir, "*", EpicsDir, ids.PrefixEpic+cleanID, EpicFile)}
	case types.KindFeature:
		return []string{filepath.Join(r.root, ProjectsDir, "*", EpicsDir, "*", FeaturesDir, ids.PrefixFeature+cleanID, FeatureFile)}
	case types.KindTask:
		featureBase := filepath.Join(r.root, ProjectsDir, "*", EpicsDir, "*", FeaturesDir, "*")
		return []string{
			filepath.Join(featureBase, TasksOpenDir, ids.PrefixTask+cleanID+".md"),
			filepath.Join(featureBase, TasksDoneDir, "*-"+ids.PrefixTask+cleanID+".md"),
			filepath.Join(r.root, TasksOpenDir, ids.PrefixTask+cleanID+".md"),
			filepath.Join(r.root, TasksDoneDir, "*-"+ids.PrefixTask+cleanID+".md"),
		}
	}
	return nil
}

// KindIDFromPath derives (kind, clean id) from a file path inside the
// tree.
func KindIDFromPath(path string) (types.Kind, string, error) {
	base := filepath.Base(path)
	dir := filepath.Base(filepath.Dir(path))
	switch base {
	case ProjectFile:
		return types.KindProject, strings.TrimPrefix(dir, ids.PrefixProject), nil
	case EpicFile:
		return types.KindEpic, strings.TrimPrefix(dir, ids.PrefixEpic), nil
	case FeatureFile:
		return types.KindFeature, strings.TrimPrefix(dir, ids.PrefixFeature), nil
	}
	if strings.HasSuffix(base, ".md") {
		name := strings.TrimSuffix(base, ".md")
		if idx := strings.Index(name, ids.PrefixTask); idx >= 0 {
			return types.KindTask, name[idx+len(ids.PrefixTask):], nil
		}
	}
	return "", "", errs.New(errs.CodeInvalidField, "path does not name a Trellis object")
}

// Children enumerates the immediate children of the object stored at
// parentFile, sorted by creation time ascending. Tasks have none.
func (r *Resolver) Children(parentFile string) ([]types.ChildSummary, error) {
	kind, _, err := KindIDFromPath(parentFile)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(parentFile)

	var patterns []string
	switch kind {
	case types.KindProject:
		patterns = []string{filepath.Join(dir, EpicsDir, ids.PrefixEpic+"*", EpicFile)}
	case types.KindEpic:
		patterns = []string{filepath.Join(dir, FeaturesDir, ids.PrefixFeature+"*", FeatureFile)}
	case types.KindFeature:
		patterns = []string{
			filepath.Join(dir, TasksOpenDir, ids.PrefixTask+"*.md"),
			filepath.Join(dir, TasksDoneDir, "*-"+ids.PrefixTask+"*.md"),
		}
	case types.KindTask:
		return []types.ChildSummary{}, nil
	}

	var children []types.ChildSummary
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		for _, match := range matches {
			obj, err := markdown.ReadObject(match)
			if err != nil {
				// Broken child files are skipped, not fatal.
				continue
			}
			children = append(children, types.ChildSummary{
				ID:       obj.ID,
				Title:    obj.Title,
				Status:   obj.Status,
				Kind:     obj.Kind,
				Created:  obj.Created,
				FilePath: match,
			})
		}
	}
	sort.SliceStable(children, func(i, j int) bool {
		return children[i].Created.Before(children[j].Created)
	})
	return children, nil
}

// Descendants returns every descendant object file below the container
// stored at parentFile, in stable sorted order. Used by cascade delete.
func (r *Resolver) Descendants(parentFile string) ([]string, error) {
	kind, _, err := KindIDFromPath(parentFile)
	if err != nil {
		return nil, err
	}
	if kind == types.KindTask {
		return nil, nil
	}
	dir := filepath.Dir(parentFile)

	var files []string
	walkErr := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped
		}
		if d.IsDir() || path == parentFile {
			return nil
		}
		if strings.HasSuffix(path, ".md") {
			files = append(files, path)
		}
		return nil
	})
	if walkErr != nil {
		return nil, errs.Wrap(errs.CodeInternal, walkErr, "descendants could not be enumerated")
	}
	sort.Strings(files)
	return files, nil
}

// ChildMtimeFiles returns the candidate child files of parentFile for
// cache freshness checks (paths only, no parsing).
func (r *Resolver) ChildMtimeFiles(parentFile string) []string {
	kind, _, err := KindIDFromPath(parentFile)
	if err != nil || kind == types.KindTask {
		return nil
	}
	dir := filepath.Dir(parentFile)
	var patterns []string
	switch kind {
	case types.KindProject:
		patterns = []string{filepath.Join(dir, EpicsDir, ids.PrefixEpic+"*", EpicFile)}
	case types.KindEpic:
		patterns = []string{filepath.Join(dir, FeaturesDir, ids.PrefixFeature+"*", FeatureFile)}
	case types.KindFeature:
		patterns = []string{
			filepath.Join(dir, TasksOpenDir, ids.PrefixTask+"*.md"),
			filepath.Join(dir, TasksDoneDir, "*-"+ids.PrefixTask+"*.md"),
		}
	}
	var files []string
	for _, pattern := range patterns {
		matches, _ := filepath.Glob(pattern)
		files = append(files, matches...)
	}
	sort.Strings(files)
	return files
}

// DoneFileName returns the timestamped filename a task receives when it
// transitions to done.
func DoneFileName(cleanID string, now time.Time) string {
	return now.Format(DoneStampLayout) + "-" + ids.PrefixTask + cleanID + ".md"
}

// IsDonePath reports whether a task file path lies in a tasks-done
// directory.
func IsDonePath(path string) bool {
	return filepath.Base(filepath.Dir(path)) == TasksDoneDir
}
