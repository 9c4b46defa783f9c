// Package scanner walks the planning tree and loads every parseable
// object. Broken files are skipped so a partially damaged tree still
// serves reads.
package scanner

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/trellis-dev/trellis/internal/errs"
	"github.com/trellis-dev/trellis/internal/markdown"
	"github.com/trellis-dev/trellis/internal/paths"
	"github.com/trellis-dev/trellis/internal/types"
)

// Loaded pairs an object with the path it was read from.
type Loaded struct {
	Object *types.Object
	Path   string
}

// Scanner loads objects under one resolution root.
type Scanner struct {
	root string
	log  *zap.Logger
}

// New creates a Scanner for the given roots. A nil logger is replaced
// with a no-op one.
func New(roots paths.Roots, log *zap.Logger) *Scanner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scanner{root: roots.Resolution, log: log}
}

// AllObjects walks the tree and returns every parseable object keyed by
// clean ID. Later duplicates (which invariant 1 forbids but a damaged
// tree may contain) do not displace earlier ones; the walk order is
// deterministic.
func (s *Scanner) AllObjects() (map[string]*Loaded, error) {
	files, err := s.objectFiles()
	if err != nil {
		return nil, err
	}
	objects := make(map[string]*Loaded, len(files))
	for _, path := range files {
		obj, err := markdown.ReadObject(path)
		if err != nil {
			s.log.Debug("skipping unparseable object file", zap.Error(err))
			continue
		}
		if _, exists := objects[obj.ID]; exists {
			s.log.Warn("duplicate object ID in tree", zap.String("id", obj.ID))
			continue
		}
		objects[obj.ID] = &Loaded{Object: obj, Path: path}
	}
	return objects, nil
}

// Tasks yields every task in the tree, hierarchical and standalone, in
// deterministic path order.
func (s *Scanner) Tasks() ([]*Loaded, error) {
	files, err := s.objectFiles()
	if err != nil {
		return nil, err
	}
	var tasks []*Loaded
	for _, path := range files {
		if !isTaskFile(path) {
			continue
		}
		obj, err := markdown.ReadObject(path)
		if err != nil {
			s.log.Debug("skipping unparseable task file", zap.Error(err))
			continue
		}
		if obj.Kind != types.KindTask {
			continue
		}
		tasks = append(tasks, &Loaded{Object: obj, Path: path})
	}
	return tasks, nil
}

func (s *Scanner) objectFiles() ([]string, error) {
	var files []string
	walkErr := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtrees are skipped
		}
		if d.IsDir() {
			return nil
		}
		if isObjectFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if walkErr != nil {
		return nil, errs.Wrap(errs.CodeInternal, walkErr, "planning tree could not be scanned")
	}
	sort.Strings(files)
	return files, nil
}

func isObjectFile(path string) bool {
	base := filepath.Base(path)
	switch base {
	case paths.ProjectFile, paths.EpicFile, paths.FeatureFile:
		return true
	}
	return isTaskFile(path)
}

func isTaskFile(path string) bool {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, ".md") {
		return false
	}
	dir := filepath.Base(filepath.Dir(path))
	return dir == paths.TasksOpenDir || dir == paths.TasksDoneDir
}
