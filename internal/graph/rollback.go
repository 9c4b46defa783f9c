package graph

import (
	"os"

	"go.uber.org/zap"

	"github.com/trellis-dev/trellis/internal/markdown"
)

// Snapshot captures a file's pre-write state so a failed post-write
// graph check can undo its on-disk effect.
type Snapshot struct {
	Path    string
	Existed bool
	Content []byte // raw (yaml, body) bytes when Existed
}

// Take records the current state of path before a write.
func Take(path string) (*Snapshot, error) {
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Snapshot{Path: path, Existed: false}, nil
	}
	if err != nil {
		return nil, err
	}
	return &Snapshot{Path: path, Existed: true, Content: content}, nil
}

// Restore undoes the write: a newly created file is unlinked, an
// updated file is rewritten from the snapshot. When the restoration
// itself fails both errors matter; the caller logs the restore failure
// and still surfaces the original one.
func (s *Snapshot) Restore(log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	var err error
	if s.Existed {
		err = markdown.WriteFileAtomic(s.Path, s.Content)
	} else {
		err = os.Remove(s.Path)
		if os.IsNotExist(err) {
			err = nil
		}
	}
	if err != nil {
		log.Error("rollback of rejected write failed", zap.Error(err))
	}
	return err
}
