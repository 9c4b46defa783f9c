package markdown

import (
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/trellis-dev/trellis/internal/errs"
	"github.com/trellis-dev/trellis/internal/types"
)

// WriteFileAtomic writes data to path via a temp file in the same
// directory, fsyncs, then renames over the target. The rename is the
// sole durability boundary; readers never observe a partial file.
// The rename retries with exponential backoff to survive transient
// locking (another process holding the target open).
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Wrap(errs.CodeInternal, err, "object directory could not be created")
	}

	tmp, err := os.CreateTemp(dir, ".trellis-*.tmp")
	if err != nil {
		return errs.Wrap(errs.CodeInternal, err, "temp file could not be created")
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return errs.Wrap(errs.CodeInternal, err, "object file could not be written")
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return errs.Wrap(errs.CodeInternal, err, "object file could not be synced")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errs.Wrap(errs.CodeInternal, err, "object file could not be closed")
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return errs.Wrap(errs.CodeInternal, err, "object file permissions could not be set")
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxElapsedTime = 2 * time.Second
	renameOp := func() error { return os.Rename(tmpPath, path) }
	if err := backoff.Retry(renameOp, policy); err != nil {
		os.Remove(tmpPath)
		return errs.Wrap(errs.CodeInternal, err, "object file could not be replaced")
	}
	return nil
}

// WriteObject serializes and atomically writes an object to path.
func WriteObject(path string, obj *types.Object) error {
	content, err := Dump(obj)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, []byte(content))
}

// ReadObject loads and parses an object file.
func ReadObject(path string) (*types.Object, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.Wrap(errs.CodeInvalidField, err, "object file does not exist")
		}
		return nil, errs.Wrap(errs.CodeInternal, err, "object file could not be read")
	}
	return Parse(string(content))
}
