package emit

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	textFileMode   os.FileMode = 0o640
	scriptFileMode os.FileMode = 0o750
)

// FileSink stores artifacts as files in one directory. Claims use
// O_CREATE|O_EXCL, so numbering stays unique across processes writing to
// the same directory.
type FileSink struct {
	dir string
}

// NewFileSink creates dir if needed.
func NewFileSink(dir string) (*FileSink, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("file sink: directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("file sink: create %s: %w", dir, err)
	}
	return &FileSink{dir: dir}, nil
}

// Dir returns the output directory.
func (f *FileSink) Dir() string { return f.dir }

func (f *FileSink) path(id string) (string, error) {
	if id == "" || id != filepath.Base(id) || id == "." || id == ".." {
		return "", fmt.Errorf("file sink: %q is not a single path segment", id)
	}
	return filepath.Join(f.dir, id), nil
}

func (f *FileSink) Claim(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p, err := f.path(id)
	if err != nil {
		return false, err
	}
	file, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, textFileMode)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, file.Close()
}

func (f *FileSink) Write(ctx context.Context, id string, body []byte, executable bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := f.path(id)
	if err != nil {
		return err
	}
	file, err := os.OpenFile(p, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	if _, err := file.Write(body); err != nil {
		_ = file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	if executable {
		return os.Chmod(p, scriptFileMode)
	}
	return nil
}

// Release removes a claimed file whose write failed.
func (f *FileSink) Release(_ context.Context, id string) error {
	p, err := f.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
