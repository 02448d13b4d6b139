package runtime

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	errspkg "github.com/drblury/scriptflow/internal/runtime/errors"
	recordspkg "github.com/drblury/scriptflow/internal/runtime/records"
)

// Source yields the decoded records of one stream. A stream is the unit of
// reconstruction: correlation IDs are only ever merged within one Source.
type Source interface {
	Name() string
	Records(ctx context.Context) ([]recordspkg.Record, error)
}

// FileSource reads a JSONL file of decoded records.
type FileSource struct {
	Path string
}

// NewFileSource returns a source for the JSONL file at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

func (f *FileSource) Name() string { return f.Path }

// Records opens and decodes the file. Any failure is reported as an
// *errors.SourceError so callers can fail this stream alone.
func (f *FileSource) Records(ctx context.Context) ([]recordspkg.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, &errspkg.SourceError{Source: f.Path, Err: err}
	}
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, &errspkg.SourceError{Source: f.Path, Err: err}
	}
	defer file.Close()

	recs, err := recordspkg.ReadJSONL(file, f.Path)
	if err != nil {
		return nil, &errspkg.SourceError{Source: f.Path, Err: err}
	}
	return recs, nil
}

// SliceSource serves records that are already in memory.
type SliceSource struct {
	StreamName string
	Items      []recordspkg.Record
}

// NewSliceSource returns a named source over recs.
func NewSliceSource(name string, recs []recordspkg.Record) *SliceSource {
	return &SliceSource{StreamName: name, Items: recs}
}

func (s *SliceSource) Name() string { return s.StreamName }

func (s *SliceSource) Records(ctx context.Context) ([]recordspkg.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, &errspkg.SourceError{Source: s.StreamName, Err: err}
	}
	return s.Items, nil
}

var sourceExtensions = map[string]bool{
	".jsonl": true,
	".json":  true,
}

// DiscoverSources turns input paths into sources. Directories expand to
// their *.jsonl and *.json entries in name order; everything else becomes a
// FileSource as given, so a missing path fails its own stream later instead
// of the whole batch now.
func DiscoverSources(paths ...string) ([]Source, error) {
	var out []Source
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if err != nil || !info.IsDir() {
			out = append(out, NewFileSource(p))
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, &errspkg.SourceError{Source: p, Err: err}
		}
		var files []string
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if sourceExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
				files = append(files, filepath.Join(p, entry.Name()))
			}
		}
		sort.Strings(files)
		for _, file := range files {
			out = append(out, NewFileSource(file))
		}
	}
	if len(out) == 0 {
		return nil, errspkg.ErrSourceRequired
	}
	return out, nil
}
