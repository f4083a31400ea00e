package submission

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Source is a not-yet-read upload.
type Source struct {
	Name string
	Open func() (io.ReadCloser, error)
}

const defaultReadConcurrency = 8

// Buffer reads every source fully into memory, at most limit at a time.
// Output order matches input order. Read failures do not stop the batch;
// they are attached to the file as a *FileReadError.
func Buffer(ctx context.Context, srcs []Source, limit int) []File {
	if limit <= 0 {
		limit = defaultReadConcurrency
	}
	files := make([]File, len(srcs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, src := range srcs {
		g.Go(func() error {
			files[i] = readOne(gctx, src)
			return nil
		})
	}
	_ = g.Wait()
	return files
}

func readOne(ctx context.Context, src Source) File {
	if err := ctx.Err(); err != nil {
		return File{Name: src.Name, Err: &FileReadError{Name: src.Name, Err: err}}
	}
	rc, err := src.Open()
	if err != nil {
		return File{Name: src.Name, Err: &FileReadError{Name: src.Name, Err: err}}
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return File{Name: src.Name, Err: &FileReadError{Name: src.Name, Err: err}}
	}
	return NewFile(src.Name, b)
}

// ReadDir buffers every regular file below dir. Files are named by their base
// name and ordered by path so runs over the same directory are repeatable.
func ReadDir(ctx context.Context, dir string) ([]File, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	srcs := make([]Source, len(paths))
	for i, p := range paths {
		srcs[i] = Source{
			Name: filepath.Base(p),
			Open: func() (io.ReadCloser, error) { return os.Open(p) },
		}
	}
	return Buffer(ctx, srcs, defaultReadConcurrency), nil
}
