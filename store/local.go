package store

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sandeepkandula/blobsync/sync"
)

// LocalSource lists and serves files from a directory tree. Keys are
// slash-separated paths relative to the root. Empty directories surface as
// placeholder records so their markers get created on the target.
type LocalSource struct {
	root string
}

func NewLocalSource(root string) (*LocalSource, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source %q is not a directory", root)
	}
	return &LocalSource{root: root}, nil
}

func (l *LocalSource) List(ctx context.Context, prefix string) ([]sync.Object, error) {
	var objects []sync.Object
	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		rel, err := filepath.Rel(l.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel) // object keys use forward slashes

		info, err := d.Info()
		if err != nil {
			return err
		}

		if d.IsDir() {
			if rel == "." {
				return nil
			}
			empty, err := isEmptyDir(path)
			if err != nil {
				return err
			}
			if !empty {
				return nil
			}
			marker := sync.PlaceholderFor(rel)
			if prefix != "" && !strings.HasPrefix(marker, prefix) {
				return nil
			}
			objects = append(objects, sync.Object{
				Path:        marker,
				Size:        0,
				ModTime:     info.ModTime().Truncate(time.Second),
				Placeholder: true,
			})
			return nil
		}

		if prefix != "" && !strings.HasPrefix(rel, prefix) {
			return nil
		}
		objects = append(objects, sync.Object{
			Path:    rel,
			Size:    info.Size(),
			ModTime: info.ModTime().Truncate(time.Second),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", l.root, err)
	}
	return objects, nil
}

func (l *LocalSource) Open(_ context.Context, rel string) (io.ReadCloser, int64, error) {
	path := filepath.Join(l.root, filepath.FromSlash(rel))
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

func isEmptyDir(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}
