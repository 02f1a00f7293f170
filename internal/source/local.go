package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/trunov/assethub/internal/entities"
)

// Local reads a file-sync folder mounted on this host.
// Paths are slash separated and relative to root.
type Local struct {
	root string
}

func NewLocal(root string) (*Local, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("local source: root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("local source: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("local source: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("local source: %s is not a directory", abs)
	}
	return &Local{root: abs}, nil
}

func (l *Local) List(ctx context.Context, folder string) ([]entities.SourceFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, rel, err := l.resolve(folder)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("local source: list %s: %w", rel, err)
	}

	out := make([]entities.SourceFile, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || !IsImage(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		out = append(out, entities.SourceFile{
			Path:       path.Join("/", rel, e.Name()),
			Name:       e.Name(),
			Size:       info.Size(),
			ModifiedAt: info.ModTime().UTC(),
		})
	}
	return out, nil
}

func (l *Local) Fetch(ctx context.Context, p string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, _, err := l.resolve(p)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("local source: %s: %w", p, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("local source: open %s: %w", p, err)
	}
	return f, nil
}

func (l *Local) Delete(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, _, err := l.resolve(p)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("local source: delete %s: %w", p, err)
	}
	return nil
}

// resolve maps a source path onto the filesystem without escaping root.
func (l *Local) resolve(p string) (string, string, error) {
	rel := strings.TrimLeft(path.Clean("/"+strings.ReplaceAll(p, "\\", "/")), "/")
	full := filepath.Join(l.root, filepath.FromSlash(rel))
	if full != l.root && !strings.HasPrefix(full, l.root+string(filepath.Separator)) {
		return "", "", fmt.Errorf("local source: invalid path %q", p)
	}
	return full, rel, nil
}
