// Package source contains the drop locations images are ingested from.
package source

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/trunov/assethub/internal/entities"
)

var ErrNotFound = errors.New("source file not found")

// Connector is an uncontrolled drop location: list, fetch and delete by path.
type Connector interface {
	List(ctx context.Context, folder string) ([]entities.SourceFile, error)
	Fetch(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
}

var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".webp": {},
}

// IsImage reports whether name carries a recognized image extension.
func IsImage(name string) bool {
	_, ok := imageExtensions[strings.ToLower(path.Ext(name))]
	return ok
}
