// Package metadata links published asset URLs to records in the catalog metadata store.
package metadata

import (
	"context"
)

// Linker finds a record by business key and patches its reference field.
type Linker interface {
	FindByKey(ctx context.Context, key string) (recordID string, found bool, err error)
	PatchReference(ctx context.Context, recordID, url string) error
}

// Noop is used when no metadata store is configured. Every key is reported missing.
type Noop struct{}

func (Noop) FindByKey(context.Context, string) (string, bool, error) { return "", false, nil }

func (Noop) PatchReference(context.Context, string, string) error { return nil }
