// Package assetkey derives deterministic storage keys from source file names.
package assetkey

import (
	"errors"
	"path"
	"strings"
	"unicode"

	"github.com/trunov/assethub/internal/entities"
)

var ErrEmptySlug = errors.New("invalid asset key: empty slug")

// Deriver turns file names into asset keys. The same name always yields the
// same key so repeated ingestion overwrites instead of duplicating.
type Deriver struct {
	prefixes []string
}

func NewDeriver(prefixes []string) *Deriver {
	d := &Deriver{}
	for _, p := range prefixes {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			d.prefixes = append(d.prefixes, p)
		}
	}
	return d
}

// Derive builds the key for name inside namespace.
func (d *Deriver) Derive(namespace, name string) (entities.AssetKey, error) {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.TrimSuffix(base, path.Ext(base))
	base = strings.ToLower(strings.TrimSpace(base))

	for _, p := range d.prefixes {
		if strings.HasPrefix(base, p) && len(base) > len(p) {
			base = base[len(p):]
			break
		}
	}

	slug := Slugify(base)
	if slug == "" {
		return entities.AssetKey{}, ErrEmptySlug
	}
	return entities.AssetKey{Namespace: Slugify(namespace), Slug: slug}, nil
}

// Slugify lowercases s, maps separators to '-' and drops everything outside [a-z0-9-].
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case r == '-' || r == '_' || r == '.' || unicode.IsSpace(r):
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}
