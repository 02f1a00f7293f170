package source

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/trunov/assethub/internal/entities"
)

// Memory holds uploaded files until their job cleans them up.
// It backs the manual ingestion endpoint and is handy in tests.
type Memory struct {
	mu    sync.Mutex
	files map[string]memFile
}

type memFile struct {
	data     []byte
	modified time.Time
}

func NewMemory() *Memory {
	return &Memory{files: make(map[string]memFile)}
}

// Put stores data at p and returns the matching SourceFile.
func (m *Memory) Put(p string, data []byte) entities.SourceFile {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	m.files[p] = memFile{data: data, modified: now}
	return memSourceFile(p, data, now)
}

func (m *Memory) Has(p string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[p]
	return ok
}

func (m *Memory) List(ctx context.Context, folder string) ([]entities.SourceFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	dir := path.Clean("/" + folder)
	out := make([]entities.SourceFile, 0, len(m.files))
	for p, f := range m.files {
		if path.Dir(p) != dir || !IsImage(p) {
			continue
		}
		out = append(out, memSourceFile(p, f.data, f.modified))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (m *Memory) Fetch(ctx context.Context, p string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.files[p]
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

func (m *Memory) Delete(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, p)
	return nil
}

func memSourceFile(p string, data []byte, modified time.Time) entities.SourceFile {
	sum := sha256.Sum256(data)
	return entities.SourceFile{
		Path:        p,
		Name:        path.Base(p),
		Size:        int64(len(data)),
		ContentHash: hex.EncodeToString(sum[:]),
		ModifiedAt:  modified,
	}
}
