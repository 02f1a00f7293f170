// Package storage is the postgres backed metadata store: catalog items keyed
// by business key with a single image reference column.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrRecordNotFound = errors.New("catalog item not found")

type DBStorage struct {
	dbpool *pgxpool.Pool
}

func New(ctx context.Context, databaseDSN string) (*DBStorage, error) {
	pool, err := pgxpool.New(ctx, databaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &DBStorage{dbpool: pool}, nil
}

func (s *DBStorage) Ping(ctx context.Context) error {
	return s.dbpool.Ping(ctx)
}

func (s *DBStorage) Close() {
	s.dbpool.Close()
}

// FindByKey returns the id of the catalog item with the given business key.
func (s *DBStorage) FindByKey(ctx context.Context, key string) (string, bool, error) {
	var id int64
	err := s.dbpool.QueryRow(ctx, `SELECT id FROM catalog_items WHERE business_key = $1`, key).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("find catalog item %q: %w", key, err)
	}
	return strconv.FormatInt(id, 10), true, nil
}

// PatchReference points the catalog item at url.
func (s *DBStorage) PatchReference(ctx context.Context, recordID, url string) error {
	id, err := strconv.ParseInt(recordID, 10, 64)
	if err != nil {
		return fmt.Errorf("patch catalog item %q: invalid id: %w", recordID, err)
	}

	tag, err := s.dbpool.Exec(ctx,
		`UPDATE catalog_items SET image_url = $2, updated_at = now() WHERE id = $1`,
		id, url,
	)
	if err != nil {
		return fmt.Errorf("patch catalog item %s: %w", recordID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("patch catalog item %s: %w", recordID, ErrRecordNotFound)
	}
	return nil
}

// CreateItem inserts a catalog item, or returns the existing one for key.
func (s *DBStorage) CreateItem(ctx context.Context, key, title string) (string, error) {
	var id int64
	err := s.dbpool.QueryRow(ctx,
		`INSERT INTO catalog_items (business_key, title) VALUES ($1, $2)
		 ON CONFLICT (business_key) DO UPDATE SET title = EXCLUDED.title
		 RETURNING id`,
		key, title,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create catalog item %q: %w", key, err)
	}
	return strconv.FormatInt(id, 10), nil
}

// ImageURL returns the current reference for key.
func (s *DBStorage) ImageURL(ctx context.Context, key string) (string, error) {
	var url *string
	err := s.dbpool.QueryRow(ctx, `SELECT image_url FROM catalog_items WHERE business_key = $1`, key).Scan(&url)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrRecordNotFound
	}
	if err != nil {
		return "", err
	}
	if url == nil {
		return "", nil
	}
	return *url, nil
}
