// Package supabase publishes assets to a Supabase storage bucket over its REST API.
package supabase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"

	"github.com/trunov/assethub/internal/config"
)

type Store struct {
	baseURL      string
	key          string
	bucket       string
	cacheControl string
	client       *http.Client
}

func NewStore(cfg *config.AssetStoreConfig, client *http.Client) *Store {
	if client == nil {
		client = http.DefaultClient
	}
	return &Store{
		baseURL:      strings.TrimRight(cfg.URL, "/"),
		key:          cfg.Key,
		bucket:       cfg.Bucket,
		cacheControl: cfg.CacheControl,
		client:       client,
	}
}

// Upsert uploads payload with x-upsert so an existing object is replaced.
func (s *Store) Upsert(ctx context.Context, key string, payload []byte, contentType string) (string, error) {
	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, url.PathEscape(s.bucket), escapeKey(key))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("apikey", s.key)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")
	if s.cacheControl != "" {
		req.Header.Set("cache-control", s.cacheControl)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("supabase: upload %q: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("supabase: upload %q: status %d: %s", key, resp.StatusCode, errorMessage(resp.Body))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	return s.PublicURL(key), nil
}

func (s *Store) PublicURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, url.PathEscape(s.bucket), escapeKey(key))
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

func errorMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 4096))
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(raw, &payload) == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return strings.TrimSpace(string(raw))
}
