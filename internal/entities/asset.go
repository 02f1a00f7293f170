package entities

import "time"

// SourceFile is a candidate image sitting in the drop location.
type SourceFile struct {
	Path        string    `json:"path"`
	Name        string    `json:"name"`
	Size        int64     `json:"size,omitempty"`
	ContentHash string    `json:"content_hash,omitempty"`
	ModifiedAt  time.Time `json:"modified_at,omitempty"`
}

// AssetKey identifies a published asset: {Namespace}/{Slug}.{ext}
type AssetKey struct {
	Namespace string `json:"namespace"`
	Slug      string `json:"slug"`
}

// StorageKey is the object key for the given file extension (without dot).
func (k AssetKey) StorageKey(ext string) string {
	if k.Namespace == "" {
		return k.Slug + "." + ext
	}
	return k.Namespace + "/" + k.Slug + "." + ext
}

func (k AssetKey) String() string {
	if k.Namespace == "" {
		return k.Slug
	}
	return k.Namespace + "/" + k.Slug
}

// EncodedAsset is the in-memory output of the size bounded encoder.
type EncodedAsset struct {
	Bytes       []byte `json:"-"`
	Format      string `json:"format"`
	ContentType string `json:"content_type"`
	ByteSize    int    `json:"byte_size"`
	Quality     int    `json:"quality"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	// MetBudget is false when the encoder gave up at its floors and returned
	// the smallest encoding it produced.
	MetBudget     bool `json:"met_budget"`
	Attempts      int  `json:"attempts"`
	OriginalBytes int  `json:"original_bytes"`
}

// SavingsPercent is the size reduction relative to the source bytes, one decimal.
func (e EncodedAsset) SavingsPercent() float64 {
	if e.OriginalBytes <= 0 {
		return 0
	}
	p := float64(e.OriginalBytes-e.ByteSize) / float64(e.OriginalBytes) * 100
	return float64(int64(p*10+0.5)) / 10
}

// PublishedAsset is the durable result of an upsert into the asset store.
type PublishedAsset struct {
	PublicURL  string `json:"public_url"`
	StorageKey string `json:"storage_key"`
}
