package image

import "time"

const (
	// CanonicalExt is the extension of every canonical file.
	CanonicalExt = ".jpg"

	// CollagesPrefix is the storage key prefix canonical files live under.
	CollagesPrefix = "collages"

	// CanonicalFormat is the encoding of every canonical file.
	CanonicalFormat = "jpeg"
)

// Dimensions is a width/height pair in pixels
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ImageRecord is one cataloged image. Structural fields (ID, StoragePath,
// Dimensions) are immutable after Add; only Description and Tags may be
// filled in later.
type ImageRecord struct {
	ID                 string      `json:"id"`
	StoragePath        string      `json:"src"` // "{id}.jpg", relative to the collages dir
	Description        string      `json:"description"`
	Tags               []string    `json:"tags"`
	OriginalFormat     string      `json:"originalFormat,omitempty"`
	ProcessedFormat    string      `json:"processedFormat,omitempty"`
	Dimensions         *Dimensions `json:"dimensions,omitempty"`
	OriginalDimensions *Dimensions `json:"originalDimensions,omitempty"`
	DateAdded          time.Time   `json:"dateAdded"`
}

// StoragePathFor derives the canonical relative path for an id.
func StoragePathFor(id string) string {
	return id + CanonicalExt
}

// StorageKey returns the record's key in canonical storage.
func (r *ImageRecord) StorageKey() string {
	return CollagesPrefix + "/" + r.StoragePath
}

// clone returns a copy safe to hand to callers
func (r *ImageRecord) clone() *ImageRecord {
	out := *r
	if r.Tags != nil {
		out.Tags = append([]string(nil), r.Tags...)
	}
	if r.Dimensions != nil {
		d := *r.Dimensions
		out.Dimensions = &d
	}
	if r.OriginalDimensions != nil {
		d := *r.OriginalDimensions
		out.OriginalDimensions = &d
	}
	return &out
}
