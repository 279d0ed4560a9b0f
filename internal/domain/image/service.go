package image

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/assemblage/assemblage-api/internal/pkg/describe"
	"github.com/assemblage/assemblage-api/internal/pkg/fingerprint"
	"github.com/assemblage/assemblage-api/internal/pkg/imaging"
	"github.com/assemblage/assemblage-api/internal/pkg/storage"
)

// Describer fills free-text metadata for a canonical image. Failures and
// empty results leave the fields blank; they never block ingestion.
type Describer interface {
	Describe(ctx context.Context, imageData []byte) (describe.Result, error)
}

// SyncReport is the outcome of a storage synchronization pass.
type SyncReport struct {
	Reconcile      ReconcileResult    `json:"reconcile"`
	DuplicatePairs []fingerprint.Pair `json:"duplicatePairs,omitempty"`
	Warnings       []string           `json:"warnings,omitempty"`
}

// BatchInput is one raw upload in a batch.
type BatchInput struct {
	Filename string
	Data     []byte
}

// Rejection explains why one batch input was not cataloged.
type Rejection struct {
	Filename    string `json:"filename"`
	Reason      string `json:"reason"`
	DuplicateOf string `json:"duplicateOf,omitempty"`
}

// BatchResult is the outcome of a batch ingestion.
type BatchResult struct {
	Committed []*ImageRecord `json:"committed"`
	Rejected  []Rejection    `json:"rejected"`
}

// Service runs the normalize -> fingerprint -> dedup -> persist pipeline
// and the reconciliation passes over catalog and storage.
type Service struct {
	catalog    *Catalog
	store      storage.Storage
	mirror     storage.Storage // nil if not configured
	normalizer *imaging.Normalizer
	describer  Describer // nil disables description
	threshold  int       // duplicate threshold in hash bits

	// fingerprints holds the derived hash of every cataloged canonical
	// file, keyed by id. Rebuilt from storage, never persisted.
	fpMu         sync.Mutex
	fingerprints map[string]string
}

// NewService creates the image service
func NewService(catalog *Catalog, store storage.Storage, mirror storage.Storage, normalizer *imaging.Normalizer, describer Describer, thresholdBits int) *Service {
	return &Service{
		catalog:      catalog,
		store:        store,
		mirror:       mirror,
		normalizer:   normalizer,
		describer:    describer,
		threshold:    thresholdBits,
		fingerprints: make(map[string]string),
	}
}

// Ingest takes raw upload bytes through the full pipeline. On success the
// canonical file is in storage and the returned record is committed to
// the catalog. Rejections come back as DuplicateError, a decode error
// (imaging.ErrDecode) or ProcessingError.
func (s *Service) Ingest(ctx context.Context, raw []byte, filename string) (*ImageRecord, error) {
	if len(raw) == 0 {
		return nil, ErrNoFile
	}

	norm, err := s.normalizer.Normalize(raw)
	if err != nil {
		if errors.Is(err, imaging.ErrDecode) {
			return nil, err
		}
		return nil, &ProcessingError{Detail: "normalize " + filename, Err: err}
	}

	// Hash the canonical bytes, not the source, so the stored file alone
	// can always reproduce the fingerprint.
	canonical, _, err := imaging.Decode(norm.Data)
	if err != nil {
		return nil, &ProcessingError{Detail: "re-decode canonical buffer", Err: err}
	}
	hash, err := fingerprint.Compute(canonical)
	if err != nil {
		return nil, &ProcessingError{Detail: "fingerprint", Err: err}
	}

	id := uuid.New().String()

	// Reserve the hash while still holding the lock so two concurrent
	// uploads of the same image cannot both pass the duplicate check.
	s.fpMu.Lock()
	dupID, isDup, err := fingerprint.IsDuplicate(hash, s.fingerprints, s.threshold)
	if err != nil {
		s.fpMu.Unlock()
		return nil, &ProcessingError{Detail: "duplicate check", Err: err}
	}
	if isDup {
		s.fpMu.Unlock()
		dist, _ := fingerprint.Distance(hash, s.fingerprintFor(dupID))
		return nil, &DuplicateError{DuplicateOf: dupID, Distance: dist}
	}
	s.fingerprints[id] = hash
	s.fpMu.Unlock()

	rec := &ImageRecord{
		ID:              id,
		StoragePath:     StoragePathFor(id),
		Tags:            []string{},
		OriginalFormat:  norm.SourceFormat,
		ProcessedFormat: CanonicalFormat,
		Dimensions:      &Dimensions{Width: norm.Width, Height: norm.Height},
		OriginalDimensions: &Dimensions{
			Width:  norm.SourceWidth,
			Height: norm.SourceHeight,
		},
		DateAdded: time.Now().UTC(),
	}

	if err := s.store.Put(ctx, rec.StorageKey(), bytes.NewReader(norm.Data), "image/jpeg"); err != nil {
		s.dropFingerprint(id)
		return nil, &ProcessingError{Detail: "persist canonical file", Err: err}
	}

	if err := s.catalog.Add(rec); err != nil {
		// Keep catalog and storage in agreement: no record, no file.
		s.dropFingerprint(id)
		if delErr := s.store.Delete(ctx, rec.StorageKey()); delErr != nil {
			log.Error().Err(delErr).Str("id", id).Msg("Failed to remove canonical file after catalog add failure")
		}
		return nil, fmt.Errorf("failed to commit record: %w", err)
	}

	s.mirrorPut(rec.StorageKey(), norm.Data)

	if s.describer != nil {
		s.fillMetadata(ctx, rec, norm.Data)
	}

	log.Info().
		Str("id", id).
		Str("format", norm.SourceFormat).
		Int("width", norm.Width).
		Int("height", norm.Height).
		Int("bytes", len(norm.Data)).
		Msg("Image cataloged")

	return rec, nil
}

// IngestBatch processes each input independently: one bad image never
// aborts the rest.
func (s *Service) IngestBatch(ctx context.Context, inputs []BatchInput) BatchResult {
	var result BatchResult
	for _, in := range inputs {
		rec, err := s.Ingest(ctx, in.Data, in.Filename)
		if err != nil {
			rej := Rejection{Filename: in.Filename, Reason: err.Error()}
			var dup *DuplicateError
			if errors.As(err, &dup) {
				rej.DuplicateOf = dup.DuplicateOf
			}
			result.Rejected = append(result.Rejected, rej)
			log.Warn().Err(err).Str("filename", in.Filename).Msg("Batch input rejected")
			continue
		}
		result.Committed = append(result.Committed, rec)
	}
	return result
}

// Get returns a cataloged record
func (s *Service) Get(id string) (*ImageRecord, error) {
	rec, ok := s.catalog.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

// List returns all cataloged records in index order
func (s *Service) List() []*ImageRecord {
	return s.catalog.List()
}

// UpdateMetadata fills description/tags on an existing record
func (s *Service) UpdateMetadata(id string, description *string, tags *[]string) (*ImageRecord, error) {
	if err := s.catalog.UpdateMetadata(id, description, tags); err != nil {
		return nil, err
	}
	rec, ok := s.catalog.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

// Delete removes the record first and the canonical file second, so an
// interruption in between leaves an orphan file (healed by the next
// sync) rather than a dangling index entry.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	rec, ok := s.catalog.Get(id)
	if !ok {
		return false, nil
	}

	removed, err := s.catalog.Remove(id)
	if err != nil || !removed {
		return removed, err
	}
	s.dropFingerprint(id)

	if err := s.store.Delete(ctx, rec.StorageKey()); err != nil {
		log.Warn().Err(err).Str("id", id).Msg("Record removed but canonical file deletion failed")
	}
	if s.mirror != nil {
		if err := s.mirror.Delete(ctx, rec.StorageKey()); err != nil {
			log.Warn().Err(err).Str("id", id).Msg("Mirror deletion failed")
		}
	}
	return true, nil
}

// SyncWithStorage reconciles the catalog against the actual file set,
// rebuilds every fingerprint from the canonical files themselves, and
// reports any pairs of cataloged images within the duplicate threshold.
// Safe to run repeatedly.
func (s *Service) SyncWithStorage(ctx context.Context) (*SyncReport, error) {
	listing, err := s.store.List(ctx, CollagesPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list canonical storage: %w", err)
	}

	reconcile, err := s.catalog.ReconcileAgainstStorage(listing)
	if err != nil {
		return nil, err
	}

	report := &SyncReport{Reconcile: reconcile}
	for _, id := range reconcile.Removed {
		s.dropFingerprint(id)
	}

	hashes := make(map[string]string)
	for _, rec := range s.catalog.List() {
		hash, err := s.hashStoredFile(ctx, rec.StorageKey())
		if err != nil {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("cannot fingerprint %s: %v", rec.StorageKey(), err))
			continue
		}
		hashes[rec.ID] = hash
	}

	s.fpMu.Lock()
	s.fingerprints = hashes
	s.fpMu.Unlock()

	pairs, err := fingerprint.FindAllPairs(hashes, s.threshold)
	if err != nil {
		return nil, fmt.Errorf("duplicate scan failed: %w", err)
	}
	report.DuplicatePairs = pairs

	for _, p := range pairs {
		log.Warn().
			Str("a", p.A).
			Str("b", p.B).
			Int("distance", p.Distance).
			Msg("Cataloged images within duplicate threshold")
	}

	return report, nil
}

// MergeWithSnapshot merges an externally edited index into the local one.
// The snapshot wins ties by id.
func (s *Service) MergeWithSnapshot(ctx context.Context, raw []byte) (MergeStats, error) {
	var external []ImageRecord
	if err := json.Unmarshal(raw, &external); err != nil {
		return MergeStats{}, &IndexCorruptionError{Path: "snapshot", Err: err}
	}
	return s.catalog.MergeExternal(external)
}

// RemoveEntriesMatching drops every record the predicate selects.
func (s *Service) RemoveEntriesMatching(pred func(ImageRecord) bool) (int, error) {
	removed, err := s.catalog.RemoveMatching(pred)
	if err != nil {
		return 0, err
	}
	// Fingerprint map may now hold ids that no longer exist; rebuild it
	// lazily on the next sync instead of chasing each one here.
	return removed, nil
}

// hashStoredFile derives the fingerprint of a canonical file from storage
func (s *Service) hashStoredFile(ctx context.Context, key string) (string, error) {
	rc, err := s.store.Get(ctx, key)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	img, _, err := imaging.Decode(data)
	if err != nil {
		return "", err
	}
	return fingerprint.Compute(img)
}

// fillMetadata asks the external describer for description/tags. Any
// failure leaves the fields blank; the image itself is already committed.
func (s *Service) fillMetadata(ctx context.Context, rec *ImageRecord, data []byte) {
	res, err := s.describer.Describe(ctx, data)
	if err != nil {
		log.Warn().Err(err).Str("id", rec.ID).Msg("Description service failed, leaving metadata blank")
		return
	}
	if res.Empty() {
		return
	}

	if err := s.catalog.UpdateMetadata(rec.ID, &res.Description, &res.Tags); err != nil {
		log.Warn().Err(err).Str("id", rec.ID).Msg("Failed to store generated metadata")
		return
	}
	rec.Description = res.Description
	rec.Tags = append([]string{}, res.Tags...)
}

// mirrorPut copies a canonical file to the off-site mirror, best-effort
func (s *Service) mirrorPut(key string, data []byte) {
	if s.mirror == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.mirror.Put(ctx, key, bytes.NewReader(data), "image/jpeg"); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Mirror upload failed")
		}
	}()
}

func (s *Service) fingerprintFor(id string) string {
	s.fpMu.Lock()
	defer s.fpMu.Unlock()
	return s.fingerprints[id]
}

func (s *Service) dropFingerprint(id string) {
	s.fpMu.Lock()
	defer s.fpMu.Unlock()
	delete(s.fingerprints, id)
}
