package image

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// Catalog owns the persisted metadata index: an ordered JSON array of
// ImageRecord. It is the single source of truth for which images exist.
//
// Single-writer model: every read-modify-write cycle holds both an
// in-process mutex and a cross-process file lock, and persists via
// write-to-temp-then-rename so readers never observe a partial index.
type Catalog struct {
	path string
	lock *flock.Flock

	mu      sync.Mutex
	records []ImageRecord
}

// ReconcileResult reports what a storage reconciliation pass did.
type ReconcileResult struct {
	Removed  []string `json:"removed"`  // ids dropped because the backing file is gone
	Warnings []string `json:"warnings"` // storage files no record references
	Kept     int      `json:"kept"`
}

// MergeStats reports what an external-snapshot merge did.
type MergeStats struct {
	Added    int `json:"added"`    // records only the external snapshot had
	Replaced int `json:"replaced"` // ids present on both sides, external version won
	Kept     int `json:"kept"`     // records only the local index had
}

// NewCatalog opens (or creates) the index at path.
func NewCatalog(path string) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	c := &Catalog{
		path: path,
		lock: flock.New(path + ".lock"),
	}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

// Path returns the index file location
func (c *Catalog) Path() string {
	return c.path
}

// load reads the index from disk. A missing file is an empty catalog;
// an unparseable file is IndexCorruptionError.
func (c *Catalog) load() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			c.records = nil
			return nil
		}
		return fmt.Errorf("failed to read index: %w", err)
	}

	var records []ImageRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return &IndexCorruptionError{Path: c.path, Err: err}
	}
	c.records = records
	return nil
}

// save persists the full index atomically. Caller must hold the locks.
func (c *Catalog) save() error {
	data, err := json.MarshalIndent(c.records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(c.path), ".metadata-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp index: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp index: %w", err)
	}

	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("failed to replace index: %w", err)
	}
	return nil
}

// mutate runs fn inside the full read-modify-write critical section:
// in-process mutex, cross-process flock, reload (to pick up writes by
// other processes), fn, save.
func (c *Catalog) mutate(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire index lock: %w", err)
	}
	defer c.lock.Unlock()

	if err := c.load(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return err
	}
	return c.save()
}

// Add appends a new record and persists the index. An id collision is an
// explicit error, never a silent overwrite.
func (c *Catalog) Add(rec *ImageRecord) error {
	return c.mutate(func() error {
		for i := range c.records {
			if c.records[i].ID == rec.ID {
				return fmt.Errorf("%w: %s", ErrIDCollision, rec.ID)
			}
		}
		stored := rec.clone()
		if stored.Tags == nil {
			stored.Tags = []string{}
		}
		c.records = append(c.records, *stored)
		return nil
	})
}

// Remove drops the record with the given id, reporting whether anything
// was removed. It never touches the backing file.
func (c *Catalog) Remove(id string) (bool, error) {
	removed := false
	err := c.mutate(func() error {
		kept := c.records[:0]
		for _, r := range c.records {
			if r.ID == id {
				removed = true
				continue
			}
			kept = append(kept, r)
		}
		c.records = kept
		return nil
	})
	return removed, err
}

// UpdateMetadata fills the mutable fields of a record. A nil pointer
// leaves that field untouched.
func (c *Catalog) UpdateMetadata(id string, description *string, tags *[]string) error {
	return c.mutate(func() error {
		for i := range c.records {
			if c.records[i].ID != id {
				continue
			}
			if description != nil {
				c.records[i].Description = *description
			}
			if tags != nil {
				c.records[i].Tags = append([]string{}, (*tags)...)
			}
			return nil
		}
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	})
}

// Get returns a copy of the record with the given id
func (c *Catalog) Get(id string) (*ImageRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.records {
		if c.records[i].ID == id {
			return c.records[i].clone(), true
		}
	}
	return nil, false
}

// List returns copies of all records in index order
func (c *Catalog) List() []*ImageRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*ImageRecord, len(c.records))
	for i := range c.records {
		out[i] = c.records[i].clone()
	}
	return out
}

// Len returns the number of cataloged records
func (c *Catalog) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// ReconcileAgainstStorage drops every record whose backing file is absent
// from the given authoritative storage listing and warns about storage
// files no record references. Idempotent; never deletes files.
func (c *Catalog) ReconcileAgainstStorage(listing []string) (ReconcileResult, error) {
	var result ReconcileResult

	present := make(map[string]bool, len(listing))
	for _, key := range listing {
		present[key] = true
	}

	err := c.mutate(func() error {
		referenced := make(map[string]bool, len(c.records))
		kept := c.records[:0]
		for _, r := range c.records {
			if !present[r.StorageKey()] {
				result.Removed = append(result.Removed, r.ID)
				continue
			}
			referenced[r.StorageKey()] = true
			kept = append(kept, r)
		}
		c.records = kept
		result.Kept = len(kept)

		for _, key := range listing {
			if !referenced[key] {
				result.Warnings = append(result.Warnings, fmt.Sprintf("storage file %s has no catalog record", key))
			}
		}
		return nil
	})
	if err != nil {
		return ReconcileResult{}, err
	}
	return result, nil
}

// MergeExternal unions the local index with an external snapshot by id.
// The external source wins ties. Merging the index with itself changes
// nothing.
func (c *Catalog) MergeExternal(external []ImageRecord) (MergeStats, error) {
	var stats MergeStats

	err := c.mutate(func() error {
		localByID := make(map[string]bool, len(c.records))
		for i := range c.records {
			localByID[c.records[i].ID] = true
		}

		merged := make([]ImageRecord, 0, len(c.records)+len(external))
		seen := make(map[string]bool, len(external))
		for _, r := range external {
			if seen[r.ID] {
				continue
			}
			seen[r.ID] = true
			merged = append(merged, *r.clone())
			if localByID[r.ID] {
				stats.Replaced++
			} else {
				stats.Added++
			}
		}
		for _, r := range c.records {
			if seen[r.ID] {
				continue
			}
			merged = append(merged, r)
			stats.Kept++
		}
		c.records = merged
		return nil
	})
	if err != nil {
		return MergeStats{}, err
	}
	return stats, nil
}

// RemoveMatching drops every record the predicate selects, returning how
// many were removed.
func (c *Catalog) RemoveMatching(pred func(ImageRecord) bool) (int, error) {
	removed := 0
	err := c.mutate(func() error {
		kept := c.records[:0]
		for _, r := range c.records {
			if pred(r) {
				removed++
				continue
			}
			kept = append(kept, r)
		}
		c.records = kept
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}
