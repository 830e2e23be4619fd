package durable

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Silversoul-07/cloudforge/blobstore"
	"github.com/Silversoul-07/cloudforge/codec"
)

const (
	ManifestFileName = "MANIFEST"
	CurrentFileName  = "CURRENT"
	CurrentVersion   = 1
)

// Manifest describes the persisted state of one index.
type Manifest struct {
	Version       int           `json:"version"`
	ID            uint64        `json:"id"`
	Dimension     int           `json:"dimension"`
	Metric        string        `json:"metric"`
	NextSegmentID uint64        `json:"next_segment_id"`
	Segments      []SegmentInfo `json:"segments"`
	Tombstones    string        `json:"tombstones,omitempty"` // blob of forgotten positions
}

// SegmentInfo describes a single segment.
type SegmentInfo struct {
	ID          uint64 `json:"id"`
	RowCount    int    `json:"row_count"`
	Path        string `json:"path"` // relative to the index prefix
	Compression string `json:"compression"`
}

// Rows returns the number of flushed entries across segments.
func (m *Manifest) Rows() int {
	n := 0
	for _, s := range m.Segments {
		n += s.RowCount
	}
	return n
}

// manifestStore manages the manifest blob and the CURRENT pointer.
type manifestStore struct {
	store  blobstore.BlobStore
	prefix string
	codec  codec.Codec
	mu     sync.Mutex
}

func (s *manifestStore) path(name string) string {
	return s.prefix + name
}

// Load loads the current manifest, or an empty one if none was saved.
func (s *manifestStore) Load(ctx context.Context) (*Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	content, err := blobstore.ReadAll(ctx, s.store, s.path(CurrentFileName))
	if errors.Is(err, blobstore.ErrNotFound) {
		return &Manifest{Version: CurrentVersion}, nil
	}
	if err != nil {
		return nil, err
	}

	data, err := blobstore.ReadAll(ctx, s.store, s.path(strings.TrimSpace(string(content))))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := s.codec.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}

	if m.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported manifest version: %d (expected %d)", m.Version, CurrentVersion)
	}

	return &m, nil
}

// Save writes a new manifest generation, then swings CURRENT to it. The
// previous generation is removed once CURRENT points at the new one.
func (s *manifestStore) Save(ctx context.Context, m *Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := m.ID
	m.Version = CurrentVersion
	m.ID++

	filename := fmt.Sprintf("%s-%06d.json", ManifestFileName, m.ID)

	data, err := s.codec.Marshal(m)
	if err != nil {
		return err
	}

	if err := s.store.Put(ctx, s.path(filename), data); err != nil {
		m.ID = prev
		return err
	}

	if err := s.store.Put(ctx, s.path(CurrentFileName), []byte(filename)); err != nil {
		m.ID = prev
		_ = s.store.Delete(ctx, s.path(filename))
		return err
	}

	if prev > 0 {
		_ = s.store.Delete(ctx, s.path(fmt.Sprintf("%s-%06d.json", ManifestFileName, prev)))
	}

	return nil
}
