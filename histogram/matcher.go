package histogram

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/Silversoul-07/cloudforge/blobstore"
	"github.com/Silversoul-07/cloudforge/codec"
)

// Matcher holds an in-memory fingerprint corpus. It is safe for concurrent use.
type Matcher struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]Fingerprint
}

// NewMatcher returns an empty matcher.
func NewMatcher() *Matcher {
	return &Matcher{byID: make(map[string]Fingerprint)}
}

// Add stores or replaces the fingerprint for id. Replacing keeps the
// original position.
func (m *Matcher) Add(id string, f Fingerprint) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[id]; !ok {
		m.order = append(m.order, id)
	}
	m.byID[id] = f
}

// Remove deletes id and reports whether it was present.
func (m *Matcher) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[id]; !ok {
		return false
	}
	delete(m.byID, id)
	m.order = slices.DeleteFunc(m.order, func(s string) bool { return s == id })
	return true
}

// Get returns the fingerprint stored for id.
func (m *Matcher) Get(id string) (Fingerprint, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.byID[id]
	return f, ok
}

// Len returns the corpus size.
func (m *Matcher) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

// Search ranks the corpus against target.
func (m *Matcher) Search(target Fingerprint, limit int) []Match {
	return Search(target, m.corpus(), limit)
}

func (m *Matcher) corpus() []Candidate {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Candidate, len(m.order))
	for i, id := range m.order {
		out[i] = Candidate{ID: id, Fingerprint: m.byID[id]}
	}
	return out
}

type snapshot struct {
	Entries []snapshotEntry `json:"entries"`
}

type snapshotEntry struct {
	ID    string    `json:"id"`
	Color []float32 `json:"color"`
}

// Save writes the corpus to name in store.
func (m *Matcher) Save(ctx context.Context, store blobstore.BlobStore, name string, c codec.Codec) error {
	corpus := m.corpus()

	snap := snapshot{Entries: make([]snapshotEntry, len(corpus))}
	for i, cand := range corpus {
		snap.Entries[i] = snapshotEntry{ID: cand.ID, Color: cand.Fingerprint.Slice()}
	}

	data, err := c.Marshal(snap)
	if err != nil {
		return err
	}
	return store.Put(ctx, name, data)
}

// Load adds the corpus saved at name. A missing blob leaves the matcher unchanged.
func (m *Matcher) Load(ctx context.Context, store blobstore.BlobStore, name string, c codec.Codec) error {
	data, err := blobstore.ReadAll(ctx, store, name)
	if errors.Is(err, blobstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var snap snapshot
	if err := c.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode color corpus: %w", err)
	}

	for _, e := range snap.Entries {
		f, err := FromSlice(e.Color)
		if err != nil {
			return fmt.Errorf("color corpus entry %q: %w", e.ID, err)
		}
		m.Add(e.ID, f)
	}
	return nil
}
