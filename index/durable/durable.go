// Package durable provides a nearest-neighbor index persisted to a blob store.
//
// Inserts are buffered in memory and become queryable only after Flush, which
// writes them as one compressed segment and publishes a new manifest. After a
// process start, Load must run before the first Query; it rebuilds the
// in-memory scan structure from the manifest's segments.
//
// Blob layout under the index prefix:
//
//	CURRENT                    name of the live manifest
//	MANIFEST-000007.json       segment list, dimension, metric, tombstones
//	segments/000003.seg        LZ4/ZSTD framed vectors and identifiers
//	tombstones-000007.roar     roaring bitmap of forgotten positions
package durable

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Silversoul-07/cloudforge/blobstore"
	"github.com/Silversoul-07/cloudforge/codec"
	"github.com/Silversoul-07/cloudforge/distance"
	"github.com/Silversoul-07/cloudforge/index"
	"github.com/Silversoul-07/cloudforge/index/flat"
	"github.com/Silversoul-07/cloudforge/internal/compression"
)

var _ index.Durable = (*Index)(nil)

// Options configures a durable index.
type Options struct {
	Dimension   int
	Metric      distance.Metric
	Compression compression.Type
	Codec       codec.Codec
	Logger      *slog.Logger
}

// DefaultOptions uses LZ4 segments and go-json manifests.
var DefaultOptions = Options{
	Metric:      distance.MetricL2,
	Compression: compression.LZ4,
	Codec:       codec.Default,
}

// Index is a durable nearest-neighbor index.
type Index struct {
	mu        sync.Mutex // serializes Load, Flush, Forget and pending writes
	store     blobstore.BlobStore
	prefix    string
	opts      Options
	manifests *manifestStore

	manifest   *Manifest
	ids        []string // identifiers of flushed entries by global position
	tombstones *roaring.Bitmap
	pending    []entry

	mem atomic.Pointer[flat.Flat] // nil until Load
}

// New creates a durable index rooted at prefix in store.
func New(store blobstore.BlobStore, prefix string, optFns ...func(*Options)) (*Index, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Dimension <= 0 {
		return nil, errors.New("durable: dimension must be positive")
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if prefix != "" && prefix[len(prefix)-1] != '/' {
		prefix += "/"
	}

	return &Index{
		store:      store,
		prefix:     prefix,
		opts:       opts,
		manifests:  &manifestStore{store: store, prefix: prefix, codec: opts.Codec},
		tombstones: roaring.New(),
	}, nil
}

// Dimension implements index.Index.
func (x *Index) Dimension() int { return x.opts.Dimension }

// Metric implements index.Index.
func (x *Index) Metric() distance.Metric { return x.opts.Metric }

// Len returns the number of queryable entries (zero before Load).
func (x *Index) Len() int {
	if mem := x.mem.Load(); mem != nil {
		return mem.Len()
	}
	return 0
}

// Loaded reports whether Load has completed.
func (x *Index) Loaded() bool { return x.mem.Load() != nil }

// Pending returns the number of inserts awaiting Flush.
func (x *Index) Pending() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.pending)
}

// Insert buffers vec under id until the next Flush.
func (x *Index) Insert(_ context.Context, vec []float32, id string) error {
	prepared, err := index.Prepare(x.opts.Dimension, x.opts.Metric, vec)
	if err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	x.pending = append(x.pending, entry{id: id, vec: slices.Clone(prepared)})

	return nil
}

// Query implements index.Index. It fails with index.ErrNotLoaded before Load.
func (x *Index) Query(ctx context.Context, vec []float32, k int) ([]index.Result, error) {
	mem := x.mem.Load()
	if mem == nil {
		return nil, index.ErrNotLoaded
	}
	return mem.Query(ctx, vec, k)
}

// Load reads the manifest and every segment into memory, replacing any
// previously loaded state. Pending inserts are kept.
func (x *Index) Load(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	m, err := x.manifests.Load(ctx)
	if err != nil {
		return err
	}
	if err := x.checkManifest(m); err != nil {
		return err
	}

	tombstones := roaring.New()
	if m.Tombstones != "" {
		data, err := blobstore.ReadAll(ctx, x.store, x.prefix+m.Tombstones)
		if err != nil {
			return fmt.Errorf("read tombstones: %w", err)
		}
		if err := tombstones.UnmarshalBinary(data); err != nil {
			return fmt.Errorf("decode tombstones: %w", err)
		}
	}

	mem, err := x.newFlat()
	if err != nil {
		return err
	}

	ids := make([]string, 0, m.Rows())
	for _, seg := range m.Segments {
		blob, err := blobstore.ReadAll(ctx, x.store, x.prefix+seg.Path)
		if err != nil {
			return fmt.Errorf("read segment %d: %w", seg.ID, err)
		}

		entries, err := decodeSegment(blob, x.opts.Dimension)
		if err != nil {
			return fmt.Errorf("segment %d: %w", seg.ID, err)
		}
		if len(entries) != seg.RowCount {
			return fmt.Errorf("segment %d: %w: %d rows, manifest says %d",
				seg.ID, ErrCorruptSegment, len(entries), seg.RowCount)
		}

		for _, e := range entries {
			pos := uint32(len(ids))
			ids = append(ids, e.id)
			if tombstones.Contains(pos) {
				continue
			}
			if err := mem.Insert(ctx, e.vec, e.id); err != nil {
				return fmt.Errorf("segment %d: %w", seg.ID, err)
			}
		}
	}

	x.manifest = m
	x.ids = ids
	x.tombstones = tombstones
	x.mem.Store(mem)

	x.opts.Logger.Info("Index loaded",
		"prefix", x.prefix,
		"segments", len(m.Segments),
		"entries", mem.Len(),
		"tombstones", tombstones.GetCardinality())

	return nil
}

// Flush persists pending inserts as a new segment. When the index is loaded
// they become queryable immediately afterwards.
func (x *Index) Flush(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if len(x.pending) == 0 {
		return nil
	}

	m, err := x.currentManifest(ctx)
	if err != nil {
		return err
	}

	blob, err := encodeSegment(x.opts.Dimension, x.pending, x.opts.Compression)
	if err != nil {
		return err
	}

	segID := m.NextSegmentID
	path := fmt.Sprintf("segments/%06d.seg", segID)
	if err := x.store.Put(ctx, x.prefix+path, blob); err != nil {
		return fmt.Errorf("write segment: %w", err)
	}

	next := *m
	next.Segments = append(slices.Clone(m.Segments), SegmentInfo{
		ID:          segID,
		RowCount:    len(x.pending),
		Path:        path,
		Compression: x.opts.Compression.String(),
	})
	next.NextSegmentID = segID + 1

	if err := x.manifests.Save(ctx, &next); err != nil {
		_ = x.store.Delete(ctx, x.prefix+path)
		return fmt.Errorf("save manifest: %w", err)
	}
	x.manifest = &next

	if mem := x.mem.Load(); mem != nil {
		for _, e := range x.pending {
			x.ids = append(x.ids, e.id)
			if err := mem.Insert(ctx, e.vec, e.id); err != nil {
				return err
			}
		}
	}

	x.opts.Logger.Debug("Index flushed", "prefix", x.prefix, "segment", segID, "rows", len(x.pending))
	x.pending = nil

	return nil
}

// Forget removes every entry stored under id, pending or flushed, and
// persists the tombstones. It requires Load.
func (x *Index) Forget(ctx context.Context, id string) (int, error) {
	mem := x.mem.Load()
	if mem == nil {
		return 0, index.ErrNotLoaded
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	removed := 0
	kept := x.pending[:0]
	for _, e := range x.pending {
		if e.id == id {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	x.pending = kept

	next := x.tombstones.Clone()
	flushed := 0
	for pos, have := range x.ids {
		if have == id && !next.Contains(uint32(pos)) {
			next.Add(uint32(pos))
			flushed++
		}
	}
	if flushed == 0 {
		return removed, nil
	}

	if err := x.saveTombstones(ctx, next); err != nil {
		return removed, err
	}

	if _, err := mem.Forget(ctx, id); err != nil {
		return removed, err
	}

	return removed + flushed, nil
}

func (x *Index) saveTombstones(ctx context.Context, bm *roaring.Bitmap) error {
	next := *x.manifest
	old := next.Tombstones

	data, err := bm.ToBytes()
	if err != nil {
		return err
	}

	name := fmt.Sprintf("tombstones-%06d.roar", next.ID+1)
	if err := x.store.Put(ctx, x.prefix+name, data); err != nil {
		return fmt.Errorf("write tombstones: %w", err)
	}

	next.Tombstones = name
	if err := x.manifests.Save(ctx, &next); err != nil {
		_ = x.store.Delete(ctx, x.prefix+name)
		return fmt.Errorf("save manifest: %w", err)
	}

	if old != "" {
		_ = x.store.Delete(ctx, x.prefix+old)
	}

	x.manifest = &next
	x.tombstones = bm

	return nil
}

// currentManifest returns the loaded manifest, reading it from the store for
// flushes that happen before Load.
func (x *Index) currentManifest(ctx context.Context) (*Manifest, error) {
	if x.manifest != nil {
		return x.manifest, nil
	}

	m, err := x.manifests.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := x.checkManifest(m); err != nil {
		return nil, err
	}
	x.manifest = m

	return m, nil
}

func (x *Index) checkManifest(m *Manifest) error {
	if m.Dimension == 0 && len(m.Segments) == 0 {
		m.Dimension = x.opts.Dimension
		m.Metric = x.opts.Metric.String()
		return nil
	}
	if m.Dimension != x.opts.Dimension {
		return &index.ErrDimensionMismatch{Expected: x.opts.Dimension, Actual: m.Dimension}
	}
	if m.Metric != x.opts.Metric.String() {
		return fmt.Errorf("durable: stored metric %s does not match %s", m.Metric, x.opts.Metric)
	}
	return nil
}

func (x *Index) newFlat() (*flat.Flat, error) {
	return flat.New(func(o *flat.Options) {
		o.Dimension = x.opts.Dimension
		o.Metric = x.opts.Metric
	})
}

// Close flushes pending inserts.
func (x *Index) Close() error {
	return x.Flush(context.Background())
}
