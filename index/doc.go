// Package index provides the per-model nearest-neighbor index contract and
// its shared building blocks.
//
// Each embedding model owns one Index with a fixed dimension and metric:
//
//   - flat: exact in-process scan over aligned vector/identifier slices
//   - durable: flat index backed by a blob store, with explicit Load/Flush
//   - chromem: chromem-go collection, cosine only
//
// # Ranking
//
// Results are sorted best-first: ascending squared Euclidean distance for
// distance.MetricL2, descending inner product of normalized vectors for
// distance.MetricCosine. Rank is the 0-based position in that order.
//
// # Empty Indexes
//
// Querying an index with no entries returns an empty slice, not an error.
package index
