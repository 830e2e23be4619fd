// Package distance provides vector distance calculations.
//
// # Supported Metrics
//
//   - MetricL2: Squared Euclidean distance, smaller is better
//   - MetricCosine: Inner product of L2-normalized vectors, larger is better
//
// # Usage
//
//	dist := distance.SquaredL2(a, b)
//	sim := distance.Dot(a, b)
//	ok := distance.NormalizeL2InPlace(vec)
package distance
