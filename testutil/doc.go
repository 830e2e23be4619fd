// Package testutil provides testing utilities for cloudforge.
//
// This package is intended for use in tests only.
//
// # Random Vectors
//
//	rng := testutil.NewRNG(seed)
//	vecs := rng.UnitVectors(100, 768)
//
// # Exact Search (Ground Truth)
//
//	ids := testutil.BruteForceSearch(vecs, query, k, distance.MetricL2)
//
// # Synthetic Images
//
//	png := testutil.SolidPNG(t, 32, 32, color.RGBA{R: 255, A: 255})
//
// # Inference Runtime
//
//	rt := testutil.NewFakeRuntime()
//	rt.AddModel(inference.Info{Name: "clip", Dimension: 768, ...})
package testutil
