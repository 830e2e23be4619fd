// Package inference defines the Runtime that executes neural network forward
// passes on behalf of the embed package, and an HTTP client for a model
// server exposing them.
//
// Image-text encoders and the tag network are served out of process; the Go
// side owns preprocessing, normalization, post-processing and caching.
package inference
