// Package embed implements the model kinds served through the model cache:
// image-text embedding models, the aesthetic scorer and the tag model.
//
// The set of kinds is closed. Each kind has a Spec in the catalog and a
// loader obtained with LoaderFor; callers never construct models directly.
package embed
