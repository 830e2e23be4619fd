// Package pipeline wires cached models to their vector indexes.
//
// An Ingestor embeds one decoded image with every configured model in
// parallel and inserts the vectors under a caller-chosen identifier,
// typically the object-storage URL of the image. Failures are reported per
// model and never abort the models that succeed.
//
// A Searcher embeds a text or image query with one model, queries that
// model's index and hydrates the ranked identifiers into Hits.
package pipeline
