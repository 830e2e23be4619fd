// Package cloudforge is the vision core of an image-sharing service: it
// caches heavyweight embedding and scoring models, indexes every uploaded
// image under each configured embedding model, and answers text, image and
// color similarity queries.
//
// # Quick Start
//
//	ctx := context.Background()
//	store := blobstore.NewLocalStore("./data", "https://cdn.example.com")
//	runtime, _ := inference.NewClient("http://localhost:8000")
//
//	engine, err := cloudforge.New(ctx, store, runtime)
//	if err != nil {
//	    panic(err)
//	}
//	defer engine.Close()
//
//	res, _ := engine.Ingest(ctx, data, "beach.jpg")
//	fmt.Println(res.ID, res.Succeeded())
//
//	hits, _ := engine.Search(ctx, cloudforge.SearchRequest{
//	    Model: "siglip",
//	    Text:  "a sunset over the sea",
//	    K:     10,
//	})
//
// # Models
//
// Models load lazily on first use and are evicted after an idle timeout
// (five minutes by default). Every use holds a lease, so a model is never
// closed while a request is running on it. Supported models:
//
//   - clip: text and image embeddings, 768 dimensions, squared L2
//   - siglip: text and image embeddings, 1152 dimensions, cosine
//   - dino: image embeddings only, 1024 dimensions, squared L2
//   - aesthetic: a regressor over clip embeddings (Score)
//   - tagger: multi-label tag probabilities (Tag)
//
// # Indexes
//
// Each embedding model has one index. The default is an exact in-memory
// scan; WithDurableIndexes persists indexes to a blob store (Flush after
// inserts, Load after restart) and WithChromemIndexes uses chromem-go.
//
// # Ingestion
//
// Ingest decodes the image once, stores it under a random name, and embeds
// it with every model in parallel. A model that fails is reported in the
// result; the others still index the image.
package cloudforge
