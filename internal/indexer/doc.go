// Package indexer walks a local bank of study PDFs and stores one searchable
// record per document.
//
// Each file goes through the same pipeline:
//
//  1. Classify the discipline from the directory names in its path
//  2. Skip it if a record with the same path already exists
//  3. Extract text and discard scanned or empty documents
//  4. Normalise the text, optionally with a repair model
//  5. Embed a bounded prefix and store the record
//
// Per-file failures are counted in Stats and never abort the run:
//
//	idx := indexer.New(indexer.Deps{Store: store, Embedder: emb, Logger: logger})
//	stats, err := idx.Run(ctx, indexer.Options{
//	    Roots:   []string{"/mnt/bank"},
//	    Workers: 4,
//	})
//	fmt.Printf("indexed %d, skipped %d, errors %d\n", stats.Indexed, stats.Skipped, stats.Errors)
//
// Runs are idempotent: the file path is the record key, so re-running over
// the same bank stores nothing new. Only one Run or Reclean may be active on
// an Indexer at a time; a second call returns ErrIndexingInProgress.
//
// Reclean revisits stored bodies that still look like raw PDF output and
// rewrites them in place. It stops early when the repair model runs out of
// credit or hits its rate limit.
package indexer
