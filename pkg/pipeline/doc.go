// Package pipeline distributes work items across workers and merges the
// values they produce into one stream.
//
// # Overview
//
// FlatMap is the single entry point: every item is turned into a sub-stream
// (an iter.Seq2 of values and errors) by a user function, a Pool decides how
// many sub-streams are driven at once, and the results are fanned into one
// Stream. Partitioning is pull-based: a worker takes the next item only when
// it has finished the previous one.
//
// Ordering follows the sub-streams: values of one item arrive in the order
// its iterator yields them, with no ordering across items.
//
// # Pools
//
//   - ThreadPool drives up to n items concurrently on goroutines
//   - LocalPool drives items one after another, in order
//
// A panic inside a work item is recovered at the pool boundary. It stops the
// remaining work, is delivered as a *PanicError result, and is returned again
// by Stream.Close.
//
// # Basic Usage
//
//	stream := pipeline.FlatMap(ctx, pipeline.NewThreadPool(8), shards,
//	    func(ctx context.Context, s Shard) iter.Seq2[Row, error] {
//	        return s.Rows(ctx)
//	    })
//	defer stream.Close()
//
//	for row, err := range stream.All() {
//	    if err != nil {
//	        log.Error("shard failed", zap.Error(err))
//	        continue
//	    }
//	    process(row)
//	}
package pipeline
