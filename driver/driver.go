// Package driver dispatches chunk parsing across a bounded worker pool and
// streams the results to an output sink.
package driver

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"evtxlink/evtx"
	"evtxlink/logging"
	"evtxlink/sink"
)

// Options configures a Run call.
type Options struct {
	// Threads is the worker pool width; 0 means runtime.NumCPU(). A
	// value of 1 switches to the deterministic single-threaded mode
	// that walks chunks in strict file order on the calling goroutine.
	Threads int
	// ValidateChecksums promotes a chunk CRC32 mismatch from a warning
	// to a hard error.
	ValidateChecksums bool
}

// RecordHandler is invoked for every decoded record, successful or
// errored, in file order within its chunk (but not necessarily across
// chunks unless Threads == 1). An error returned from it stops the run:
// Run returns it, wrapped with the chunk index and record id, and the
// remaining chunks are not processed.
type RecordHandler func(chunkIndex int, rec evtx.Record) error

// Run dispatches every chunk of f through the worker pool described by
// opts, invoking handle for each decoded record and folding outcomes into
// stats. Cancellation is checked between records, relying on errgroup's
// context propagation rather than a bespoke done-channel/timeout pair.
func Run(ctx context.Context, f *evtx.File, stats *evtx.Stats, handle RecordHandler, opts Options) error {
	threads := opts.Threads
	if threads == 0 {
		threads = runtime.NumCPU()
	}

	if threads == 1 {
		return runSequential(ctx, f, stats, handle, opts)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(threads)

	for i := 0; i < f.ChunkCount; i++ {
		i := i
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			return processChunk(gctx, f, i, stats, handle, opts)
		})
	}

	if err := g.Wait(); err != nil {
		logging.Log("driver", "run aborted: %v", err)
		return err
	}
	return nil
}

// runSequential walks chunks in strict file order on the calling
// goroutine, guaranteeing output ordered by (chunk_index, record_index).
func runSequential(ctx context.Context, f *evtx.File, stats *evtx.Stats, handle RecordHandler, opts Options) error {
	for i := 0; i < f.ChunkCount; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := processChunk(ctx, f, i, stats, handle, opts); err != nil {
			return err
		}
	}
	return nil
}

// processChunk parses one chunk and walks its records, checking ctx
// between each so a cancelled run drops its in-flight record without
// emitting a partial one.
func processChunk(ctx context.Context, f *evtx.File, idx int, stats *evtx.Stats, handle RecordHandler, opts Options) error {
	c, err := f.ParseChunk(idx, opts.ValidateChecksums)
	if err != nil {
		logging.Log("chunk", "chunk %d: %v", idx, err)
		return nil // a single bad chunk does not abort the file
	}

	if stats != nil {
		stats.ObserveChunk(c)
	}

	for _, rec := range c.Records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := handle(idx, rec); err != nil {
			return fmt.Errorf("chunk %d record %d: %w", idx, rec.Meta.EventRecordID, err)
		}
	}
	return nil
}

// RunToSink is a convenience wrapper around Run that writes every
// successfully rendered record to dst using sink.WriteRecord, logging (via
// the "sink" component filter) but not failing the run on per-record
// render errors so best-effort output always reaches the caller.
func RunToSink(ctx context.Context, f *evtx.File, stats *evtx.Stats, dst sink.RecordSink, opts Options) error {
	return Run(ctx, f, stats, func(chunkIndex int, rec evtx.Record) error {
		if rec.Err != nil {
			logging.Log("sink", "chunk %d record %d: %v", chunkIndex, rec.Meta.EventRecordID, rec.Err)
			return nil
		}
		return sink.WriteRecord(dst, rec.Nodes)
	}, opts)
}
