package frames

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Boundary locates one frame inside a raw buffer.
type Boundary struct {
	Offset int
	Kind   Kind
}

// Index walks data once and returns every frame start, applying the same
// resynchronisation rules as Scanner. Frame discovery is inherently
// sequential; decoding the indexed frames is not.
func Index(data []byte) ([]Boundary, Stats) {
	var (
		out   []Boundary
		stats Stats
	)
	off := 0
	for off+HEADER_SIZE <= len(data) {
		kind := matchHeader(data[off:])
		if kind == KindUnknown {
			off++
			stats.SkippedBytes++
			continue
		}
		if off+kind.Size() > len(data) {
			break
		}
		out = append(out, Boundary{Offset: off, Kind: kind})
		off += kind.Size()
	}
	stats.TruncatedBytes = int64(len(data) - off)
	return out, stats
}

// DecodeParallel decodes an in-memory raw buffer with a pool of workers.
// The returned frames are in stream order and identical to what a Scanner
// over the same bytes yields. workers <= 0 uses GOMAXPROCS.
func DecodeParallel(ctx context.Context, data []byte, workers int) ([]Frame, Stats, error) {
	bounds, stats := Index(data)
	out := make([]Frame, len(bounds))
	if len(bounds) == 0 {
		return out, stats, nil
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	chunk := (len(bounds) + workers - 1) / workers
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for lo := 0; lo < len(bounds); lo += chunk {
		hi := min(lo+chunk, len(bounds))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if i%4096 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				b := bounds[i]
				out[i] = decodeFrame(b.Kind, data[b.Offset:b.Offset+b.Kind.Size()], int64(b.Offset))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, err
	}

	for _, f := range out {
		stats.observe(f)
	}
	return out, stats, nil
}
