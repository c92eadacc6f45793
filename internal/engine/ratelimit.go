package engine

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// rateChunk caps how much data a single limiter wait covers.
const rateChunk = 32 * 1024

// rateLimitedReader throttles reads to the limiter's rate.
type rateLimitedReader struct {
	ctx context.Context
	r   io.Reader
	l   *rate.Limiter
}

// newRateLimitedReader wraps r with the limiter. A nil limiter returns
// r unchanged.
func newRateLimitedReader(ctx context.Context, r io.Reader, l *rate.Limiter) io.Reader {
	if l == nil {
		return r
	}
	return &rateLimitedReader{ctx: ctx, r: r, l: l}
}

func (rl *rateLimitedReader) Read(p []byte) (int, error) {
	if len(p) > rateChunk {
		p = p[:rateChunk]
	}
	n, err := rl.r.Read(p)
	if n > 0 {
		if werr := rl.l.WaitN(rl.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}

// rateLimitedWriter throttles writes to the limiter's rate.
type rateLimitedWriter struct {
	ctx context.Context
	w   io.Writer
	l   *rate.Limiter
}

// newRateLimitedWriter wraps w with the limiter. A nil limiter returns
// w unchanged.
func newRateLimitedWriter(ctx context.Context, w io.Writer, l *rate.Limiter) io.Writer {
	if l == nil {
		return w
	}
	return &rateLimitedWriter{ctx: ctx, w: w, l: l}
}

func (rl *rateLimitedWriter) Write(p []byte) (int, error) {
	var written int
	for len(p) > 0 {
		chunk := p
		if len(chunk) > rateChunk {
			chunk = chunk[:rateChunk]
		}
		if err := rl.l.WaitN(rl.ctx, len(chunk)); err != nil {
			return written, err
		}
		n, err := rl.w.Write(chunk)
		written += n
		if err != nil {
			return written, err
		}
		p = p[n:]
	}
	return written, nil
}
