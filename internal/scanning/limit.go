package scanning

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited wraps a Scanner so that calls to the backend never exceed a
// fixed rate. Requests wait for a token until their context is done.
type RateLimited struct {
	Scanner
	limiter *rate.Limiter
}

// NewRateLimited limits next to rps requests per second with the given
// burst. A non-positive rps returns next unchanged.
func NewRateLimited(next Scanner, rps float64, burst int) Scanner {
	if rps <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		Scanner: next,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// ScanReceipt waits for the limiter before delegating
func (r *RateLimited) ScanReceipt(ctx context.Context, pngData []byte) (*ReceiptRecord, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, backendUnreachable(fmt.Errorf("waiting for rate limiter: %w", err))
	}
	return r.Scanner.ScanReceipt(ctx, pngData)
}
