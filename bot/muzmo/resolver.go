package muzmo

import (
	"bytes"
	"context"
	"net/url"
	"time"

	"github.com/liuran001/MuzmoBot-Go/bot"
	"github.com/liuran001/MuzmoBot-Go/bot/metrics"
)

// InfoFetcher retrieves an item's info page with a single request.
type InfoFetcher interface {
	FetchInfo(ctx context.Context, itemID string) ([]byte, error)
	BaseURL() *url.URL
}

// Resolver turns an item id into a direct media link with a bounded number
// of info page fetches.
type Resolver struct {
	fetcher     InfoFetcher
	maxAttempts int
	retryDelay  time.Duration
	logger      bot.Logger
}

// NewResolver creates a resolver. maxAttempts below 1 is treated as 1.
func NewResolver(fetcher InfoFetcher, maxAttempts int, retryDelay time.Duration, logger bot.Logger) *Resolver {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if retryDelay < 0 {
		retryDelay = 0
	}
	return &Resolver{
		fetcher:     fetcher,
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
		logger:      logger,
	}
}

// Resolve fetches and parses the info page until a media link shows up or the
// attempts run out. Every fetch error counts as a spent attempt.
func (r *Resolver) Resolve(ctx context.Context, itemID string) (*ResolvedLink, error) {
	base := r.fetcher.BaseURL()
	var lastErr error

	attempt := 0
	for attempt < r.maxAttempts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		attempt++

		body, err := r.fetcher.FetchInfo(ctx, itemID)
		if err == nil {
			if link, ok := ExtractMediaURL(bytes.NewReader(body), base); ok {
				metrics.ObserveResolution(true, attempt)
				if r.logger != nil {
					r.logger.Debug("media link resolved", "item_id", itemID, "attempts", attempt)
				}
				return &ResolvedLink{URL: link, AttemptsUsed: attempt}, nil
			}
			lastErr = nil
		} else {
			lastErr = err
		}

		if r.logger != nil {
			r.logger.Debug("media link attempt failed", "item_id", itemID, "attempt", attempt, "error", err)
		}
		if attempt < r.maxAttempts && r.retryDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.retryDelay):
			}
		}
	}

	metrics.ObserveResolution(false, attempt)
	if r.logger != nil {
		r.logger.Warn("media link unavailable", "item_id", itemID, "attempts", attempt)
	}
	return nil, &ResolutionError{ItemID: itemID, Attempts: attempt, Last: lastErr}
}
