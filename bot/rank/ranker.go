package rank

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/liuran001/MuzmoBot-Go/bot"
	"github.com/liuran001/MuzmoBot-Go/bot/metrics"
	"github.com/liuran001/MuzmoBot-Go/bot/muzmo"
	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultPartitions = 4

	wholeWeight     = 50
	quickWeight     = 30
	substringBonus  = 40
	tokenMatchBonus = 20
)

// Ranker orders candidates by fuzzy similarity to the query.
type Ranker struct {
	pool       bot.WorkerPool
	partitions int
	logger     bot.Logger
}

// New creates a ranker that scores partitions on pool. A nil pool scores
// inline.
func New(pool bot.WorkerPool, partitions int, logger bot.Logger) *Ranker {
	if partitions <= 0 {
		partitions = DefaultPartitions
	}
	return &Ranker{pool: pool, partitions: partitions, logger: logger}
}

type scored struct {
	score     float64
	candidate muzmo.Candidate
}

// Top returns the k best candidates. Input of at most k candidates is
// returned as is.
func (r *Ranker) Top(ctx context.Context, candidates []muzmo.Candidate, query string, k int) ([]muzmo.Candidate, error) {
	if k <= 0 {
		return []muzmo.Candidate{}, nil
	}
	if len(candidates) <= k {
		return candidates, nil
	}

	start := time.Now()
	results := make([]scored, len(candidates))
	q := strings.ToLower(query)

	var g errgroup.Group
	for _, part := range partition(len(candidates), r.partitions) {
		work := func() error {
			for i := part[0]; i < part[1]; i++ {
				results[i] = scored{score: score(q, strings.ToLower(candidates[i].DisplayName)), candidate: candidates[i]}
			}
			return nil
		}
		if r.pool == nil {
			_ = work()
			continue
		}
		g.Go(func() error {
			return r.pool.SubmitWaitContext(ctx, work)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})

	out := make([]muzmo.Candidate, k)
	for i := range out {
		out[i] = results[i].candidate
	}

	metrics.RankDuration.Observe(time.Since(start).Seconds())
	if r.logger != nil {
		r.logger.Debug("ranked candidates", "candidates", len(candidates), "top", k, "best_score", results[0].score)
	}
	return out, nil
}

// partition splits [0,n) into at most parts contiguous ranges of near equal size.
func partition(n, parts int) [][2]int {
	if n == 0 {
		return nil
	}
	if parts > n {
		parts = n
	}
	size := (n + parts - 1) / parts
	out := make([][2]int, 0, parts)
	for lo := 0; lo < n; lo += size {
		hi := min(lo+size, n)
		out = append(out, [2]int{lo, hi})
	}
	return out
}

// Score computes 50*ratio + 30*quickRatio + bonus for the lower-cased pair.
func Score(query, name string) float64 {
	return score(strings.ToLower(query), strings.ToLower(name))
}

func score(query, name string) float64 {
	m := difflib.NewMatcher(splitRunes(query), splitRunes(name))
	return wholeWeight*m.Ratio() + quickWeight*m.QuickRatio() + bonus(query, name)
}

func bonus(query, name string) float64 {
	if strings.Contains(name, query) {
		return substringBonus
	}
	for _, token := range strings.Fields(query) {
		if strings.Contains(name, token) {
			return tokenMatchBonus
		}
	}
	return 0
}

func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
