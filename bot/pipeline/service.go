package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/liuran001/MuzmoBot-Go/bot"
	"github.com/liuran001/MuzmoBot-Go/bot/metrics"
	"github.com/liuran001/MuzmoBot-Go/bot/muzmo"
	"github.com/liuran001/MuzmoBot-Go/bot/session"
	"github.com/liuran001/MuzmoBot-Go/bot/transfer"
	"gorm.io/gorm"
)

var (
	// ErrNoResults is returned when no page produced a candidate.
	ErrNoResults = errors.New("pipeline: nothing found")
	// ErrQueryTooShort is returned for queries below the minimum length.
	ErrQueryTooShort = errors.New("pipeline: query too short")
)

// PageFetcher fetches search pages from the upstream site.
type PageFetcher interface {
	FetchSearchPages(ctx context.Context, query string, pages int) []muzmo.PageResult
	SearchURL(query string, page int) string
	InfoURL(itemID string) string
}

// LinkResolver resolves an item id to a media link.
type LinkResolver interface {
	Resolve(ctx context.Context, itemID string) (*muzmo.ResolvedLink, error)
}

// Ranker orders candidates against the query.
type Ranker interface {
	Top(ctx context.Context, candidates []muzmo.Candidate, query string, k int) ([]muzmo.Candidate, error)
}

// Transferer delivers a resolved media link.
type Transferer interface {
	Transfer(ctx context.Context, link *muzmo.ResolvedLink, meta transfer.AudioMeta, d transfer.Deliverer) (*transfer.Outcome, error)
}

// Deliverer is a transfer.Deliverer that can also re-send a known file id.
type Deliverer interface {
	transfer.Deliverer
	DeliverCached(ctx context.Context, fileID string, meta transfer.AudioMeta) (*transfer.Delivery, error)
}

// Choice is one selectable search result.
type Choice struct {
	Label string
	Token string
}

// SearchResult is what a chat renders after a search.
type SearchResult struct {
	Session     *session.Session
	Choices     []Choice
	SearchURL   string
	FailedPages int
}

// Selection identifies a user's pick and who made it.
type Selection struct {
	ChatID   int64
	ChatName string
	UserID   int64
	UserName string
	Token    string
}

// Outcome reports a completed delivery.
type Outcome struct {
	Candidate    muzmo.Candidate
	Mode         transfer.Mode
	FileID       string
	Size         int64
	AttemptsUsed int
}

type Options struct {
	Pages          int
	Results        int
	MinQueryLength int
}

type Service struct {
	fetcher  PageFetcher
	ranker   Ranker
	resolver LinkResolver
	transfer Transferer
	sessions *session.Store
	repo     bot.SongRepository
	logger   bot.Logger

	pages          int
	results        int
	minQueryLength int
}

func New(fetcher PageFetcher, ranker Ranker, resolver LinkResolver, transferer Transferer, sessions *session.Store, repo bot.SongRepository, logger bot.Logger, opts Options) *Service {
	if opts.Pages <= 0 {
		opts.Pages = 2
	}
	if opts.Results <= 0 {
		opts.Results = 10
	}
	if opts.MinQueryLength < 0 {
		opts.MinQueryLength = 0
	}
	return &Service{
		fetcher:        fetcher,
		ranker:         ranker,
		resolver:       resolver,
		transfer:       transferer,
		sessions:       sessions,
		repo:           repo,
		logger:         logger,
		pages:          opts.Pages,
		results:        opts.Results,
		minQueryLength: opts.MinQueryLength,
	}
}

// MinQueryLength returns the minimum accepted query length in characters.
func (s *Service) MinQueryLength() int {
	return s.minQueryLength
}

// SearchURL links to the site's own results page for query.
func (s *Service) SearchURL(query string) string {
	return s.fetcher.SearchURL(strings.TrimSpace(query), 0)
}

// Search runs fetch, extract, dedupe and rank for chatID and publishes the
// result as the chat's new session.
func (s *Service) Search(ctx context.Context, chatID int64, query string) (*SearchResult, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < s.minQueryLength {
		return nil, ErrQueryTooShort
	}

	pending := s.sessions.Begin(ctx, chatID)
	searchCtx := pending.Context()

	pages := s.fetcher.FetchSearchPages(searchCtx, query, s.pages)
	var candidates []muzmo.Candidate
	failed := 0
	for _, page := range pages {
		if page.Err != nil {
			failed++
			continue
		}
		candidates = append(candidates, muzmo.ExtractCandidates(bytes.NewReader(page.Body))...)
	}
	candidates = muzmo.Dedupe(candidates)

	if err := searchCtx.Err(); err != nil {
		s.sessions.Abandon(pending)
		return nil, superseded(ctx, err)
	}
	if len(candidates) == 0 {
		s.sessions.Abandon(pending)
		metrics.SearchesTotal.WithLabelValues("empty").Inc()
		if s.logger != nil {
			s.logger.Info("search found nothing", "chat_id", chatID, "failed_pages", failed)
		}
		return nil, ErrNoResults
	}

	top, err := s.ranker.Top(searchCtx, candidates, query, s.results)
	if err != nil {
		s.sessions.Abandon(pending)
		if searchCtx.Err() != nil {
			return nil, superseded(ctx, err)
		}
		metrics.SearchesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("rank candidates: %w", err)
	}

	sess, err := s.sessions.Commit(pending, query, top)
	if err != nil {
		return nil, err
	}

	choices := make([]Choice, len(sess.Candidates))
	for i, c := range sess.Candidates {
		choices[i] = Choice{Label: c.Label(), Token: sess.Token(i)}
	}
	metrics.SearchesTotal.WithLabelValues("ok").Inc()
	if s.logger != nil {
		s.logger.Debug("search completed", "chat_id", chatID, "candidates", len(candidates), "choices", len(choices), "failed_pages", failed)
	}
	return &SearchResult{
		Session:     sess,
		Choices:     choices,
		SearchURL:   s.SearchURL(query),
		FailedPages: failed,
	}, nil
}

// superseded tells a cancelled caller apart from a newer search for the chat.
func superseded(parent context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return session.ErrSuperseded
	}
	return err
}

// Candidate returns the candidate a token points at.
func (s *Service) Candidate(chatID int64, token string) (muzmo.Candidate, error) {
	sessionID, index, err := session.ParseToken(token)
	if err != nil {
		return muzmo.Candidate{}, err
	}
	return s.sessions.Lookup(chatID, sessionID, index)
}

// Select delivers the chosen candidate. Known items are re-sent by file id;
// others are resolved and transferred. The session ends on success.
func (s *Service) Select(ctx context.Context, sel Selection, d Deliverer) (*Outcome, error) {
	return s.selectCandidate(ctx, sel, d, true)
}

// Retry runs resolution and transfer once more for a selection that failed.
// The session stays valid until a delivery succeeds.
func (s *Service) Retry(ctx context.Context, sel Selection, d Deliverer) (*Outcome, error) {
	return s.selectCandidate(ctx, sel, d, false)
}

func (s *Service) selectCandidate(ctx context.Context, sel Selection, d Deliverer, useCache bool) (*Outcome, error) {
	sessionID, index, err := session.ParseToken(sel.Token)
	if err != nil {
		return nil, err
	}
	candidate, err := s.sessions.Lookup(sel.ChatID, sessionID, index)
	if err != nil {
		return nil, err
	}

	meta := transfer.AudioMeta{
		Performer: candidate.Performer(),
		Title:     candidate.Title(),
		Source:    s.fetcher.InfoURL(candidate.ItemID),
	}

	var out *Outcome
	if useCache {
		out = s.deliverCached(ctx, candidate, meta, d)
	}
	if out == nil {
		out, err = s.deliverFresh(ctx, sel, candidate, meta, d)
		if err != nil {
			return nil, err
		}
	}

	s.sessions.Discard(sel.ChatID, sessionID)
	if s.repo != nil {
		if err := s.repo.IncrementSendCount(ctx); err != nil && s.logger != nil {
			s.logger.Error("failed to increment send count", "error", err)
		}
	}
	return out, nil
}

func (s *Service) deliverCached(ctx context.Context, c muzmo.Candidate, meta transfer.AudioMeta, d Deliverer) *Outcome {
	if s.repo == nil {
		return nil
	}
	cached, err := s.repo.FindByItemID(ctx, c.ItemID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) && s.logger != nil {
			s.logger.Warn("failed to read cache", "item_id", c.ItemID, "error", err)
		}
		return nil
	}
	if cached == nil || cached.FileID == "" {
		return nil
	}

	delivery, err := d.DeliverCached(ctx, cached.FileID, meta)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("cached file id rejected, dropping cache entry", "item_id", c.ItemID, "error", err)
		}
		if err := s.repo.DeleteByItemID(ctx, c.ItemID); err != nil && s.logger != nil {
			s.logger.Error("failed to drop cache entry", "item_id", c.ItemID, "error", err)
		}
		return nil
	}

	metrics.TransfersTotal.WithLabelValues(string(transfer.ModeCached)).Inc()
	fileID := cached.FileID
	if delivery != nil && delivery.FileID != "" {
		fileID = delivery.FileID
	}
	return &Outcome{Candidate: c, Mode: transfer.ModeCached, FileID: fileID, Size: cached.MusicSize}
}

func (s *Service) deliverFresh(ctx context.Context, sel Selection, c muzmo.Candidate, meta transfer.AudioMeta, d Deliverer) (*Outcome, error) {
	link, err := s.resolver.Resolve(ctx, c.ItemID)
	if err != nil {
		return nil, err
	}

	res, err := s.transfer.Transfer(ctx, link, meta, d)
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		Candidate:    c,
		Mode:         res.Mode,
		FileID:       res.FileID,
		Size:         res.Size,
		AttemptsUsed: link.AttemptsUsed,
	}
	s.record(ctx, sel, c, meta, link, out)
	return out, nil
}

func (s *Service) record(ctx context.Context, sel Selection, c muzmo.Candidate, meta transfer.AudioMeta, link *muzmo.ResolvedLink, out *Outcome) {
	if s.repo == nil || out.FileID == "" {
		return
	}
	fileName := meta.FileName
	if fileName == "" {
		fileName = transfer.FileName(meta.Performer, meta.Title, link.URL)
	}
	song := &bot.SongInfo{
		ItemID:        c.ItemID,
		DisplayName:   c.DisplayName,
		DurationLabel: c.DurationLabel,
		Performer:     meta.Performer,
		Title:         meta.Title,
		FileName:      fileName,
		MusicSize:     out.Size,
		FileID:        out.FileID,
		Delivery:      string(out.Mode),
		FromUserID:    sel.UserID,
		FromUserName:  sel.UserName,
		FromChatID:    sel.ChatID,
		FromChatName:  sel.ChatName,
	}
	if err := s.repo.Create(ctx, song); err != nil && s.logger != nil {
		s.logger.Error("failed to record delivered file", "item_id", c.ItemID, "error", err)
	}
}
