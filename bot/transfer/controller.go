package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/liuran001/MuzmoBot-Go/bot"
	"github.com/liuran001/MuzmoBot-Go/bot/id3"
	"github.com/liuran001/MuzmoBot-Go/bot/metrics"
	"github.com/liuran001/MuzmoBot-Go/bot/muzmo"
	"github.com/liuran001/MuzmoBot-Go/bot/worker"
)

const (
	DefaultDirectLimit = 20 * megabyte
	DefaultChunkSize   = 64 * 1024
	DefaultTimeout     = 5 * time.Minute
)

type ProgressFunc func(written, total int64)

type Options struct {
	SizeLimit   int64
	DirectLimit int64
	ChunkSize   int
	CacheDir    string
	Timeout     time.Duration
	UserAgent   string
	HTTPClient  *http.Client
	Limiter     *worker.Limiter
	Tagger      id3.Tagger
	Progress    ProgressFunc
	Logger      bot.Logger
}

// Controller moves a resolved media file to the chat side.
type Controller struct {
	client      *retryablehttp.Client
	sizeLimit   int64
	directLimit int64
	chunkSize   int
	cacheDir    string
	timeout     time.Duration
	userAgent   string
	limiter     *worker.Limiter
	tagger      id3.Tagger
	progress    ProgressFunc
	logger      bot.Logger
}

func New(opts Options) *Controller {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	directLimit := opts.DirectLimit
	if directLimit < 0 {
		directLimit = 0
	}
	chunk := opts.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	cacheDir := strings.TrimSpace(opts.CacheDir)
	if cacheDir == "" {
		cacheDir = os.TempDir()
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   minDuration(timeout, 10*time.Second),
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   minDuration(timeout, 10*time.Second),
			ResponseHeaderTimeout: minDuration(timeout, 10*time.Second),
			ExpectContinueTimeout: 1 * time.Second,
		}}
	}
	client := retryablehttp.NewClient()
	client.HTTPClient = httpClient
	client.RetryMax = 0
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.Logger = nil

	return &Controller{
		client:      client,
		sizeLimit:   opts.SizeLimit,
		directLimit: directLimit,
		chunkSize:   chunk,
		cacheDir:    cacheDir,
		timeout:     timeout,
		userAgent:   strings.TrimSpace(opts.UserAgent),
		limiter:     opts.Limiter,
		tagger:      opts.Tagger,
		progress:    opts.Progress,
		logger:      opts.Logger,
	}
}

// Transfer checks the declared size and delivers the file either by URL or
// through a staging directory that is always removed before returning.
func (c *Controller) Transfer(ctx context.Context, link *muzmo.ResolvedLink, meta AudioMeta, d Deliverer) (*Outcome, error) {
	if link == nil || link.URL == "" {
		return nil, stageErr("request", errors.New("media link missing"))
	}
	if d == nil {
		return nil, stageErr("deliver", errors.New("deliverer missing"))
	}
	if meta.FileName == "" {
		meta.FileName = FileName(meta.Performer, meta.Title, link.URL)
	}

	var outcome *Outcome
	err := c.limiter.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		var err error
		outcome, err = c.transfer(ctx, link.URL, meta, d)
		return err
	})
	if err != nil {
		var oversize *OversizeError
		if errors.As(err, &oversize) {
			metrics.TransfersTotal.WithLabelValues("oversize").Inc()
		} else {
			metrics.TransfersTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}
	metrics.TransfersTotal.WithLabelValues(string(outcome.Mode)).Inc()
	return outcome, nil
}

func (c *Controller) transfer(ctx context.Context, mediaURL string, meta AudioMeta, d Deliverer) (*Outcome, error) {
	resp, err := c.open(ctx, mediaURL, meta)
	if err != nil {
		return nil, err
	}
	declared := resp.ContentLength

	if c.directLimit > 0 && declared >= 0 && declared <= c.directLimit {
		resp.Body.Close()
		delivery, err := d.DeliverRemote(ctx, mediaURL, meta)
		if err == nil {
			return &Outcome{Mode: ModeRemote, Size: declared, FileID: fileID(delivery)}, nil
		}
		if ctx.Err() != nil {
			return nil, stageErr("deliver", err)
		}
		if c.logger != nil {
			c.logger.Warn("remote delivery failed, staging locally", "url", mediaURL, "error", err)
		}
		resp, err = c.open(ctx, mediaURL, meta)
		if err != nil {
			return nil, err
		}
	}
	defer resp.Body.Close()

	return c.stage(ctx, resp, meta, d)
}

// open issues the GET and enforces the declared size before any byte is read.
func (c *Controller) open(ctx context.Context, mediaURL string, meta AudioMeta) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, stageErr("request", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, stageErr("request", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, stageErr("request", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	if c.sizeLimit > 0 && resp.ContentLength > c.sizeLimit {
		resp.Body.Close()
		return nil, &OversizeError{
			Performer: meta.Performer,
			Title:     meta.Title,
			Size:      resp.ContentLength,
			Limit:     c.sizeLimit,
			Declared:  true,
		}
	}
	return resp, nil
}

func (c *Controller) stage(ctx context.Context, resp *http.Response, meta AudioMeta, d Deliverer) (*Outcome, error) {
	if err := os.MkdirAll(c.cacheDir, 0o755); err != nil {
		return nil, stageErr("stage", err)
	}
	dir, err := os.MkdirTemp(c.cacheDir, "transfer-*")
	if err != nil {
		return nil, stageErr("stage", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil && c.logger != nil {
			c.logger.Warn("failed to remove staging dir", "dir", dir, "error", err)
		}
	}()

	if n, ok := d.(StagingNotifier); ok {
		n.Staging(ctx)
	}

	path := filepath.Join(dir, meta.FileName)
	written, err := c.writeFile(path, resp.Body, resp.ContentLength)
	metrics.TransferBytesTotal.Add(float64(written))
	if err != nil {
		var oversize *OversizeError
		if errors.As(err, &oversize) {
			oversize.Performer, oversize.Title = meta.Performer, meta.Title
			return nil, oversize
		}
		return nil, stageErr("stage", err)
	}

	if c.tagger != nil {
		tag := &id3.TagData{Title: meta.Title, Artist: meta.Performer, Comment: meta.Source}
		if err := c.tagger.EmbedTags(path, tag); err != nil && !errors.Is(err, id3.ErrUnsupportedFormat) && c.logger != nil {
			c.logger.Warn("failed to tag staged file", "path", path, "error", err)
		}
	}

	delivery, err := d.DeliverFile(ctx, path, meta)
	if err != nil {
		return nil, stageErr("deliver", err)
	}
	return &Outcome{Mode: ModeUpload, Size: written, FileID: fileID(delivery)}, nil
}

func (c *Controller) writeFile(path string, src io.Reader, declared int64) (int64, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	written, copyErr := c.copyChunks(file, src, declared)
	closeErr := file.Close()
	if copyErr != nil {
		return written, copyErr
	}
	if closeErr != nil {
		return written, closeErr
	}
	if declared >= 0 && written != declared {
		return written, fmt.Errorf("incomplete download: got %d bytes, expected %d", written, declared)
	}
	return written, nil
}

// copyChunks copies in fixed-size chunks and stops once the size limit is
// crossed, which only happens when the length was not declared.
func (c *Controller) copyChunks(dst io.Writer, src io.Reader, total int64) (int64, error) {
	buf := make([]byte, c.chunkSize)
	var written int64
	lastUpdate := time.Now()

	if c.sizeLimit > 0 {
		src = io.LimitReader(src, c.sizeLimit+1)
	}
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if c.sizeLimit > 0 && written+int64(n) > c.sizeLimit {
				return written, &OversizeError{Size: written + int64(n), Limit: c.sizeLimit}
			}
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return written, werr
			}
			written += int64(n)
			if c.progress != nil && time.Since(lastUpdate) >= 2*time.Second {
				c.progress(written, total)
				lastUpdate = time.Now()
			}
		}
		if err != nil {
			if err == io.EOF {
				return written, nil
			}
			return written, err
		}
	}
}

func fileID(d *Delivery) string {
	if d == nil {
		return ""
	}
	return d.FileID
}

func minDuration(a, b time.Duration) time.Duration {
	if a == 0 || a > b {
		return b
	}
	return a
}
