// Package pagefetch walks a catalog API endpoint page by page,
// bypassing the renderer once the capture channel has observed a seed
// URL. Record merging is delegated to the caller so both channels
// share one admission policy.
package pagefetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// offsetPageSize converts a page number to an offset for endpoints
// that paginate by offset instead of page index.
const offsetPageSize = 48

var offsetRe = regexp.MustCompile(`(offset=)(\d+)`)

// PageURL rewrites seed's page parameter to n. Hashbang URLs keep the
// parameter inside the fragment query (`#!/path?page=n`), which is
// where the storefront's router reads it. A seed with no page
// parameter but an offset parameter paginates by offset instead; its
// offset is rewritten as (n-1)*48.
func PageURL(seed string, n int) string {
	if !strings.Contains(seed, "page=") && strings.Contains(seed, "offset=") {
		return offsetRe.ReplaceAllString(seed, "${1}"+strconv.Itoa((n-1)*offsetPageSize))
	}
	return setQueryParam(seed, "page", strconv.Itoa(n))
}

// setQueryParam sets key=value in either the real query string or, for
// hashbang fragments, the fragment's own query string.
func setQueryParam(rawURL, key, value string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if strings.HasPrefix(u.Fragment, "!/") {
		before, after, _ := strings.Cut(u.Fragment, "?")
		fq, err := url.ParseQuery(after)
		if err != nil {
			fq = url.Values{}
		}
		fq.Set(key, value)
		u.Fragment = before + "?" + fq.Encode()
		return u.String()
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}

// Ingest merges one fetched body into the collected set and returns
// how many new records it contributed.
type Ingest func(pageURL string, body []byte) int

// Config tunes a walk.
type Config struct {
	UserAgent     string
	MaxRetries    int           // attempts beyond the first, per page
	RetryWaitBase time.Duration // backoff base; doubled per attempt
	StagnantLimit int           // consecutive zero-contribution pages before halting
	PageDelay     time.Duration // politeness pause between pages
	Timeout       time.Duration // per-request timeout
	Logger        *slog.Logger

	// DumpFn, when set, receives each successfully fetched raw body.
	DumpFn func(page int, body []byte)
}

// Report summarises a finished walk.
type Report struct {
	PagesFetched int
	Added        int
	BreakReason  string // "api-stagnation" when the stagnation limit halted the walk
}

// Fetcher issues the direct page requests.
type Fetcher struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	ingest  Ingest
}

// NewFetcher builds a fetcher over the given ingest sink. Requests are
// throttled to roughly one every PageDelay.
func NewFetcher(cfg Config, ingest Ingest) *Fetcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryWaitBase <= 0 {
		cfg.RetryWaitBase = time.Second
	}
	if cfg.StagnantLimit <= 0 {
		cfg.StagnantLimit = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	limit := rate.Inf
	if cfg.PageDelay > 0 {
		limit = rate.Every(cfg.PageDelay)
	}
	return &Fetcher{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, 1),
		ingest:  ingest,
	}
}

// Walk fetches pages start..end of the seed endpoint sequentially.
// A page that exhausts its retries is logged and counted toward
// stagnation, never fatal. The walk halts early once StagnantLimit
// consecutive pages contribute nothing new.
func (f *Fetcher) Walk(ctx context.Context, seed string, start, end int) (*Report, error) {
	if start < 1 {
		start = 1
	}
	if end < start {
		end = start
	}

	rep := &Report{}
	stagnant := 0
	for i := start; i <= end; i++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return rep, fmt.Errorf("pagefetch: %w", err)
		}

		pageURL := PageURL(seed, i)
		body, err := f.fetchPage(ctx, i, pageURL)
		if err != nil {
			if ctx.Err() != nil {
				return rep, fmt.Errorf("pagefetch: %w", ctx.Err())
			}
			f.cfg.Logger.Warn("api page failed, giving up", "page", i, "error", err)
			stagnant++
			if stagnant >= f.cfg.StagnantLimit {
				rep.BreakReason = "api-stagnation"
				f.cfg.Logger.Info("api stagnation limit reached", "page", i)
				break
			}
			continue
		}

		rep.PagesFetched++
		if f.cfg.DumpFn != nil {
			f.cfg.DumpFn(i, body)
		}

		added := f.ingest(pageURL, body)
		rep.Added += added
		f.cfg.Logger.Info("api page fetched", "page", i, "added", added)

		if added == 0 {
			stagnant++
		} else {
			stagnant = 0
		}
		if stagnant >= f.cfg.StagnantLimit {
			rep.BreakReason = "api-stagnation"
			f.cfg.Logger.Info("api stagnation limit reached", "page", i)
			break
		}
	}
	return rep, nil
}

// fetchPage issues one page request with bounded retries and
// exponential backoff plus jitter between attempts.
func (f *Fetcher) fetchPage(ctx context.Context, page int, pageURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := f.cfg.RetryWaitBase*time.Duration(1<<(attempt-1)) +
				time.Duration(rand.Int63n(int64(250*time.Millisecond)))
			f.cfg.Logger.Warn("api page retry", "page", page, "attempt", attempt, "wait", wait, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
		body, err := f.doRequest(ctx, pageURL)
		if err == nil {
			return body, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (f *Fetcher) doRequest(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("pagefetch: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pagefetch: get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("pagefetch: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("pagefetch: read body: %w", err)
	}
	return body, nil
}
