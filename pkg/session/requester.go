package session

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	errs "feedharvest/pkg/errors"
	"feedharvest/pkg/logger"
	"feedharvest/pkg/ratelimit"
	"feedharvest/pkg/retry"
)

// maxBodySize caps how much of a response is read into memory
const maxBodySize = 16 << 20

// Response is a fully read HTTP response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// FinalURL is the URL after redirects
	FinalURL string
}

// Options configures a Requester
type Options struct {
	HTTPClient *http.Client
	Headers    map[string]string
	Cookies    map[string]string
	// Pace runs once before every logical request, not per retry
	Pace   ratelimit.Limiter
	Retry  *retry.Config
	Logger logger.Logger
}

// Requester is the request primitive shared by the platform clients: a
// politeness delay, cookie and browser headers, status classification and
// bounded retry of throttling, server and transport failures.
type Requester struct {
	http    *http.Client
	headers map[string]string
	cookie  string
	pace    ratelimit.Limiter
	retry   *retry.Config
	logger  logger.Logger
}

// NewRequester creates a requester
func NewRequester(opts Options) *Requester {
	r := &Requester{
		http:    opts.HTTPClient,
		headers: opts.Headers,
		cookie:  CookieHeader(opts.Cookies),
		pace:    opts.Pace,
		retry:   opts.Retry,
		logger:  opts.Logger,
	}
	if r.http == nil {
		r.http = NewHTTPClient(30 * time.Second)
	}
	if r.pace == nil {
		r.pace = ratelimit.Noop{}
	}
	if r.logger == nil {
		r.logger = logger.NewNopLogger()
	}
	if r.retry == nil {
		r.retry = retry.DefaultConfig()
		r.retry.Logger = r.logger
	}
	if r.retry.Logger == nil {
		cfg := *r.retry
		cfg.Logger = r.logger
		r.retry = &cfg
	}
	return r
}

// CookieHeader renders cookies as a Cookie header value, sorted by name
func CookieHeader(cookies map[string]string) string {
	names := make([]string, 0, len(cookies))
	for name := range cookies {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+cookies[name])
	}
	return strings.Join(parts, "; ")
}

// Get paces, then fetches url with retries. Non-2xx statuses come back as
// *errors.Error.
func (r *Requester) Get(ctx context.Context, url string) (*Response, error) {
	if err := r.pace.Wait(ctx); err != nil {
		return nil, err
	}

	return retry.DoWithResult(ctx, func(ctx context.Context) (*Response, error) {
		return r.do(ctx, url)
	}, r.retry)
}

func (r *Requester) do(ctx context.Context, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	if r.cookie != "" {
		req.Header.Set("Cookie", r.cookie)
	}

	start := time.Now()
	resp, err := r.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &errs.Error{
			Type:    errs.ErrorTypeNetwork,
			Message: "request failed",
			Err:     err,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &errs.Error{
			Type:    errs.ErrorTypeNetwork,
			Message: "failed to read response body",
			Code:    resp.StatusCode,
			Err:     err,
		}
	}

	logger.LogRequest(r.logger, http.MethodGet, url, resp.StatusCode, time.Since(start))

	if apiErr := errs.FromStatus(resp.StatusCode, resp.Header); apiErr != nil {
		apiErr.Message = fmt.Sprintf("%s: %s", apiErr.Message, url)
		if apiErr.Type == errs.ErrorTypeRateLimit {
			logger.LogRateLimit(r.logger, url, apiErr.RetryAfter)
		}
		return nil, apiErr
	}

	// a custom RoundTripper may leave Request unset
	finalURL := url
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		FinalURL:   finalURL,
	}, nil
}
