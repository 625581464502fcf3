package media

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"feedharvest/pkg/config"
	errs "feedharvest/pkg/errors"
	"feedharvest/pkg/logger"
	"feedharvest/pkg/models"
)

// ProfilePostID is the post id segment used for profile pictures
const ProfilePostID = "_profile"

// Target identifies where a media item is stored
type Target struct {
	Platform models.Platform
	Owner    string
	PostID   string
	Order    int
	Kind     models.MediaKind
}

// Fetcher downloads media into a Store. A file already on disk is never
// fetched again.
type Fetcher struct {
	client *resty.Client
	store  *Store
	logger logger.Logger
}

// NewFetcher creates a fetcher writing under cfg.Directory
func NewFetcher(cfg config.MediaConfig, log logger.Logger) (*Fetcher, error) {
	store, err := NewStore(cfg.Directory)
	if err != nil {
		return nil, err
	}

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "image/avif,image/webp,image/*,video/*,*/*;q=0.8")
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}

	return NewFetcherWithClient(client, store, log), nil
}

// NewFetcherWithClient creates a fetcher around an existing resty client
func NewFetcherWithClient(client *resty.Client, store *Store, log logger.Logger) *Fetcher {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Fetcher{client: client, store: store, logger: log}
}

// Store returns the underlying store
func (f *Fetcher) Store() *Store {
	return f.store
}

// RelPath returns <platform>/<owner>/<post id>/<order>.<jpg|mp4>
func RelPath(sourceURL string, t Target) string {
	ext := ".jpg"
	if t.Kind == models.MediaVideo || isMP4(sourceURL) {
		ext = ".mp4"
	}
	return path.Join(
		segment(string(t.Platform)),
		segment(t.Owner),
		segment(t.PostID),
		strconv.Itoa(t.Order)+ext,
	)
}

func isMP4(raw string) bool {
	if u, err := url.Parse(raw); err == nil {
		return strings.HasSuffix(strings.ToLower(u.Path), ".mp4")
	}
	return strings.HasSuffix(strings.ToLower(strings.SplitN(raw, "?", 2)[0]), ".mp4")
}

// segment keeps a path component inside its parent directory
func segment(s string) string {
	s = strings.NewReplacer("/", "_", "\\", "_").Replace(s)
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}

// Fetch stores sourceURL at the target's path and returns the relative
// path. On failure nothing is left on disk.
func (f *Fetcher) Fetch(ctx context.Context, sourceURL string, t Target) (string, error) {
	rel := RelPath(sourceURL, t)
	log := f.logger.WithFields(map[string]interface{}{
		"path": rel,
		"url":  sourceURL,
	})

	if f.store.Exists(rel) {
		log.Debug("Media already downloaded")
		return rel, nil
	}

	start := time.Now()
	resp, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(sourceURL)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &errs.Error{Type: errs.ErrorTypeNetwork, Message: "media download failed", Err: err}
	}
	body := resp.RawBody()
	defer body.Close()

	if apiErr := errs.FromStatus(resp.StatusCode(), resp.Header()); apiErr != nil {
		apiErr.Message = fmt.Sprintf("%s: %s", apiErr.Message, sourceURL)
		return "", apiErr
	}
	if resp.StatusCode() != http.StatusOK {
		return "", &errs.Error{
			Type:    errs.ErrorTypeUnknown,
			Message: fmt.Sprintf("unexpected status %d for %s", resp.StatusCode(), sourceURL),
			Code:    resp.StatusCode(),
		}
	}

	n, err := f.store.Save(body, rel)
	if err != nil {
		return "", err
	}

	log.DebugWithFields("Media downloaded", map[string]interface{}{
		"bytes":       n,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return rel, nil
}
