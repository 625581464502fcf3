package facebook

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"feedharvest/pkg/config"
	errs "feedharvest/pkg/errors"
	"feedharvest/pkg/logger"
	"feedharvest/pkg/models"
	"feedharvest/pkg/ratelimit"
	"feedharvest/pkg/retry"
	"feedharvest/pkg/session"
)

const (
	// BaseURL serves the markup-reduced page variant
	BaseURL = "https://mbasic.facebook.com"

	// PublicURL is used for permalinks shown to readers
	PublicURL = "https://www.facebook.com"
)

// The home page probe uses a shorter delay than content pages
const (
	probeMinDelay = 1 * time.Second
	probeMaxDelay = 3 * time.Second
)

var (
	groupIDPattern  = regexp.MustCompile(`^[A-Za-z0-9.]+$`)
	groupURLPattern = regexp.MustCompile(`facebook\.com/groups/([A-Za-z0-9.]+)`)
)

// ParseGroupID accepts a bare group id or any facebook.com group link
func ParseGroupID(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if groupIDPattern.MatchString(ref) {
		return ref, nil
	}
	if m := groupURLPattern.FindStringSubmatch(ref); m != nil {
		return m[1], nil
	}
	return "", fmt.Errorf("not a facebook group id or link: %q", ref)
}

// GroupURL is the basic page of a group
func GroupURL(base, groupID string) string {
	return fmt.Sprintf("%s/groups/%s/", base, groupID)
}

// PostURL is the basic detail page of a group post
func PostURL(base, groupID, storyID string) string {
	return fmt.Sprintf("%s/groups/%s/posts/%s/", base, groupID, storyID)
}

// PostPermalink is the public link to a group post
func PostPermalink(groupID, storyID string) string {
	return PostURL(PublicURL, groupID, storyID)
}

// PublicGroupURL is the public link to a group
func PublicGroupURL(groupID string) string {
	return GroupURL(PublicURL, groupID)
}

// Options configures a Client. Pace and ProbePace exist for tests; when nil
// they are built from Config.
type Options struct {
	BaseURL    string
	Cookies    map[string]string
	Config     config.PlatformConfig
	HTTPClient *http.Client
	Extractor  Extractor
	Logger     logger.Logger

	Pace      ratelimit.Limiter
	ProbePace ratelimit.Limiter
}

// Client scrapes group pages of the basic Facebook site. Extraction never
// fails a call; only fetch errors do.
type Client struct {
	req       *session.Requester
	probe     *session.Requester
	baseURL   string
	extractor Extractor
	logger    logger.Logger
}

var _ session.Client = (*Client)(nil)

// NewClient creates a Facebook client
func NewClient(opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	log = log.WithField("platform", string(models.PlatformFacebook))

	cfg := opts.Config
	base := opts.BaseURL
	if base == "" {
		base = BaseURL
	}
	extractor := opts.Extractor
	if extractor == nil {
		extractor = BasicExtractor{}
	}

	pace := opts.Pace
	if pace == nil {
		pace = ratelimit.NewJittered(cfg.MinDelay, cfg.MaxDelay)
	}
	probePace := opts.ProbePace
	if probePace == nil {
		probePace = ratelimit.NewJittered(probeMinDelay, probeMaxDelay)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = session.NewHTTPClient(cfg.Timeout)
	}

	headers := map[string]string{
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.9",
		"Sec-Fetch-Dest":  "document",
		"Sec-Fetch-Mode":  "navigate",
		"Sec-Fetch-Site":  "none",
	}
	if cfg.UserAgent != "" {
		headers["User-Agent"] = cfg.UserAgent
	}

	retryCfg := retry.ForPlatform(cfg)

	newRequester := func(p ratelimit.Limiter) *session.Requester {
		return session.NewRequester(session.Options{
			HTTPClient: httpClient,
			Headers:    headers,
			Cookies:    opts.Cookies,
			Pace:       p,
			Retry:      retryCfg,
			Logger:     log,
		})
	}

	return &Client{
		req:       newRequester(pace),
		probe:     newRequester(probePace),
		baseURL:   base,
		extractor: extractor,
		logger:    log,
	}
}

// Platform implements session.Client
func (c *Client) Platform() models.Platform {
	return models.PlatformFacebook
}

func (c *Client) document(ctx context.Context, url string) (*goquery.Document, error) {
	resp, err := c.req.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, &errs.Error{
			Type:    errs.ErrorTypeParsing,
			Message: fmt.Sprintf("failed to parse HTML from %s", url),
			Code:    resp.StatusCode,
			Err:     err,
		}
	}
	return doc, nil
}

// Validate fetches the home page and looks for login or logout markers
func (c *Client) Validate(ctx context.Context) session.Validity {
	resp, err := c.probe.Get(ctx, c.baseURL+"/")

	var v session.Validity
	if err != nil {
		v = session.ClassifyValidation(err)
	} else {
		v = c.extractor.SessionState(string(resp.Body), resp.FinalURL)
	}

	l := c.logger.WithField("validity", v.String())
	switch {
	case v == session.Valid:
		l.Info("Session validated")
	case err != nil && v == session.Indeterminate:
		l.WithError(err).Warn("Session validation inconclusive")
	default:
		l.WithError(err).Warn("Session rejected")
	}
	return v
}

// GroupPosts returns up to limit posts from the first page of a group
func (c *Client) GroupPosts(ctx context.Context, groupID string, limit int) ([]models.CanonicalPost, error) {
	doc, err := c.document(ctx, GroupURL(c.baseURL, groupID))
	if err != nil {
		return nil, err
	}

	posts := c.extractor.GroupPosts(doc, groupID, limit)
	c.logger.DebugWithFields("extracted group posts", map[string]interface{}{
		"group": groupID,
		"posts": len(posts),
	})
	return posts, nil
}

// PostComments returns up to limit comments of a group post. postID may be
// the canonical fb_ id or the bare story id.
func (c *Client) PostComments(ctx context.Context, groupID, postID string, limit int) ([]models.Comment, error) {
	storyID := strings.TrimPrefix(postID, models.FacebookIDPrefix)

	doc, err := c.document(ctx, PostURL(c.baseURL, groupID, storyID))
	if err != nil {
		return nil, err
	}
	return c.extractor.Comments(doc, models.FacebookIDPrefix+storyID, limit), nil
}

// GroupName returns the group's page title, or "Group <id>" when the page
// has none
func (c *Client) GroupName(ctx context.Context, groupID string) (string, error) {
	doc, err := c.document(ctx, GroupURL(c.baseURL, groupID))
	if err != nil {
		return "", err
	}
	if name := c.extractor.GroupName(doc); name != "" {
		return name, nil
	}
	return fallbackGroupName(groupID), nil
}
