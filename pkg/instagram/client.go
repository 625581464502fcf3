package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"feedharvest/pkg/config"
	errs "feedharvest/pkg/errors"
	"feedharvest/pkg/logger"
	"feedharvest/pkg/models"
	"feedharvest/pkg/ratelimit"
	"feedharvest/pkg/retry"
	"feedharvest/pkg/session"
)

// Short pause between resolving a user id and fetching its stories
const (
	storyMinDelay = 500 * time.Millisecond
	storyMaxDelay = 1500 * time.Millisecond
)

// Options configures a Client. The pacing overrides exist for tests; when
// nil they are built from Config.
type Options struct {
	BaseURL    string
	Cookies    map[string]string
	Config     config.PlatformConfig
	HTTPClient *http.Client
	Logger     logger.Logger

	Pace      ratelimit.Limiter
	PagePace  ratelimit.Limiter
	StoryPace ratelimit.Limiter
}

// Client talks to Instagram's private web API with a browser session
type Client struct {
	req       *session.Requester
	baseURL   string
	dsUserID  string
	pagePace  ratelimit.Limiter
	storyPace ratelimit.Limiter
	logger    logger.Logger
}

var _ session.Client = (*Client)(nil)

// NewClient creates a new Instagram API client
func NewClient(opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	log = log.WithField("platform", string(models.PlatformInstagram))

	cfg := opts.Config
	base := opts.BaseURL
	if base == "" {
		base = BaseURL
	}

	pace := opts.Pace
	if pace == nil {
		pace = ratelimit.NewJittered(cfg.MinDelay, cfg.MaxDelay)
	}
	pagePace := opts.PagePace
	if pagePace == nil {
		pagePace = ratelimit.NewJittered(cfg.PageMinDelay, cfg.PageMaxDelay)
	}
	storyPace := opts.StoryPace
	if storyPace == nil {
		storyPace = ratelimit.NewJittered(storyMinDelay, storyMaxDelay)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = session.NewHTTPClient(cfg.Timeout)
	}

	headers := map[string]string{
		"Accept":           "*/*",
		"Accept-Language":  "en-US,en;q=0.9",
		"X-IG-App-ID":      AppID,
		"X-CSRFToken":      opts.Cookies["csrftoken"],
		"X-Requested-With": "XMLHttpRequest",
		"Referer":          BaseURL + "/",
		"Sec-Fetch-Dest":   "empty",
		"Sec-Fetch-Mode":   "cors",
		"Sec-Fetch-Site":   "same-origin",
	}
	if cfg.UserAgent != "" {
		headers["User-Agent"] = cfg.UserAgent
	}

	return &Client{
		req: session.NewRequester(session.Options{
			HTTPClient: httpClient,
			Headers:    headers,
			Cookies:    opts.Cookies,
			Pace:       pace,
			Retry:      retry.ForPlatform(cfg),
			Logger:     log,
		}),
		baseURL:   base,
		dsUserID:  opts.Cookies["ds_user_id"],
		pagePace:  pagePace,
		storyPace: storyPace,
		logger:    log,
	}
}

// Platform implements session.Client
func (c *Client) Platform() models.Platform {
	return models.PlatformInstagram
}

// getJSON fetches url and decodes the body into target
func (c *Client) getJSON(ctx context.Context, url string, target interface{}) error {
	resp, err := c.req.Get(ctx, url)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(resp.Body, target); err != nil {
		preview := string(resp.Body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          url,
			"status":       resp.StatusCode,
			"error":        err.Error(),
			"body_preview": preview,
		})
		return &errs.Error{
			Type:    errs.ErrorTypeParsing,
			Message: "failed to parse JSON",
			Code:    resp.StatusCode,
			Err:     err,
		}
	}
	return nil
}

// Validate probes a public profile with the session cookies
func (c *Client) Validate(ctx context.Context) session.Validity {
	var resp ProfileResponse
	err := c.getJSON(ctx, ProfileURL(c.baseURL, probeUsername), &resp)
	if err == nil && (resp.RequiresToLogin || resp.Data.User == nil) {
		err = &errs.Error{
			Type:    errs.ErrorTypeAuth,
			Message: "profile probe did not return a user",
		}
	}

	v := session.ClassifyValidation(err)
	l := c.logger.WithField("validity", v.String())
	switch v {
	case session.Valid:
		l.Info("Session validated")
	case session.Indeterminate:
		l.WithError(err).Warn("Session validation inconclusive")
	default:
		l.WithError(err).Warn("Session rejected")
	}
	return v
}

// Profile fetches a user's profile info
func (c *Client) Profile(ctx context.Context, username string) (*Profile, error) {
	var resp ProfileResponse
	if err := c.getJSON(ctx, ProfileURL(c.baseURL, username), &resp); err != nil {
		return nil, err
	}
	if resp.Data.User == nil {
		return nil, &errs.Error{
			Type:    errs.ErrorTypeNotFound,
			Message: fmt.Sprintf("no profile for %s", username),
		}
	}
	return resp.Data.User, nil
}

// ResolveUserID returns the numeric id of username
func (c *Client) ResolveUserID(ctx context.Context, username string) (string, error) {
	p, err := c.Profile(ctx, username)
	if err != nil {
		return "", err
	}
	if p.ID == "" {
		return "", &errs.Error{
			Type:    errs.ErrorTypeParsing,
			Message: fmt.Sprintf("profile of %s has no id", username),
		}
	}
	return string(p.ID), nil
}

// ProfilePictureURL returns the profile picture URL of username, empty
// when the profile has none
func (c *Client) ProfilePictureURL(ctx context.Context, username string) (string, error) {
	p, err := c.Profile(ctx, username)
	if err != nil {
		return "", err
	}
	return p.ProfilePicURL, nil
}

// Following returns every account the session's user follows, across all
// pages
func (c *Client) Following(ctx context.Context) ([]models.Followee, error) {
	if c.dsUserID == "" {
		return nil, &errs.Error{
			Type:    errs.ErrorTypeAuth,
			Message: "session cookies carry no ds_user_id",
		}
	}

	var result []models.Followee
	maxID := ""
	for page := 1; ; page++ {
		var resp FollowingResponse
		if err := c.getJSON(ctx, FollowingURL(c.baseURL, c.dsUserID, maxID), &resp); err != nil {
			return nil, err
		}
		for _, u := range resp.Users {
			if u.Username == "" {
				continue
			}
			result = append(result, models.Followee{Username: u.Username, ID: string(u.PK)})
		}

		c.logger.DebugWithFields("fetched following page", map[string]interface{}{
			"page":  page,
			"users": len(resp.Users),
			"total": len(result),
		})

		if resp.NextMaxID == "" {
			break
		}
		maxID = string(resp.NextMaxID)
		if err := c.pagePace.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// UserPosts returns up to amount of the newest posts of username
func (c *Client) UserPosts(ctx context.Context, username string, amount int) ([]models.CanonicalPost, error) {
	return c.UserPostsSince(ctx, username, amount, time.Time{})
}

// UserPostsSince is UserPosts that also stops paging once a page contains a
// post older than since. The older posts of that page are still returned.
// A zero since disables the boundary.
func (c *Client) UserPostsSince(ctx context.Context, username string, amount int, since time.Time) ([]models.CanonicalPost, error) {
	var posts []models.CanonicalPost
	maxID := ""
	for len(posts) < amount {
		var resp FeedResponse
		url := UserFeedURL(c.baseURL, username, min(amount-len(posts), FeedPageSize), maxID)
		if err := c.getJSON(ctx, url, &resp); err != nil {
			return nil, err
		}

		reachedSince := false
		for _, item := range resp.Items {
			post, ok := FlattenPost(item, username)
			if !ok {
				c.logger.DebugWithFields("skipping item without media", map[string]interface{}{
					"username": username,
					"pk":       string(item.PK),
				})
				continue
			}
			if !since.IsZero() && post.HasTimestamp() && post.Timestamp.Before(since) {
				reachedSince = true
			}
			posts = append(posts, post)
		}

		if reachedSince || resp.NextMaxID == "" {
			break
		}
		maxID = string(resp.NextMaxID)
		if err := c.pagePace.Wait(ctx); err != nil {
			return nil, err
		}
	}

	if len(posts) > amount {
		posts = posts[:amount]
	}
	return posts, nil
}

// UserStories returns the current stories of username
func (c *Client) UserStories(ctx context.Context, username string) ([]models.CanonicalPost, error) {
	userID, err := c.ResolveUserID(ctx, username)
	if err != nil {
		return nil, err
	}
	if err := c.storyPace.Wait(ctx); err != nil {
		return nil, err
	}

	var resp ReelsResponse
	if err := c.getJSON(ctx, ReelsMediaURL(c.baseURL, userID), &resp); err != nil {
		return nil, err
	}

	reel := resp.Reels[userID]
	stories := make([]models.CanonicalPost, 0, len(reel.Items))
	for _, item := range reel.Items {
		story, ok := FlattenStory(item, username)
		if !ok {
			continue
		}
		stories = append(stories, story)
	}
	return stories, nil
}
