package instagram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedharvest/pkg/config"
	errs "feedharvest/pkg/errors"
	"feedharvest/pkg/logger"
	"feedharvest/pkg/models"
	"feedharvest/pkg/session"
)

const testBase = "https://ig.test"

// mockRoundTripper allows us to intercept HTTP requests
type mockRoundTripper struct {
	mu       sync.Mutex
	requests []*http.Request
	handler  func(req *http.Request) (*http.Response, error)
}

func (m *mockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	return m.handler(req)
}

func (m *mockRoundTripper) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func newResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     make(http.Header),
	}
}

func jsonResponse(t *testing.T, v interface{}) *http.Response {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return newResponse(http.StatusOK, string(b))
}

type countingPace struct {
	mu    sync.Mutex
	calls int
}

func (p *countingPace) Wait(ctx context.Context) error {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return ctx.Err()
}

func testConfig() config.PlatformConfig {
	return config.PlatformConfig{MaxAttempts: 2}
}

func newTestClient(t *testing.T, cookies map[string]string, handler func(req *http.Request) (*http.Response, error)) (*Client, *mockRoundTripper, *countingPace) {
	t.Helper()
	rt := &mockRoundTripper{handler: handler}
	page := &countingPace{}
	if cookies == nil {
		cookies = map[string]string{"sessionid": "s", "csrftoken": "tok", "ds_user_id": "42"}
	}
	c := NewClient(Options{
		BaseURL:    testBase,
		Cookies:    cookies,
		Config:     testConfig(),
		HTTPClient: &http.Client{Transport: rt},
		Logger:     logger.NewTestLogger(),
		Pace:       &countingPace{},
		PagePace:   page,
		StoryPace:  &countingPace{},
	})
	return c, rt, page
}

func feedItem(pk int64, takenAt int64) map[string]interface{} {
	return map[string]interface{}{
		"pk":         pk,
		"code":       fmt.Sprintf("C%d", pk),
		"taken_at":   takenAt,
		"media_type": 1,
		"image_versions2": map[string]interface{}{
			"candidates": []map[string]interface{}{{"url": fmt.Sprintf("https://cdn.test/%d.jpg", pk), "width": 1080, "height": 1080}},
		},
	}
}

func TestClientSendsSessionHeaders(t *testing.T) {
	c, rt, _ := newTestClient(t, nil, func(req *http.Request) (*http.Response, error) {
		return newResponse(http.StatusOK, `{"data":{"user":{"id":"1"}}}`), nil
	})

	assert.Equal(t, session.Valid, c.Validate(context.Background()))
	require.Equal(t, 1, rt.count())

	req := rt.requests[0]
	assert.Equal(t, AppID, req.Header.Get("X-IG-App-ID"))
	assert.Equal(t, "tok", req.Header.Get("X-CSRFToken"))
	assert.Equal(t, "XMLHttpRequest", req.Header.Get("X-Requested-With"))
	assert.Equal(t, "same-origin", req.Header.Get("Sec-Fetch-Site"))
	assert.Equal(t, "csrftoken=tok; ds_user_id=42; sessionid=s", req.Header.Get("Cookie"))
	assert.Equal(t, "instagram", req.URL.Query().Get("username"))
	assert.Equal(t, models.PlatformInstagram, c.Platform())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		expected session.Validity
		requests int
	}{
		{"user present", 200, `{"data":{"user":{"id":"25025320"}}}`, session.Valid, 1},
		{"login required", 200, `{"requires_to_login":true,"data":{}}`, session.Invalid, 1},
		{"no user", 200, `{"data":{}}`, session.Invalid, 1},
		{"not json", 200, `<html>login</html>`, session.Invalid, 1},
		{"forbidden", 403, ``, session.Invalid, 1},
		{"rate limited", 429, ``, session.Indeterminate, 2},
		{"server error", 502, ``, session.Indeterminate, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rt, _ := newTestClient(t, nil, func(req *http.Request) (*http.Response, error) {
				return newResponse(tt.status, tt.body), nil
			})
			assert.Equal(t, tt.expected, c.Validate(context.Background()))
			assert.Equal(t, tt.requests, rt.count())
		})
	}
}

func TestValidateNetworkFailure(t *testing.T) {
	c, _, _ := newTestClient(t, nil, func(req *http.Request) (*http.Response, error) {
		return nil, fmt.Errorf("connection reset")
	})
	assert.Equal(t, session.Indeterminate, c.Validate(context.Background()))
}

func TestFollowingPaginates(t *testing.T) {
	pages := map[string]struct {
		users int
		next  string
	}{
		"":   {100, "p2"},
		"p2": {100, "p3"},
		"p3": {40, ""},
	}
	n := 0

	c, rt, pace := newTestClient(t, nil, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/api/v1/friendships/42/following/", req.URL.Path)
		assert.Equal(t, "100", req.URL.Query().Get("count"))

		page, ok := pages[req.URL.Query().Get("max_id")]
		require.True(t, ok)

		users := make([]map[string]interface{}, 0, page.users)
		for i := 0; i < page.users; i++ {
			n++
			users = append(users, map[string]interface{}{"pk": n, "username": fmt.Sprintf("user%d", n)})
		}
		return jsonResponse(t, map[string]interface{}{"users": users, "next_max_id": page.next}), nil
	})

	following, err := c.Following(context.Background())
	require.NoError(t, err)
	assert.Len(t, following, 240)
	assert.Equal(t, 3, rt.count(), "no request after the cursor runs out")
	assert.Equal(t, 2, pace.calls, "page delay only between pages")
	assert.Equal(t, models.Followee{Username: "user1", ID: "1"}, following[0])
	assert.Equal(t, "user240", following[239].Username)
}

func TestFollowingNeedsUserID(t *testing.T) {
	c, rt, _ := newTestClient(t, map[string]string{"sessionid": "s"}, func(req *http.Request) (*http.Response, error) {
		return newResponse(http.StatusOK, `{}`), nil
	})

	_, err := c.Following(context.Background())
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeAuth, errs.TypeOf(err))
	assert.Equal(t, 0, rt.count())
}

func TestUserPostsStopsAtAmount(t *testing.T) {
	var counts []string
	next := 0

	c, rt, _ := newTestClient(t, nil, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/api/v1/feed/user/natgeo/username/", req.URL.Path)
		counts = append(counts, req.URL.Query().Get("count"))

		var items []map[string]interface{}
		for i := 0; i < 12; i++ {
			next++
			items = append(items, feedItem(int64(next), 1700000000-int64(next)))
		}
		return jsonResponse(t, map[string]interface{}{"items": items, "next_max_id": "more"}), nil
	})

	posts, err := c.UserPosts(context.Background(), "natgeo", 20)
	require.NoError(t, err)
	assert.Len(t, posts, 20)
	assert.Equal(t, 2, rt.count())
	assert.Equal(t, []string{"12", "8"}, counts)
	assert.Equal(t, "1", posts[0].ID)
	assert.Equal(t, "natgeo", posts[0].Owner)
	assert.Equal(t, "https://www.instagram.com/p/C1/", posts[0].Permalink)
}

func TestUserPostsStopsWhenCursorExhausted(t *testing.T) {
	c, rt, pace := newTestClient(t, nil, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(t, map[string]interface{}{
			"items": []interface{}{feedItem(1, 0), feedItem(2, 0)},
		}), nil
	})

	posts, err := c.UserPosts(context.Background(), "nasa", 20)
	require.NoError(t, err)
	assert.Len(t, posts, 2)
	assert.Equal(t, 1, rt.count())
	assert.Equal(t, 0, pace.calls)
	assert.False(t, posts[0].HasTimestamp())
}

func TestUserPostsSinceStopsPaging(t *testing.T) {
	since := time.Unix(1700000000, 0).UTC()

	c, rt, _ := newTestClient(t, nil, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(t, map[string]interface{}{
			"items": []interface{}{
				feedItem(3, since.Unix()+100),
				feedItem(2, since.Unix()-100),
			},
			"next_max_id": "older",
		}), nil
	})

	posts, err := c.UserPostsSince(context.Background(), "natgeo", 200, since)
	require.NoError(t, err)
	assert.Len(t, posts, 2, "the older post is returned for the caller to stop on")
	assert.Equal(t, 1, rt.count())
}

func TestUserPostsPropagatesErrors(t *testing.T) {
	c, _, _ := newTestClient(t, nil, func(req *http.Request) (*http.Response, error) {
		return newResponse(http.StatusInternalServerError, ""), nil
	})

	_, err := c.UserPosts(context.Background(), "natgeo", 5)
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeServerError, errs.TypeOf(err))
}

func TestUserStories(t *testing.T) {
	c, rt, _ := newTestClient(t, nil, func(req *http.Request) (*http.Response, error) {
		switch req.URL.Path {
		case ProfileEndpoint:
			return newResponse(http.StatusOK, `{"data":{"user":{"id":"787132","profile_pic_url":"https://cdn.test/pic.jpg"}}}`), nil
		case ReelsMediaEndpoint:
			assert.Equal(t, "787132", req.URL.Query().Get("reel_ids"))
			return newResponse(http.StatusOK, `{"reels":{"787132":{"items":[
				{"pk":"3301","taken_at":1700000000,"media_type":2,"video_versions":[{"url":"https://cdn.test/s.mp4"}]},
				{"pk":3302,"taken_at":1700000100,"image_versions2":{"candidates":[{"url":"https://cdn.test/s.jpg","width":10,"height":10}]}},
				{"pk":3303}
			]}}}`), nil
		}
		return newResponse(http.StatusNotFound, ""), nil
	})

	stories, err := c.UserStories(context.Background(), "natgeo")
	require.NoError(t, err)
	assert.Equal(t, 2, rt.count())
	require.Len(t, stories, 2)

	assert.Equal(t, "3301", stories[0].ID)
	assert.Equal(t, models.KindStory, stories[0].Kind)
	assert.Equal(t, models.MediaVideo, stories[0].Media[0].Kind)
	assert.Equal(t, "https://www.instagram.com/stories/natgeo/3301/", stories[0].Permalink)
	assert.Equal(t, "3302", stories[1].ID)
	assert.Equal(t, "", stories[1].Text)
}

func TestProfilePictureURL(t *testing.T) {
	c, _, _ := newTestClient(t, nil, func(req *http.Request) (*http.Response, error) {
		if req.URL.Query().Get("username") == "ghost" {
			return newResponse(http.StatusOK, `{"data":{"user":null}}`), nil
		}
		return newResponse(http.StatusOK, `{"data":{"user":{"id":"1","profile_pic_url":"https://cdn.test/pic.jpg"}}}`), nil
	})

	url, err := c.ProfilePictureURL(context.Background(), "natgeo")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/pic.jpg", url)

	_, err = c.ProfilePictureURL(context.Background(), "ghost")
	assert.Equal(t, errs.ErrorTypeNotFound, errs.TypeOf(err))
}
