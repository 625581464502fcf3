package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedharvest/pkg/catalog"
	"feedharvest/pkg/config"
	errs "feedharvest/pkg/errors"
	"feedharvest/pkg/logger"
	"feedharvest/pkg/media"
	"feedharvest/pkg/models"
	"feedharvest/pkg/ratelimit"
	"feedharvest/pkg/session"
	"feedharvest/pkg/vault"
)

const testKey = "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"

var testConfig = config.PipelineConfig{
	PostsPerAccount: 20,
	BackfillPosts:   200,
	GroupPostLimit:  10,
	CommentsPerPost: 3,
	IncludeStories:  true,
}

type fakeInstagram struct {
	validity  session.Validity
	following []models.Followee
	posts     map[string][]models.CanonicalPost
	stories   map[string][]models.CanonicalPost
	pics      map[string]string
	fail      map[string]error

	mu         sync.Mutex
	postCalls  []string
	picLookups []string
}

func (f *fakeInstagram) Platform() models.Platform { return models.PlatformInstagram }

func (f *fakeInstagram) Validate(ctx context.Context) session.Validity { return f.validity }

func (f *fakeInstagram) Following(ctx context.Context) ([]models.Followee, error) {
	return f.following, nil
}

func (f *fakeInstagram) ProfilePictureURL(ctx context.Context, username string) (string, error) {
	f.mu.Lock()
	f.picLookups = append(f.picLookups, username)
	f.mu.Unlock()
	return f.pics[username], nil
}

func (f *fakeInstagram) UserPosts(ctx context.Context, username string, amount int) ([]models.CanonicalPost, error) {
	f.mu.Lock()
	f.postCalls = append(f.postCalls, username)
	f.mu.Unlock()
	if err := f.fail[username]; err != nil {
		return nil, err
	}
	return f.posts[username], nil
}

func (f *fakeInstagram) UserPostsSince(ctx context.Context, username string, amount int, since time.Time) ([]models.CanonicalPost, error) {
	return f.UserPosts(ctx, username, amount)
}

func (f *fakeInstagram) UserStories(ctx context.Context, username string) ([]models.CanonicalPost, error) {
	return f.stories[username], nil
}

type fakeFacebook struct {
	validity    session.Validity
	posts       map[string][]models.CanonicalPost
	comments    map[string][]models.Comment
	commentErrs map[string]error
	names       map[string]string
}

func (f *fakeFacebook) Platform() models.Platform { return models.PlatformFacebook }

func (f *fakeFacebook) Validate(ctx context.Context) session.Validity { return f.validity }

func (f *fakeFacebook) GroupPosts(ctx context.Context, groupID string, limit int) ([]models.CanonicalPost, error) {
	return f.posts[groupID], nil
}

func (f *fakeFacebook) PostComments(ctx context.Context, groupID, postID string, limit int) ([]models.Comment, error) {
	if err := f.commentErrs[postID]; err != nil {
		return nil, err
	}
	return f.comments[postID], nil
}

func (f *fakeFacebook) GroupName(ctx context.Context, groupID string) (string, error) {
	return f.names[groupID], nil
}

type fakeMedia struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (m *fakeMedia) Fetch(ctx context.Context, sourceURL string, t media.Target) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, sourceURL)
	if m.fail[sourceURL] {
		return "", &errs.Error{Type: errs.ErrorTypeServerError, Message: "HTTP 500", Code: 500}
	}
	return media.RelPath(sourceURL, t), nil
}

func (m *fakeMedia) fetched(url string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.calls {
		if c == url {
			return true
		}
	}
	return false
}

type fakeClients struct {
	ig    *fakeInstagram
	fb    *fakeFacebook
	built int
}

func (f *fakeClients) Instagram(cookies vault.Cookies, log logger.Logger) InstagramSource {
	f.built++
	return f.ig
}

func (f *fakeClients) Facebook(cookies vault.Cookies, log logger.Logger) FacebookSource {
	f.built++
	return f.fb
}

type recordingNotifier struct {
	platforms []models.Platform
}

func (n *recordingNotifier) OnSessionInvalid(ctx context.Context, platform models.Platform) error {
	n.platforms = append(n.platforms, platform)
	return nil
}

type countingPace struct{ waits int }

func (p *countingPace) Wait(ctx context.Context) error {
	p.waits++
	return ctx.Err()
}

func openCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func igPost(id, owner string, ts time.Time, urls ...string) models.CanonicalPost {
	p := models.CanonicalPost{
		ID:        id,
		Platform:  models.PlatformInstagram,
		Owner:     owner,
		Kind:      models.KindPost,
		Author:    owner,
		Text:      "caption " + id,
		Timestamp: ts,
		Permalink: "https://www.instagram.com/p/" + id + "/",
	}
	for i, u := range urls {
		p.Media = append(p.Media, models.MediaItem{Kind: models.MediaImage, SourceURL: u, Order: i})
	}
	return p
}

func igStory(id, owner string, ts time.Time) models.CanonicalPost {
	p := igPost(id, owner, ts)
	p.Kind = models.KindStory
	return p
}

func groupPost(id, groupID string, comments int) models.CanonicalPost {
	return models.CanonicalPost{
		ID:           id,
		Platform:     models.PlatformFacebook,
		Owner:        groupID,
		Kind:         models.KindGroupPost,
		Author:       "Alice",
		Text:         "group post " + id,
		CommentCount: comments,
	}
}

func newIngestor(t *testing.T, c *catalog.Catalog, ig *fakeInstagram, fb *fakeFacebook, m *fakeMedia) (*Ingestor, *countingPace, *logger.TestLogger) {
	t.Helper()
	pace := &countingPace{}
	log := logger.NewTestLogger()
	opts := IngestorOptions{
		Catalog:    c,
		Media:      m,
		Config:     testConfig,
		TargetPace: pace,
		Logger:     log,
	}
	if ig != nil {
		opts.Instagram = ig
	}
	if fb != nil {
		opts.Facebook = fb
	}
	return NewIngestor(opts), pace, log
}

func seedAccounts(t *testing.T, c *catalog.Catalog, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, c.UpsertAccount(context.Background(), n, ""))
	}
}

func listPosts(t *testing.T, c *catalog.Catalog, f catalog.PostFilter) []models.CanonicalPost {
	t.Helper()
	f.Limit = 1000
	posts, err := c.ListPosts(context.Background(), f)
	require.NoError(t, err)
	return posts
}

func TestScrapeAllCountsPostsAndStories(t *testing.T) {
	c := openCatalog(t)
	seedAccounts(t, c, "natgeo")
	now := time.Date(2025, 1, 16, 8, 0, 0, 0, time.UTC)

	ig := &fakeInstagram{
		posts: map[string][]models.CanonicalPost{
			"natgeo": {
				igPost("3", "natgeo", now, "https://cdn.test/3a.jpg", "https://cdn.test/3b.jpg"),
				igPost("2", "natgeo", now.Add(-time.Hour)),
			},
		},
		stories: map[string][]models.CanonicalPost{
			"natgeo": {igStory("s1", "natgeo", now)},
		},
	}
	m := &fakeMedia{}
	in, pace, _ := newIngestor(t, c, ig, nil, m)

	counts, err := in.ScrapeAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.RunCounts{NewPosts: 2, NewStories: 1}, counts)
	assert.Equal(t, 0, pace.waits, "single target needs no target delay")

	recs, err := c.MediaForPost(context.Background(), "3")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "instagram/natgeo/3/0.jpg", recs[0].FilePath)
	assert.Equal(t, "instagram/natgeo/3/1.jpg", recs[1].FilePath)

	acct, found, err := c.GetAccount(context.Background(), "natgeo")
	require.NoError(t, err)
	require.True(t, found)
	assert.NotNil(t, acct.LastCheckedAt)
}

func TestScrapeAllIsIdempotent(t *testing.T) {
	c := openCatalog(t)
	seedAccounts(t, c, "natgeo")
	now := time.Now().UTC()

	ig := &fakeInstagram{posts: map[string][]models.CanonicalPost{
		"natgeo": {igPost("1", "natgeo", now, "https://cdn.test/1.jpg")},
	}}
	m := &fakeMedia{}
	in, _, _ := newIngestor(t, c, ig, nil, m)

	first, err := in.ScrapeAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.NewPosts)

	second, err := in.ScrapeAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.NewPosts)

	assert.Len(t, listPosts(t, c, catalog.PostFilter{}), 1)
	assert.Len(t, m.calls, 1, "known posts are not fetched again")
}

func TestScrapeAllIsolatesTargetFailures(t *testing.T) {
	c := openCatalog(t)
	seedAccounts(t, c, "alpha", "bravo", "charlie")
	now := time.Now().UTC()

	ig := &fakeInstagram{
		posts: map[string][]models.CanonicalPost{
			"alpha":   {igPost("a1", "alpha", now), igPost("a2", "alpha", now)},
			"charlie": {igPost("c1", "charlie", now)},
		},
		fail: map[string]error{
			"bravo": &errs.Error{Type: errs.ErrorTypeServerError, Message: "HTTP 503", Code: 503},
		},
	}
	in, pace, log := newIngestor(t, c, ig, nil, &fakeMedia{})

	counts, err := in.ScrapeAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, counts.NewPosts)
	assert.Equal(t, 2, pace.waits)
	assert.ElementsMatch(t, []string{"alpha", "bravo", "charlie"}, ig.postCalls)

	assert.Empty(t, listPosts(t, c, catalog.PostFilter{Owner: "bravo"}))
	assert.Len(t, listPosts(t, c, catalog.PostFilter{Owner: "alpha"}), 2)
	assert.Len(t, listPosts(t, c, catalog.PostFilter{Owner: "charlie"}), 1)
	assert.True(t, log.HasMessage("Target failed"))

	bravo, _, err := c.GetAccount(context.Background(), "bravo")
	require.NoError(t, err)
	assert.Nil(t, bravo.LastCheckedAt, "failed target is not marked checked")
}

func TestScrapeAllBackfillStopsAtBoundary(t *testing.T) {
	c := openCatalog(t)
	seedAccounts(t, c, "natgeo")
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	t1, t2, t3 := t0.Add(24*time.Hour), t0.Add(48*time.Hour), t0.Add(72*time.Hour)

	ig := &fakeInstagram{
		posts: map[string][]models.CanonicalPost{
			"natgeo": {
				igPost("p3", "natgeo", t3),
				igPost("p2", "natgeo", t2),
				igPost("p1", "natgeo", t1),
				igPost("p0", "natgeo", t0, "https://cdn.test/p0.jpg"),
			},
		},
		stories: map[string][]models.CanonicalPost{
			"natgeo": {igStory("old", "natgeo", t0), igStory("new", "natgeo", t3)},
		},
	}
	m := &fakeMedia{}
	in, _, _ := newIngestor(t, c, ig, nil, m)

	counts, err := in.ScrapeAllBackfill(context.Background(), t1)
	require.NoError(t, err)
	assert.Equal(t, models.RunCounts{NewPosts: 3, NewStories: 1}, counts)

	_, found, err := c.GetPost(context.Background(), "p0")
	require.NoError(t, err)
	assert.False(t, found)
	assert.False(t, m.fetched("https://cdn.test/p0.jpg"), "items past the boundary are never inspected")

	_, found, err = c.GetPost(context.Background(), "old")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestScrapeAllBackfillRequiresSince(t *testing.T) {
	in, _, _ := newIngestor(t, openCatalog(t), &fakeInstagram{}, nil, &fakeMedia{})
	_, err := in.ScrapeAllBackfill(context.Background(), time.Time{})
	assert.Error(t, err)
}

func TestMediaFailureKeepsPost(t *testing.T) {
	c := openCatalog(t)
	seedAccounts(t, c, "natgeo")

	ig := &fakeInstagram{posts: map[string][]models.CanonicalPost{
		"natgeo": {igPost("1", "natgeo", time.Now().UTC(), "https://cdn.test/bad.jpg", "https://cdn.test/good.jpg")},
	}}
	m := &fakeMedia{fail: map[string]bool{"https://cdn.test/bad.jpg": true}}
	in, _, log := newIngestor(t, c, ig, nil, m)

	counts, err := in.ScrapeAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, counts.NewPosts)

	recs, err := c.MediaForPost(context.Background(), "1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Empty(t, recs[0].FilePath)
	assert.Equal(t, "instagram/natgeo/1/1.jpg", recs[1].FilePath)
	assert.True(t, log.HasMessage("Media download failed"))
}

func TestMalformedPostIsSkipped(t *testing.T) {
	c := openCatalog(t)
	seedAccounts(t, c, "natgeo")

	bad := igPost("", "natgeo", time.Now().UTC())
	ig := &fakeInstagram{posts: map[string][]models.CanonicalPost{
		"natgeo": {bad, igPost("ok", "natgeo", time.Now().UTC())},
	}}
	in, _, _ := newIngestor(t, c, ig, nil, &fakeMedia{})

	counts, err := in.ScrapeAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, counts.NewPosts)
}

func TestSyncFollowing(t *testing.T) {
	c := openCatalog(t)
	ctx := context.Background()
	require.NoError(t, c.UpsertAccount(ctx, "kept", "instagram/kept/_profile/0.jpg"))
	require.NoError(t, c.UpsertAccount(ctx, "gone", ""))

	ig := &fakeInstagram{
		following: []models.Followee{
			{Username: "kept", ID: "1"},
			{Username: "fresh", ID: "2"},
			{Username: "fresh", ID: "2"},
		},
		pics: map[string]string{"fresh": "https://cdn.test/fresh.jpg"},
	}
	m := &fakeMedia{}
	in, _, _ := newIngestor(t, c, ig, nil, m)

	res, err := in.SyncFollowing(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Total: 2, Added: 1, Pruned: 1}, res)
	assert.Equal(t, []string{"fresh"}, ig.picLookups)

	fresh, found, err := c.GetAccount(ctx, "fresh")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "instagram/fresh/_profile/0.jpg", fresh.ProfilePicPath)

	_, found, err = c.GetAccount(ctx, "gone")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSyncFollowingEmptyListKeepsAccounts(t *testing.T) {
	c := openCatalog(t)
	seedAccounts(t, c, "natgeo")
	in, _, log := newIngestor(t, c, &fakeInstagram{}, nil, &fakeMedia{})

	res, err := in.SyncFollowing(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Pruned)
	assert.Len(t, log.GetMessagesByLevel("WARN"), 1)

	accounts, err := c.GetAllAccounts(context.Background())
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestScrapeAllGroups(t *testing.T) {
	c := openCatalog(t)
	ctx := context.Background()
	require.NoError(t, c.UpsertGroup(ctx, models.Group{ID: "123", URL: "https://www.facebook.com/groups/123"}))
	require.NoError(t, c.UpsertGroup(ctx, models.Group{ID: "456", Name: "Hikers", URL: "https://www.facebook.com/groups/456"}))

	fb := &fakeFacebook{
		posts: map[string][]models.CanonicalPost{
			"123": {groupPost("fb_1", "123", 2), groupPost("fb_2", "123", 0)},
			"456": {groupPost("fb_3", "456", 5)},
		},
		comments: map[string][]models.Comment{
			"fb_1": {
				{PostID: "fb_1", Author: "Bob", Text: "nice", Order: 0},
				{PostID: "fb_1", Author: "Carol", Text: "agreed", Order: 1},
			},
		},
		commentErrs: map[string]error{"fb_3": errors.New("comments unavailable")},
		names:       map[string]string{"123": "Climbers"},
	}
	in, pace, log := newIngestor(t, c, nil, fb, &fakeMedia{})

	n, err := in.ScrapeAllGroups(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, pace.waits)

	comments, err := c.CommentsForPost(ctx, "fb_1")
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "Bob", comments[0].Author)

	_, found, err := c.GetPost(ctx, "fb_3")
	require.NoError(t, err)
	assert.True(t, found, "comment failure does not fail the post")
	assert.True(t, log.HasMessage("Comment fetch failed"))

	groups, err := c.GetAllGroups(ctx)
	require.NoError(t, err)
	names := map[string]string{}
	for _, g := range groups {
		names[g.ID] = g.Name
		assert.NotNil(t, g.LastCheckedAt)
	}
	assert.Equal(t, "Climbers", names["123"])
	assert.Equal(t, "Hikers", names["456"])
}

type runnerFixture struct {
	catalog  *catalog.Catalog
	vault    *vault.Vault
	clients  *fakeClients
	notifier *recordingNotifier
	media    *fakeMedia
	log      *logger.TestLogger
	runner   *Runner
}

func newRunnerFixture(t *testing.T, ig *fakeInstagram, fb *fakeFacebook) *runnerFixture {
	t.Helper()
	c := openCatalog(t)
	v, err := vault.New(c, testKey)
	require.NoError(t, err)

	f := &runnerFixture{
		catalog:  c,
		vault:    v,
		clients:  &fakeClients{ig: ig, fb: fb},
		notifier: &recordingNotifier{},
		media:    &fakeMedia{},
		log:      logger.NewTestLogger(),
	}
	f.runner = NewRunner(Deps{
		Catalog:    c,
		Runs:       c,
		Vault:      v,
		Media:      f.media,
		Notifier:   f.notifier,
		Clients:    f.clients,
		Config:     testConfig,
		Logger:     f.log,
		TargetPace: ratelimit.Noop{},
	})
	return f
}

func (f *runnerFixture) storeCookies(t *testing.T, p models.Platform) {
	t.Helper()
	require.NoError(t, f.vault.Store(context.Background(), p, vault.Cookies{"sessionid": "abc"}))
}

func (f *runnerFixture) run(t *testing.T, id int64) *models.RunRecord {
	t.Helper()
	rec, found, err := f.catalog.GetRun(context.Background(), id)
	require.NoError(t, err)
	require.True(t, found)
	return rec
}

func TestRunnerScheduledRunBootstrapsFollowing(t *testing.T) {
	now := time.Now().UTC()
	ig := &fakeInstagram{
		validity:  session.Valid,
		following: []models.Followee{{Username: "natgeo", ID: "1"}},
		posts: map[string][]models.CanonicalPost{
			"natgeo": {igPost("1", "natgeo", now), igPost("2", "natgeo", now)},
		},
		stories: map[string][]models.CanonicalPost{
			"natgeo": {igStory("s1", "natgeo", now)},
		},
	}
	f := newRunnerFixture(t, ig, nil)
	f.storeCookies(t, models.PlatformInstagram)

	res, err := f.runner.Run(context.Background(), Job{Kind: models.RunScheduled})
	require.NoError(t, err)
	assert.Equal(t, models.RunSuccess, res.Status)
	assert.Equal(t, 1, res.Sync.Added)
	assert.Equal(t, models.RunCounts{NewPosts: 2, NewStories: 1}, res.Counts)

	rec := f.run(t, res.RunID)
	assert.Equal(t, models.RunSuccess, rec.Status)
	assert.Equal(t, 2, rec.NewPostCount)
	assert.Equal(t, 1, rec.NewStoryCount)
	assert.Contains(t, rec.Log, "Run started")
	assert.Contains(t, rec.Log, "Run finished")
}

func TestRunnerInvalidSessionMarksStaleAndAlerts(t *testing.T) {
	ig := &fakeInstagram{validity: session.Invalid}
	f := newRunnerFixture(t, ig, nil)
	f.storeCookies(t, models.PlatformInstagram)
	seedAccounts(t, f.catalog, "natgeo")
	ctx := context.Background()

	before, _, err := f.catalog.GetConfig(ctx, "ig_cookies")
	require.NoError(t, err)

	res, err := f.runner.Run(ctx, Job{Kind: models.RunScheduled})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrSessionInvalid)
	stage, _ := errs.StageOf(err)
	assert.Equal(t, errs.StageValidation, stage)

	stale, err := f.vault.IsStale(ctx, models.PlatformInstagram)
	require.NoError(t, err)
	assert.True(t, stale)

	after, _, err := f.catalog.GetConfig(ctx, "ig_cookies")
	require.NoError(t, err)
	assert.Equal(t, before, after, "stored blob is untouched")

	assert.Equal(t, []models.Platform{models.PlatformInstagram}, f.notifier.platforms)
	assert.Empty(t, ig.postCalls, "no scraping after an invalid session")

	rec := f.run(t, res.RunID)
	assert.Equal(t, models.RunError, rec.Status)
	assert.Contains(t, rec.ErrorMessage, "session invalid")
}

func TestRunnerIndeterminateSessionAborts(t *testing.T) {
	ig := &fakeInstagram{validity: session.Indeterminate}
	f := newRunnerFixture(t, ig, nil)
	f.storeCookies(t, models.PlatformInstagram)
	seedAccounts(t, f.catalog, "natgeo")
	ctx := context.Background()

	res, err := f.runner.Run(ctx, Job{Kind: models.RunScheduled})
	assert.ErrorIs(t, err, errs.ErrSessionIndeterminate)
	assert.Equal(t, models.RunError, res.Status)

	stale, err := f.vault.IsStale(ctx, models.PlatformInstagram)
	require.NoError(t, err)
	assert.False(t, stale)
	assert.Empty(t, f.notifier.platforms)
	assert.Empty(t, ig.postCalls)

	assert.False(t, f.log.HasError(), "indeterminate validity is not an error-level event")
	assert.True(t, f.log.HasMessage("Run aborted, session state indeterminate"))
}

func TestRunnerDecryptFailureMakesNoRequests(t *testing.T) {
	f := newRunnerFixture(t, &fakeInstagram{validity: session.Valid}, nil)
	ctx := context.Background()

	other, err := vault.New(f.catalog, strings.Repeat("ff", 32))
	require.NoError(t, err)
	require.NoError(t, other.Store(ctx, models.PlatformInstagram, vault.Cookies{"sessionid": "abc"}))

	res, err := f.runner.Run(ctx, Job{Kind: models.RunScheduled})
	assert.ErrorIs(t, err, errs.ErrVaultDecrypt)
	stage, _ := errs.StageOf(err)
	assert.Equal(t, errs.StageVault, stage)
	assert.Zero(t, f.clients.built, "no client is built without cookies")
	assert.Equal(t, models.RunError, f.run(t, res.RunID).Status)
}

func TestRunnerWithoutCookies(t *testing.T) {
	f := newRunnerFixture(t, &fakeInstagram{validity: session.Valid}, nil)

	_, err := f.runner.Run(context.Background(), Job{Kind: models.RunValidate})
	assert.ErrorIs(t, err, errs.ErrNoCredentials)
	assert.Zero(t, f.clients.built)
}

func TestRunnerValidateOnly(t *testing.T) {
	fb := &fakeFacebook{validity: session.Valid}
	f := newRunnerFixture(t, nil, fb)
	f.storeCookies(t, models.PlatformFacebook)

	res, err := f.runner.Run(context.Background(), Job{Kind: models.RunValidateFacebook})
	require.NoError(t, err)
	assert.Equal(t, session.Valid, res.Validity)
	assert.Equal(t, models.RunSuccess, res.Status)
}

func TestRunnerBackfillClaimedRun(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	ig := &fakeInstagram{
		validity: session.Valid,
		posts: map[string][]models.CanonicalPost{
			"natgeo": {igPost("new", "natgeo", t0.Add(48*time.Hour)), igPost("old", "natgeo", t0)},
		},
	}
	f := newRunnerFixture(t, ig, nil)
	f.storeCookies(t, models.PlatformInstagram)
	seedAccounts(t, f.catalog, "natgeo")
	ctx := context.Background()

	since := t0.Add(24 * time.Hour)
	id, err := f.catalog.RequestRun(ctx, models.RunBackfill, &since)
	require.NoError(t, err)
	claimed, err := f.catalog.ClaimRun(ctx, id)
	require.NoError(t, err)
	require.True(t, claimed)

	res, err := f.runner.Run(ctx, Job{Kind: models.RunBackfill, Since: &since, RunID: id})
	require.NoError(t, err)
	assert.Equal(t, id, res.RunID)
	assert.Equal(t, 1, res.Counts.NewPosts)
	assert.Equal(t, models.RunSuccess, f.run(t, id).Status)
}

func TestRunnerGroupsRun(t *testing.T) {
	fb := &fakeFacebook{
		validity: session.Valid,
		posts: map[string][]models.CanonicalPost{
			"123": {groupPost("fb_1", "123", 0)},
		},
	}
	f := newRunnerFixture(t, nil, fb)
	f.storeCookies(t, models.PlatformFacebook)
	require.NoError(t, f.catalog.UpsertGroup(context.Background(), models.Group{ID: "123", Name: "Climbers"}))

	res, err := f.runner.Run(context.Background(), Job{Kind: models.RunGroups})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Counts.NewPosts)
	assert.Equal(t, 1, f.run(t, res.RunID).NewPostCount)
}

func TestRunnerCancelledRunIsFinished(t *testing.T) {
	ig := &fakeInstagram{validity: session.Valid}
	f := newRunnerFixture(t, ig, nil)
	f.storeCookies(t, models.PlatformInstagram)
	for i := 0; i < 3; i++ {
		seedAccounts(t, f.catalog, fmt.Sprintf("acct%d", i))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.runner.Run(ctx, Job{Kind: models.RunScheduled, RunID: mustStart(t, f.catalog)})
	require.Error(t, err)
	assert.Equal(t, models.RunError, f.run(t, res.RunID).Status)
}

func mustStart(t *testing.T, c *catalog.Catalog) int64 {
	t.Helper()
	id, err := c.StartRun(context.Background(), models.RunScheduled, nil)
	require.NoError(t, err)
	return id
}
