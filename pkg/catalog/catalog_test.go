package catalog

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedharvest/pkg/models"
	"feedharvest/pkg/vault"
)

// clock is a settable time source for run timestamps
type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func setup(t testing.TB) (*Catalog, *clock) {
	t.Helper()
	c, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	clk := &clock{t: time.Date(2025, 1, 16, 8, 0, 0, 0, time.UTC)}
	c.now = clk.now
	return c, clk
}

func igPost(id string, ts time.Time) models.CanonicalPost {
	return models.CanonicalPost{
		ID:        id,
		Platform:  models.PlatformInstagram,
		Owner:     "natgeo",
		Kind:      models.KindPost,
		Author:    "natgeo",
		Text:      "caption " + id,
		Timestamp: ts,
		Permalink: "https://www.instagram.com/p/" + id + "/",
	}
}

func TestOpenFileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "feedharvest.db")
	c, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	// reopening applies the schema again without error
	c, err = Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, c.Close())
}

func TestInsertPostIsIdempotent(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()
	ts := time.Date(2025, 1, 15, 12, 30, 0, 0, time.UTC)

	inserted, err := c.InsertPost(ctx, igPost("1", ts))
	require.NoError(t, err)
	assert.True(t, inserted)

	dup := igPost("1", ts)
	dup.Text = "changed"
	inserted, err = c.InsertPost(ctx, dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	got, found, err := c.GetPost(ctx, "1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "caption 1", got.Text)
	assert.True(t, ts.Equal(got.Timestamp))
	assert.Equal(t, models.KindPost, got.Kind)

	_, found, err = c.GetPost(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPostWithoutTimestamp(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	_, err := c.InsertPost(ctx, igPost("2", time.Time{}))
	require.NoError(t, err)

	got, _, err := c.GetPost(ctx, "2")
	require.NoError(t, err)
	assert.False(t, got.HasTimestamp())
}

func TestMediaAndComments(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	post := models.CanonicalPost{
		ID: "fb_456", Platform: models.PlatformFacebook, Owner: "123",
		Kind: models.KindGroupPost, Author: "John", CommentCount: 2,
	}
	_, err := c.InsertPost(ctx, post)
	require.NoError(t, err)

	require.NoError(t, c.InsertMedia(ctx, models.MediaRecord{PostID: "fb_456", Kind: models.MediaVideo, SourceURL: "b", FilePath: "", Order: 1}))
	require.NoError(t, c.InsertMedia(ctx, models.MediaRecord{PostID: "fb_456", Kind: models.MediaImage, SourceURL: "a", FilePath: "facebook/123/fb_456/0.jpg", Order: 0}))

	media, err := c.MediaForPost(ctx, "fb_456")
	require.NoError(t, err)
	require.Len(t, media, 2)
	assert.Equal(t, "facebook/123/fb_456/0.jpg", media[0].FilePath)
	assert.Equal(t, "", media[1].FilePath)

	ts := time.Date(2025, 1, 16, 4, 1, 40, 0, time.UTC)
	require.NoError(t, c.InsertComment(ctx, models.Comment{PostID: "fb_456", Author: "Alice", Text: "hi", Timestamp: ts, Order: 0}))
	require.NoError(t, c.InsertComment(ctx, models.Comment{PostID: "fb_456", Author: "Alice", Text: "hi again", Order: 0}))
	require.NoError(t, c.InsertComment(ctx, models.Comment{PostID: "fb_456", Author: "Bob", Text: "yo", Order: 2}))

	comments, err := c.CommentsForPost(ctx, "fb_456")
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "hi", comments[0].Text)
	assert.True(t, ts.Equal(comments[0].Timestamp))
	assert.Equal(t, 2, comments[1].Order)

	assert.Error(t, c.InsertMedia(ctx, models.MediaRecord{PostID: "nope", Kind: models.MediaImage, Order: 0}),
		"media of an unknown post violates the foreign key")
}

func TestListPosts(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, err := c.InsertPost(ctx, igPost(fmt.Sprint(i), base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}
	_, err := c.InsertPost(ctx, igPost("undated", time.Time{}))
	require.NoError(t, err)
	other := igPost("nasa1", base)
	other.Owner = "nasa"
	_, err = c.InsertPost(ctx, other)
	require.NoError(t, err)

	posts, err := c.ListPosts(ctx, PostFilter{Owner: "natgeo"})
	require.NoError(t, err)
	var ids []string
	for _, p := range posts {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"2", "1", "0", "undated"}, ids)

	posts, err = c.ListPosts(ctx, PostFilter{Platform: models.PlatformInstagram, Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "1", posts[0].ID)
}

func TestAccounts(t *testing.T) {
	c, clk := setup(t)
	ctx := context.Background()

	require.NoError(t, c.UpsertAccount(ctx, "natgeo", ""))
	require.NoError(t, c.UpsertAccount(ctx, "nasa", "instagram/nasa/_profile/0.jpg"))
	require.NoError(t, c.UpsertAccount(ctx, "natgeo", "instagram/natgeo/_profile/0.jpg"))

	a, found, err := c.GetAccount(ctx, "natgeo")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "instagram/natgeo/_profile/0.jpg", a.ProfilePicPath)
	assert.Nil(t, a.LastCheckedAt)

	require.NoError(t, c.UpdateLastChecked(ctx, "natgeo"))
	a, _, err = c.GetAccount(ctx, "natgeo")
	require.NoError(t, err)
	require.NotNil(t, a.LastCheckedAt)
	assert.True(t, clk.t.Equal(*a.LastCheckedAt))

	n, err := c.DeleteAccountsNotIn(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = c.DeleteAccountsNotIn(ctx, []string{"natgeo", "someone_new"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	accounts, err := c.GetAllAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "natgeo", accounts[0].Username)
}

func TestPruningKeepsHarvestedPosts(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	require.NoError(t, c.UpsertAccount(ctx, "natgeo", ""))
	_, err := c.InsertPost(ctx, igPost("1", time.Time{}))
	require.NoError(t, err)

	_, err = c.DeleteAccountsNotIn(ctx, []string{"nasa"})
	require.NoError(t, err)

	_, found, err := c.GetPost(ctx, "1")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestGroups(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	require.NoError(t, c.UpsertGroup(ctx, models.Group{ID: "123", URL: "https://www.facebook.com/groups/123/"}))
	require.NoError(t, c.UpsertGroup(ctx, models.Group{ID: "123", Name: "Test Group"}))
	require.NoError(t, c.UpsertGroup(ctx, models.Group{ID: "123"}))
	require.NoError(t, c.UpdateGroupLastChecked(ctx, "123"))

	groups, err := c.GetAllGroups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "Test Group", groups[0].Name)
	assert.Equal(t, "https://www.facebook.com/groups/123/", groups[0].URL)
	assert.NotNil(t, groups[0].LastCheckedAt)

	deleted, err := c.DeleteGroup(ctx, "123")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = c.DeleteGroup(ctx, "123")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestConfigBacksTheVault(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	_, found, err := c.GetConfig(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	v, err := vault.New(c, "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff")
	require.NoError(t, err)
	require.NoError(t, v.Store(ctx, models.PlatformFacebook, vault.Cookies{"c_user": "1", "xs": "2"}))

	raw, found, err := c.GetConfig(ctx, "fb_cookies")
	require.NoError(t, err)
	require.True(t, found)
	assert.NotContains(t, raw, "c_user")

	cookies, found, err := v.Get(ctx, models.PlatformFacebook)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "2", cookies["xs"])
}

func TestRunLifecycle(t *testing.T) {
	c, clk := setup(t)
	ctx := context.Background()
	since := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)

	id, err := c.RequestRun(ctx, models.RunBackfill, &since)
	require.NoError(t, err)

	groupsID, err := c.RequestRun(ctx, models.RunGroups, nil)
	require.NoError(t, err)

	queued, err := c.PendingRuns(ctx)
	require.NoError(t, err)
	require.Len(t, queued, 2)
	assert.Equal(t, groupsID, queued[1].ID, "oldest first")
	pending := queued[0]
	assert.Equal(t, id, pending.ID)
	assert.Equal(t, models.RunPending, pending.Status)
	require.NotNil(t, pending.Since)
	assert.True(t, since.Equal(*pending.Since))

	claimed, err := c.ClaimRun(ctx, id)
	require.NoError(t, err)
	assert.True(t, claimed)
	claimed, err = c.ClaimRun(ctx, id)
	require.NoError(t, err)
	assert.False(t, claimed, "a running run cannot be claimed twice")

	queued, err = c.PendingRuns(ctx)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, groupsID, queued[0].ID)

	require.NoError(t, c.AppendLog(ctx, id, "Starting backfill"))
	_, err = io.WriteString(c.RunLog(ctx, id), "INF natgeo done\n")
	require.NoError(t, err)

	clk.t = clk.t.Add(time.Minute)
	require.NoError(t, c.FinishRun(ctx, id, models.RunSuccess, models.RunCounts{NewPosts: 4, NewStories: 1}, ""))

	run, found, err := c.GetRun(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, models.RunSuccess, run.Status)
	assert.Equal(t, 4, run.NewPostCount)
	assert.Equal(t, 1, run.NewStoryCount)
	assert.Equal(t, "Starting backfill\nINF natgeo done\n", run.Log)
	require.NotNil(t, run.StartedAt)
	require.NotNil(t, run.FinishedAt)
	assert.Equal(t, time.Minute, run.FinishedAt.Sub(*run.StartedAt))
}

func TestResetStaleRuns(t *testing.T) {
	c, clk := setup(t)
	ctx := context.Background()

	old, err := c.StartRun(ctx, models.RunScheduled, nil)
	require.NoError(t, err)
	clk.t = clk.t.Add(50 * time.Minute)
	recent, err := c.StartRun(ctx, models.RunGroups, nil)
	require.NoError(t, err)
	pending, err := c.RequestRun(ctx, models.RunValidate, nil)
	require.NoError(t, err)

	clk.t = clk.t.Add(20 * time.Minute)
	n, err := c.ResetStaleRuns(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	run, _, err := c.GetRun(ctx, old)
	require.NoError(t, err)
	assert.Equal(t, models.RunError, run.Status)
	assert.Equal(t, StaleRunMessage, run.ErrorMessage)

	run, _, err = c.GetRun(ctx, recent)
	require.NoError(t, err)
	assert.Equal(t, models.RunRunning, run.Status)

	run, _, err = c.GetRun(ctx, pending)
	require.NoError(t, err)
	assert.Equal(t, models.RunPending, run.Status)

	runs, err := c.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, pending, runs[0].ID)
}
