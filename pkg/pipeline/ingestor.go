package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"feedharvest/pkg/config"
	errs "feedharvest/pkg/errors"
	"feedharvest/pkg/logger"
	"feedharvest/pkg/media"
	"feedharvest/pkg/models"
	"feedharvest/pkg/ratelimit"
)

// SyncResult summarizes a following reconciliation
type SyncResult struct {
	Total  int
	Added  int
	Pruned int64
}

// Ingestor scrapes targets one after another and persists what is new.
// Either client may be nil when the run does not touch that platform.
type Ingestor struct {
	ig         InstagramSource
	fb         FacebookSource
	catalog    Catalog
	media      MediaFetcher
	cfg        config.PipelineConfig
	targetPace ratelimit.Limiter
	logger     logger.Logger
}

// IngestorOptions wires an Ingestor
type IngestorOptions struct {
	Instagram  InstagramSource
	Facebook   FacebookSource
	Catalog    Catalog
	Media      MediaFetcher
	Config     config.PipelineConfig
	TargetPace ratelimit.Limiter
	Logger     logger.Logger
}

// NewIngestor creates an Ingestor. TargetPace defaults to the configured
// target delay range.
func NewIngestor(opts IngestorOptions) *Ingestor {
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	pace := opts.TargetPace
	if pace == nil {
		pace = ratelimit.NewJittered(opts.Config.TargetMinDelay, opts.Config.TargetMaxDelay)
	}
	return &Ingestor{
		ig:         opts.Instagram,
		fb:         opts.Facebook,
		catalog:    opts.Catalog,
		media:      opts.Media,
		cfg:        opts.Config,
		targetPace: pace,
		logger:     log,
	}
}

// SyncFollowing reconciles tracked accounts with the session's following
// list: every followee is upserted and accounts no longer followed are
// pruned. Profile pictures are fetched for new accounts and for accounts
// whose earlier fetch failed.
func (in *Ingestor) SyncFollowing(ctx context.Context) (SyncResult, error) {
	var res SyncResult

	following, err := in.ig.Following(ctx)
	if err != nil {
		return res, errs.AtStage(errs.StageSync, "", err)
	}

	seen := make(map[string]bool, len(following))
	keep := make([]string, 0, len(following))
	for _, f := range following {
		if f.Username == "" || seen[f.Username] {
			continue
		}
		seen[f.Username] = true
		keep = append(keep, f.Username)
	}
	res.Total = len(keep)

	if len(keep) == 0 {
		in.logger.Warn("Following list is empty, keeping tracked accounts")
		return res, nil
	}

	for _, username := range keep {
		existing, found, err := in.catalog.GetAccount(ctx, username)
		if err != nil {
			return res, errs.AtStage(errs.StagePersistence, username, err)
		}

		pic := ""
		if found {
			pic = existing.ProfilePicPath
		} else {
			res.Added++
		}
		if pic == "" {
			pic, err = in.profilePicture(ctx, username)
			if err != nil {
				return res, errs.AtStage(errs.StageSync, username, err)
			}
		}

		if err := in.catalog.UpsertAccount(ctx, username, pic); err != nil {
			return res, errs.AtStage(errs.StagePersistence, username, err)
		}
	}

	pruned, err := in.catalog.DeleteAccountsNotIn(ctx, keep)
	if err != nil {
		return res, errs.AtStage(errs.StagePersistence, "", err)
	}
	res.Pruned = pruned

	in.logger.InfoWithFields("Following synced", map[string]interface{}{
		"total":  res.Total,
		"added":  res.Added,
		"pruned": res.Pruned,
	})
	return res, nil
}

// profilePicture downloads an account's avatar. Failures leave the path
// empty so the next sync retries; only cancellation is returned.
func (in *Ingestor) profilePicture(ctx context.Context, username string) (string, error) {
	url, err := in.ig.ProfilePictureURL(ctx, username)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		in.logger.WithError(err).WithField("username", username).Warn("Profile picture lookup failed")
		return "", nil
	}
	if url == "" {
		return "", nil
	}

	rel, err := in.media.Fetch(ctx, url, media.Target{
		Platform: models.PlatformInstagram,
		Owner:    username,
		PostID:   media.ProfilePostID,
		Kind:     models.MediaImage,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		in.logger.WithError(err).WithField("username", username).Warn("Profile picture download failed")
		return "", nil
	}
	return rel, nil
}

// ScrapeAll runs a scheduled pass over every tracked account
func (in *Ingestor) ScrapeAll(ctx context.Context) (models.RunCounts, error) {
	return in.scrapeAccounts(ctx, time.Time{})
}

// ScrapeAllBackfill walks every tracked account back to since. Each feed is
// assumed newest first, so the first older post ends that account.
func (in *Ingestor) ScrapeAllBackfill(ctx context.Context, since time.Time) (models.RunCounts, error) {
	if since.IsZero() {
		return models.RunCounts{}, errors.New("backfill requires a since time")
	}
	return in.scrapeAccounts(ctx, since)
}

func (in *Ingestor) scrapeAccounts(ctx context.Context, since time.Time) (models.RunCounts, error) {
	var total models.RunCounts

	accounts, err := in.catalog.GetAllAccounts(ctx)
	if err != nil {
		return total, errs.AtStage(errs.StagePersistence, "", err)
	}

	in.logger.InfoWithFields("Scraping accounts", map[string]interface{}{
		"accounts": len(accounts),
		"backfill": !since.IsZero(),
	})

	for i, account := range accounts {
		if i > 0 {
			if err := in.targetPace.Wait(ctx); err != nil {
				return total, errs.AtStage(errs.StageScrape, "", err)
			}
		}

		counts, err := in.scrapeAccount(ctx, account.Username, since)
		logger.LogTargetResult(in.logger, account.Username, counts.NewPosts, counts.NewStories, err)
		if err != nil {
			if ctx.Err() != nil {
				return total, errs.AtStage(errs.StageScrape, account.Username, ctx.Err())
			}
			continue
		}
		total.NewPosts += counts.NewPosts
		total.NewStories += counts.NewStories
	}

	return total, nil
}

// scrapeAccount ingests one account's posts and stories. Any error fails
// the whole target.
func (in *Ingestor) scrapeAccount(ctx context.Context, username string, since time.Time) (models.RunCounts, error) {
	var counts models.RunCounts
	backfill := !since.IsZero()

	var posts []models.CanonicalPost
	var err error
	if backfill {
		posts, err = in.ig.UserPostsSince(ctx, username, in.cfg.BackfillPosts, since)
	} else {
		posts, err = in.ig.UserPosts(ctx, username, in.cfg.PostsPerAccount)
	}
	if err != nil {
		return counts, fmt.Errorf("fetch posts: %w", err)
	}

	for _, p := range posts {
		if backfill && p.HasTimestamp() && p.Timestamp.Before(since) {
			break
		}
		isNew, err := in.ingest(ctx, p)
		if err != nil {
			return counts, err
		}
		if isNew {
			counts.NewPosts++
		}
	}

	if in.cfg.IncludeStories {
		stories, err := in.ig.UserStories(ctx, username)
		if err != nil {
			return counts, fmt.Errorf("fetch stories: %w", err)
		}
		for _, s := range stories {
			// story trays are oldest first, so filter instead of stopping
			if backfill && s.HasTimestamp() && s.Timestamp.Before(since) {
				continue
			}
			isNew, err := in.ingest(ctx, s)
			if err != nil {
				return counts, err
			}
			if isNew {
				counts.NewStories++
			}
		}
	}

	if err := in.catalog.UpdateLastChecked(ctx, username); err != nil {
		return counts, fmt.Errorf("update last checked: %w", err)
	}
	return counts, nil
}

// ScrapeAllGroups runs a pass over every tracked Facebook group and
// returns the number of new group posts.
func (in *Ingestor) ScrapeAllGroups(ctx context.Context) (int, error) {
	groups, err := in.catalog.GetAllGroups(ctx)
	if err != nil {
		return 0, errs.AtStage(errs.StagePersistence, "", err)
	}

	in.logger.InfoWithFields("Scraping groups", map[string]interface{}{
		"groups": len(groups),
	})

	total := 0
	for i, g := range groups {
		if i > 0 {
			if err := in.targetPace.Wait(ctx); err != nil {
				return total, errs.AtStage(errs.StageScrape, "", err)
			}
		}

		n, err := in.scrapeGroup(ctx, g)
		logger.LogTargetResult(in.logger, "group:"+g.ID, n, 0, err)
		if err != nil {
			if ctx.Err() != nil {
				return total, errs.AtStage(errs.StageScrape, g.ID, ctx.Err())
			}
			continue
		}
		total += n
	}
	return total, nil
}

func (in *Ingestor) scrapeGroup(ctx context.Context, g models.Group) (int, error) {
	if g.Name == "" {
		in.discoverGroupName(ctx, g)
	}

	posts, err := in.fb.GroupPosts(ctx, g.ID, in.cfg.GroupPostLimit)
	if err != nil {
		return 0, fmt.Errorf("fetch group posts: %w", err)
	}

	newPosts := 0
	for _, p := range posts {
		isNew, err := in.ingest(ctx, p)
		if err != nil {
			return newPosts, err
		}
		if !isNew {
			continue
		}
		newPosts++
		if p.CommentCount > 0 {
			in.ingestComments(ctx, g.ID, p.ID)
		}
	}

	if err := in.catalog.UpdateGroupLastChecked(ctx, g.ID); err != nil {
		return newPosts, fmt.Errorf("update last checked: %w", err)
	}
	return newPosts, nil
}

func (in *Ingestor) discoverGroupName(ctx context.Context, g models.Group) {
	name, err := in.fb.GroupName(ctx, g.ID)
	if err != nil {
		in.logger.WithError(err).WithField("group", g.ID).Warn("Group name lookup failed")
		return
	}
	g.Name = name
	if err := in.catalog.UpsertGroup(ctx, g); err != nil {
		in.logger.WithError(err).WithField("group", g.ID).Warn("Failed to save group name")
	}
}

// ingestComments stores the first comments of a new group post. Failures
// here never fail the post.
func (in *Ingestor) ingestComments(ctx context.Context, groupID, postID string) {
	log := in.logger.WithField("post_id", postID)

	comments, err := in.fb.PostComments(ctx, groupID, postID, in.cfg.CommentsPerPost)
	if err != nil {
		log.WithError(err).Warn("Comment fetch failed")
		return
	}
	for _, c := range comments {
		if err := in.catalog.InsertComment(ctx, c); err != nil {
			log.WithError(err).Warn("Failed to save comment")
		}
	}
	log.DebugWithFields("Comments saved", map[string]interface{}{"count": len(comments)})
}

// ingest persists one post if it is new. Media is fetched before the post
// row is written; a failed item keeps an empty path.
func (in *Ingestor) ingest(ctx context.Context, p models.CanonicalPost) (bool, error) {
	_, exists, err := in.catalog.GetPost(ctx, p.ID)
	if err != nil {
		return false, fmt.Errorf("lookup post %s: %w", p.ID, err)
	}
	if exists {
		return false, nil
	}

	if err := p.Validate(); err != nil {
		in.logger.WithError(err).Warn("Skipping malformed post")
		return false, nil
	}

	records := make([]models.MediaRecord, 0, len(p.Media))
	for _, m := range p.Media {
		rel, err := in.media.Fetch(ctx, m.SourceURL, media.Target{
			Platform: p.Platform,
			Owner:    p.Owner,
			PostID:   p.ID,
			Order:    m.Order,
			Kind:     m.Kind,
		})
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			in.logger.WithError(err).WithFields(map[string]interface{}{
				"post_id": p.ID,
				"order":   m.Order,
			}).Warn("Media download failed")
			rel = ""
		}
		records = append(records, models.MediaRecord{
			PostID:    p.ID,
			Kind:      m.Kind,
			SourceURL: m.SourceURL,
			FilePath:  rel,
			Order:     m.Order,
		})
	}

	inserted, err := in.catalog.InsertPost(ctx, p)
	if err != nil {
		return false, fmt.Errorf("insert post %s: %w", p.ID, err)
	}
	if !inserted {
		return false, nil
	}

	for _, r := range records {
		if err := in.catalog.InsertMedia(ctx, r); err != nil {
			return true, fmt.Errorf("insert media for %s: %w", p.ID, err)
		}
	}
	return true, nil
}
