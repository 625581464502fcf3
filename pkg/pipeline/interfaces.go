package pipeline

import (
	"context"
	"io"
	"time"

	"feedharvest/pkg/logger"
	"feedharvest/pkg/media"
	"feedharvest/pkg/models"
	"feedharvest/pkg/session"
	"feedharvest/pkg/vault"
)

// InstagramSource defines the Instagram calls the pipeline makes
type InstagramSource interface {
	session.Client
	Following(ctx context.Context) ([]models.Followee, error)
	ProfilePictureURL(ctx context.Context, username string) (string, error)
	UserPosts(ctx context.Context, username string, amount int) ([]models.CanonicalPost, error)
	UserPostsSince(ctx context.Context, username string, amount int, since time.Time) ([]models.CanonicalPost, error)
	UserStories(ctx context.Context, username string) ([]models.CanonicalPost, error)
}

// FacebookSource defines the Facebook calls the pipeline makes
type FacebookSource interface {
	session.Client
	GroupPosts(ctx context.Context, groupID string, limit int) ([]models.CanonicalPost, error)
	PostComments(ctx context.Context, groupID, postID string, limit int) ([]models.Comment, error)
	GroupName(ctx context.Context, groupID string) (string, error)
}

// Catalog is the persistence the ingestor needs
type Catalog interface {
	GetPost(ctx context.Context, id string) (*models.CanonicalPost, bool, error)
	InsertPost(ctx context.Context, p models.CanonicalPost) (bool, error)
	InsertMedia(ctx context.Context, m models.MediaRecord) error
	InsertComment(ctx context.Context, c models.Comment) error

	GetAccount(ctx context.Context, username string) (*models.Account, bool, error)
	GetAllAccounts(ctx context.Context) ([]models.Account, error)
	UpsertAccount(ctx context.Context, username, profilePicPath string) error
	DeleteAccountsNotIn(ctx context.Context, keep []string) (int64, error)
	UpdateLastChecked(ctx context.Context, username string) error

	GetAllGroups(ctx context.Context) ([]models.Group, error)
	UpsertGroup(ctx context.Context, g models.Group) error
	UpdateGroupLastChecked(ctx context.Context, id string) error
}

// RunStore records run lifecycles
type RunStore interface {
	StartRun(ctx context.Context, kind models.RunKind, since *time.Time) (int64, error)
	FinishRun(ctx context.Context, id int64, status models.RunStatus, counts models.RunCounts, errMsg string) error
	RunLog(ctx context.Context, id int64) io.Writer
}

// MediaFetcher downloads one media item and returns its relative path
type MediaFetcher interface {
	Fetch(ctx context.Context, sourceURL string, t media.Target) (string, error)
}

// CredentialVault hands out cookies and records staleness
type CredentialVault interface {
	Get(ctx context.Context, platform models.Platform) (vault.Cookies, bool, error)
	MarkStale(ctx context.Context, platform models.Platform) error
}

// ClientFactory builds platform clients from decrypted cookies. The logger
// is the run-scoped one so request warnings land in the run log.
type ClientFactory interface {
	Instagram(cookies vault.Cookies, log logger.Logger) InstagramSource
	Facebook(cookies vault.Cookies, log logger.Logger) FacebookSource
}
