package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"feedharvest/pkg/models"
)

const postColumns = `id, platform, owner, kind, author, text, timestamp, permalink, comment_count`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPost(row rowScanner) (models.CanonicalPost, error) {
	var (
		p  models.CanonicalPost
		ts sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Platform, &p.Owner, &p.Kind, &p.Author, &p.Text, &ts, &p.Permalink, &p.CommentCount); err != nil {
		return p, err
	}
	t, err := parseTime(ts)
	if err != nil {
		return p, err
	}
	p.Timestamp = t
	return p, nil
}

// GetPost returns the stored post with id, without media
func (c *Catalog) GetPost(ctx context.Context, id string) (*models.CanonicalPost, bool, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = ?`, id)
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get post %s: %w", id, err)
	}
	return &p, true, nil
}

// InsertPost stores p unless a post with the same id exists. inserted
// reports whether a row was written.
func (c *Catalog) InsertPost(ctx context.Context, p models.CanonicalPost) (inserted bool, err error) {
	res, err := c.db.ExecContext(ctx, `
		INSERT INTO posts (`+postColumns+`, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		p.ID, string(p.Platform), p.Owner, string(p.Kind), p.Author, p.Text,
		nullTime(p.Timestamp), p.Permalink, p.CommentCount, c.timestamp(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert post %s: %w", p.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// InsertMedia stores one media row of a post
func (c *Catalog) InsertMedia(ctx context.Context, m models.MediaRecord) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO media (post_id, kind, source_url, file_path, "order")
		VALUES (?, ?, ?, ?, ?)`,
		m.PostID, string(m.Kind), m.SourceURL, m.FilePath, m.Order,
	)
	if err != nil {
		return fmt.Errorf("failed to insert media %d of %s: %w", m.Order, m.PostID, err)
	}
	return nil
}

// MediaForPost returns the media rows of a post by order
func (c *Catalog) MediaForPost(ctx context.Context, postID string) ([]models.MediaRecord, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT post_id, kind, source_url, file_path, "order"
		FROM media WHERE post_id = ? ORDER BY "order", id`, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to list media of %s: %w", postID, err)
	}
	defer rows.Close()

	var out []models.MediaRecord
	for rows.Next() {
		var m models.MediaRecord
		if err := rows.Scan(&m.PostID, &m.Kind, &m.SourceURL, &m.FilePath, &m.Order); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// InsertComment stores a comment. A second comment at the same order of
// the same post is ignored.
func (c *Catalog) InsertComment(ctx context.Context, cm models.Comment) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO comments (post_id, author, text, timestamp, "order")
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (post_id, "order") DO NOTHING`,
		cm.PostID, cm.Author, cm.Text, nullTime(cm.Timestamp), cm.Order,
	)
	if err != nil {
		return fmt.Errorf("failed to insert comment %d of %s: %w", cm.Order, cm.PostID, err)
	}
	return nil
}

// CommentsForPost returns the stored comments of a post by order
func (c *Catalog) CommentsForPost(ctx context.Context, postID string) ([]models.Comment, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT post_id, author, text, timestamp, "order"
		FROM comments WHERE post_id = ? ORDER BY "order"`, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments of %s: %w", postID, err)
	}
	defer rows.Close()

	var out []models.Comment
	for rows.Next() {
		var (
			cm models.Comment
			ts sql.NullString
		)
		if err := rows.Scan(&cm.PostID, &cm.Author, &cm.Text, &ts, &cm.Order); err != nil {
			return nil, err
		}
		if cm.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		out = append(out, cm)
	}
	return out, rows.Err()
}

// PostFilter narrows ListPosts. Zero fields do not filter.
type PostFilter struct {
	Platform models.Platform
	Owner    string
	Kind     models.PostKind
	Limit    int
	Offset   int
}

// ListPosts returns posts newest first; posts without a timestamp sort last
func (c *Catalog) ListPosts(ctx context.Context, f PostFilter) ([]models.CanonicalPost, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.Platform != "" {
		where = append(where, "platform = ?")
		args = append(args, string(f.Platform))
	}
	if f.Owner != "" {
		where = append(where, "owner = ?")
		args = append(args, f.Owner)
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}

	query := `SELECT ` + postColumns + ` FROM posts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` ORDER BY timestamp IS NULL, timestamp DESC, created_at DESC`

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, f.Offset)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer rows.Close()

	var out []models.CanonicalPost
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
