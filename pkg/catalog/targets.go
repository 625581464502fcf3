package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"feedharvest/pkg/models"
)

// GetAccount returns a tracked account
func (c *Catalog) GetAccount(ctx context.Context, username string) (*models.Account, bool, error) {
	var (
		a       models.Account
		checked sql.NullString
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT username, profile_pic_path, last_checked_at FROM accounts WHERE username = ?`, username,
	).Scan(&a.Username, &a.ProfilePicPath, &checked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get account %s: %w", username, err)
	}
	if a.LastCheckedAt, err = parseTimePtr(checked); err != nil {
		return nil, false, err
	}
	return &a, true, nil
}

// GetAllAccounts returns every tracked account by username
func (c *Catalog) GetAllAccounts(ctx context.Context) ([]models.Account, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT username, profile_pic_path, last_checked_at FROM accounts ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var out []models.Account
	for rows.Next() {
		var (
			a       models.Account
			checked sql.NullString
		)
		if err := rows.Scan(&a.Username, &a.ProfilePicPath, &checked); err != nil {
			return nil, err
		}
		if a.LastCheckedAt, err = parseTimePtr(checked); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpsertAccount tracks username, replacing its profile picture path
func (c *Catalog) UpsertAccount(ctx context.Context, username, profilePicPath string) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO accounts (username, profile_pic_path, added_at) VALUES (?, ?, ?)
		ON CONFLICT (username) DO UPDATE SET profile_pic_path = excluded.profile_pic_path`,
		username, profilePicPath, c.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert account %s: %w", username, err)
	}
	return nil
}

// DeleteAccountsNotIn stops tracking every account missing from keep. An
// empty keep deletes nothing.
func (c *Catalog) DeleteAccountsNotIn(ctx context.Context, keep []string) (int64, error) {
	if len(keep) == 0 {
		return 0, nil
	}

	args := make([]interface{}, len(keep))
	for i, u := range keep {
		args[i] = u
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keep)), ",")

	res, err := c.db.ExecContext(ctx,
		`DELETE FROM accounts WHERE username NOT IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to prune accounts: %w", err)
	}
	return res.RowsAffected()
}

// UpdateLastChecked stamps an account as scraped now
func (c *Catalog) UpdateLastChecked(ctx context.Context, username string) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE accounts SET last_checked_at = ? WHERE username = ?`, c.timestamp(), username)
	if err != nil {
		return fmt.Errorf("failed to update last checked of %s: %w", username, err)
	}
	return nil
}

// GetAllGroups returns every tracked group by id
func (c *Catalog) GetAllGroups(ctx context.Context) ([]models.Group, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, name, url, last_checked_at FROM fb_groups ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var out []models.Group
	for rows.Next() {
		var (
			g       models.Group
			checked sql.NullString
		)
		if err := rows.Scan(&g.ID, &g.Name, &g.URL, &checked); err != nil {
			return nil, err
		}
		if g.LastCheckedAt, err = parseTimePtr(checked); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// UpsertGroup tracks a group. Empty name or url keep the stored values.
func (c *Catalog) UpsertGroup(ctx context.Context, g models.Group) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO fb_groups (id, name, url, added_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = CASE WHEN excluded.name <> '' THEN excluded.name ELSE fb_groups.name END,
			url  = CASE WHEN excluded.url  <> '' THEN excluded.url  ELSE fb_groups.url  END`,
		g.ID, g.Name, g.URL, c.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert group %s: %w", g.ID, err)
	}
	return nil
}

// DeleteGroup stops tracking a group
func (c *Catalog) DeleteGroup(ctx context.Context, id string) (bool, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM fb_groups WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete group %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// UpdateGroupLastChecked stamps a group as scraped now
func (c *Catalog) UpdateGroupLastChecked(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE fb_groups SET last_checked_at = ? WHERE id = ?`, c.timestamp(), id)
	if err != nil {
		return fmt.Errorf("failed to update last checked of group %s: %w", id, err)
	}
	return nil
}

// GetConfig reads a configuration entry
func (c *Catalog) GetConfig(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := c.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read config %s: %w", key, err)
	}
	return v, true, nil
}

// SetConfig writes a configuration entry
func (c *Catalog) SetConfig(ctx context.Context, key, value string) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write config %s: %w", key, err)
	}
	return nil
}
