package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/logging"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/metrics"
	"github.com/therealutkarshpriyadarshi/vidtube/pkg/models"
)

const uniqueViolation = "23505"

const accountColumns = `
	id, username, email, full_name, avatar, avatar_public_id, cover_image,
	cover_image_public_id, watch_history, password, COALESCE(refresh_token, ''),
	created_at, updated_at`

// Repository is the PostgreSQL account store
type Repository struct {
	db     *DB
	logger *logging.Logger
}

// NewRepository creates a new repository
func NewRepository(db *DB, logger *logging.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// observe records duration and outcome of a database call
func (r *Repository) observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		status = "error"
	}
	duration := time.Since(start)
	metrics.RecordDatabaseOperation(operation, status, duration.Seconds())
	if status == "error" {
		r.logger.LogDatabaseOperation(operation, duration, err)
		return
	}
	r.logger.LogDatabaseOperation(operation, duration, nil)
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(
		&a.ID, &a.Username, &a.Email, &a.FullName, &a.Avatar, &a.AvatarPublicID,
		&a.CoverImage, &a.CoverImagePublicID, &a.WatchHistory, &a.PasswordHash,
		&a.RefreshToken, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if a.WatchHistory == nil {
		a.WatchHistory = []string{}
	}
	return &a, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Accounts

// FindByID retrieves an account by ID
func (r *Repository) FindByID(ctx context.Context, id string) (a *models.Account, err error) {
	start := time.Now()
	defer func() { r.observe("FindByID", start, err) }()

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	a, err = scanAccount(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, err
}

// FindByUsernameOrEmail retrieves the account matching either identifier
func (r *Repository) FindByUsernameOrEmail(ctx context.Context, username, email string) (a *models.Account, err error) {
	start := time.Now()
	defer func() { r.observe("FindByUsernameOrEmail", start, err) }()

	if username == "" && email == "" {
		return nil, models.ErrNotFound
	}

	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE ($1 <> '' AND username = $1) OR ($2 <> '' AND email = $2)
		LIMIT 1
	`
	a, err = scanAccount(r.db.Pool.QueryRow(ctx, query, username, email))
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	return a, err
}

// FindByUsername retrieves an account by its lower-cased username
func (r *Repository) FindByUsername(ctx context.Context, username string) (a *models.Account, err error) {
	start := time.Now()
	defer func() { r.observe("FindByUsername", start, err) }()

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE username = $1`
	a, err = scanAccount(r.db.Pool.QueryRow(ctx, query, username))
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	return a, err
}

// Create inserts a new account
func (r *Repository) Create(ctx context.Context, account *models.Account) (err error) {
	start := time.Now()
	defer func() { r.observe("Create", start, err) }()

	watchHistory := account.WatchHistory
	if watchHistory == nil {
		watchHistory = []string{}
	}

	query := `
		INSERT INTO accounts (id, username, email, full_name, avatar, avatar_public_id,
		                      cover_image, cover_image_public_id, watch_history, password)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`

	err = r.db.Pool.QueryRow(ctx, query,
		account.ID, account.Username, account.Email, account.FullName,
		account.Avatar, account.AvatarPublicID, account.CoverImage,
		account.CoverImagePublicID, watchHistory, account.PasswordHash,
	).Scan(&account.CreatedAt, &account.UpdatedAt)

	if isUniqueViolation(err) {
		return models.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

// exec runs a single-row update and maps "no row" to ErrNotFound
func (r *Repository) exec(ctx context.Context, operation, query string, args ...interface{}) (err error) {
	start := time.Now()
	defer func() { r.observe(operation, start, err) }()

	tag, err := r.db.Pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", operation, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// SetRefreshToken stores the account's current refresh token
func (r *Repository) SetRefreshToken(ctx context.Context, id, token string) error {
	return r.exec(ctx, "SetRefreshToken",
		`UPDATE accounts SET refresh_token = $2, updated_at = NOW() WHERE id = $1`, id, token)
}

// RotateRefreshToken swaps the refresh token only while current is still
// the stored value
func (r *Repository) RotateRefreshToken(ctx context.Context, id, current, next string) (swapped bool, err error) {
	start := time.Now()
	defer func() { r.observe("RotateRefreshToken", start, err) }()

	query := `
		UPDATE accounts
		SET refresh_token = $3, updated_at = NOW()
		WHERE id = $1 AND refresh_token = $2
	`
	tag, err := r.db.Pool.Exec(ctx, query, id, current, next)
	if err != nil {
		return false, fmt.Errorf("failed to rotate refresh token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ClearRefreshToken removes the stored refresh token
func (r *Repository) ClearRefreshToken(ctx context.Context, id string) error {
	return r.exec(ctx, "ClearRefreshToken",
		`UPDATE accounts SET refresh_token = NULL, updated_at = NOW() WHERE id = $1`, id)
}

// UpdatePassword replaces the password hash
func (r *Repository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.exec(ctx, "UpdatePassword",
		`UPDATE accounts SET password = $2, updated_at = NOW() WHERE id = $1`, id, passwordHash)
}

// updateReturning runs an update and returns the resulting account
func (r *Repository) updateReturning(ctx context.Context, operation, set string, args ...interface{}) (a *models.Account, err error) {
	start := time.Now()
	defer func() { r.observe(operation, start, err) }()

	query := `UPDATE accounts SET ` + set + `, updated_at = NOW() WHERE id = $1 RETURNING ` + accountColumns
	a, err = scanAccount(r.db.Pool.QueryRow(ctx, query, args...))
	if isUniqueViolation(err) {
		return nil, models.ErrConflict
	}
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to %s: %w", operation, err)
	}
	return a, err
}

// UpdateDetails changes full name and email
func (r *Repository) UpdateDetails(ctx context.Context, id, fullName, email string) (*models.Account, error) {
	return r.updateReturning(ctx, "UpdateDetails", `full_name = $2, email = $3`, id, fullName, email)
}

// UpdateAvatar points the account at a new avatar asset
func (r *Repository) UpdateAvatar(ctx context.Context, id string, asset models.MediaAsset) (*models.Account, error) {
	return r.updateReturning(ctx, "UpdateAvatar", `avatar = $2, avatar_public_id = $3`, id, asset.URL, asset.PublicID)
}

// UpdateCoverImage points the account at a new cover image asset
func (r *Repository) UpdateCoverImage(ctx context.Context, id string, asset models.MediaAsset) (*models.Account, error) {
	return r.updateReturning(ctx, "UpdateCoverImage", `cover_image = $2, cover_image_public_id = $3`, id, asset.URL, asset.PublicID)
}

// Subscriptions

func (r *Repository) count(ctx context.Context, operation, query string, arg string) (n int64, err error) {
	start := time.Now()
	defer func() { r.observe(operation, start, err) }()

	if err = r.db.Pool.QueryRow(ctx, query, arg).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count subscriptions: %w", err)
	}
	return n, nil
}

// CountSubscribers counts the subscribers of a channel
func (r *Repository) CountSubscribers(ctx context.Context, channelID string) (int64, error) {
	return r.count(ctx, "CountSubscribers", `SELECT COUNT(*) FROM subscriptions WHERE channel = $1`, channelID)
}

// CountSubscriptions counts the channels an account subscribes to
func (r *Repository) CountSubscriptions(ctx context.Context, subscriberID string) (int64, error) {
	return r.count(ctx, "CountSubscriptions", `SELECT COUNT(*) FROM subscriptions WHERE subscriber = $1`, subscriberID)
}

// IsSubscribed reports whether subscriber follows channel
func (r *Repository) IsSubscribed(ctx context.Context, subscriberID, channelID string) (ok bool, err error) {
	start := time.Now()
	defer func() { r.observe("IsSubscribed", start, err) }()

	query := `SELECT EXISTS (SELECT 1 FROM subscriptions WHERE subscriber = $1 AND channel = $2)`
	if err = r.db.Pool.QueryRow(ctx, query, subscriberID, channelID).Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to check subscription: %w", err)
	}
	return ok, nil
}

// Watch history

// WatchHistory resolves the account's watch history in order, joining each
// video with a reduced projection of its owner
func (r *Repository) WatchHistory(ctx context.Context, accountID string) (entries []*models.WatchHistoryEntry, err error) {
	start := time.Now()
	defer func() { r.observe("WatchHistory", start, err) }()

	query := `
		SELECT v.id, v.owner, v.video_file, v.thumbnail, v.title, v.description,
		       v.duration, v.views, v.is_published, v.created_at, v.updated_at,
		       o.id, o.full_name, o.username, o.avatar
		FROM accounts a
		CROSS JOIN LATERAL unnest(a.watch_history) WITH ORDINALITY AS h(video_id, pos)
		JOIN videos v ON v.id = h.video_id
		LEFT JOIN accounts o ON o.id = v.owner
		WHERE a.id = $1
		ORDER BY h.pos
	`

	rows, err := r.db.Pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get watch history: %w", err)
	}
	defer rows.Close()

	entries = []*models.WatchHistoryEntry{}
	for rows.Next() {
		var (
			entry                                      models.WatchHistoryEntry
			ownerID, ownerName, ownerUser, ownerAvatar *string
		)
		v := &entry.Video
		err := rows.Scan(
			&v.ID, &v.OwnerID, &v.VideoFile, &v.Thumbnail, &v.Title, &v.Description,
			&v.Duration, &v.Views, &v.IsPublished, &v.CreatedAt, &v.UpdatedAt,
			&ownerID, &ownerName, &ownerUser, &ownerAvatar,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan watch history: %w", err)
		}
		if ownerID != nil {
			entry.Owner = &models.VideoOwner{
				ID:       *ownerID,
				FullName: deref(ownerName),
				Username: deref(ownerUser),
				Avatar:   deref(ownerAvatar),
			}
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate watch history: %w", err)
	}

	if len(entries) == 0 {
		var exists bool
		if err := r.db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, accountID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("failed to get account: %w", err)
		}
		if !exists {
			return nil, models.ErrNotFound
		}
	}

	return entries, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
