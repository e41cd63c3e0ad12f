package database

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/config"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/logging"
	"github.com/therealutkarshpriyadarshi/vidtube/pkg/models"
)

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.True(t, isUniqueViolation(errors.Join(errors.New("wrapped"), &pgconn.PgError{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("boom")))
	assert.False(t, isUniqueViolation(nil))
}

// setupRepository connects to VIDTUBE_TEST_DB_HOST and applies migrations
func setupRepository(t *testing.T) (*Repository, *DB) {
	t.Helper()

	host := os.Getenv("VIDTUBE_TEST_DB_HOST")
	if host == "" {
		t.Skip("Skipping integration test - requires database connection")
	}

	db, err := New(config.DatabaseConfig{
		Host:     host,
		Port:     5432,
		User:     envOr("VIDTUBE_TEST_DB_USER", "postgres"),
		Password: envOr("VIDTUBE_TEST_DB_PASSWORD", "postgres"),
		DBName:   envOr("VIDTUBE_TEST_DB_NAME", "vidtube_test"),
		SSLMode:  "disable",
		MaxConns: 5,
		MinConns: 1,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, db.Migrate(context.Background()))
	return NewRepository(db, logging.Nop()), db
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newAccount() *models.Account {
	id := uuid.New().String()
	return &models.Account{
		ID:           id,
		Username:     "user" + id[:8],
		Email:        id[:8] + "@example.com",
		FullName:     "Test User",
		Avatar:       "http://media/avatars/a.png",
		PasswordHash: "hash",
	}
}

func TestRepository_Accounts(t *testing.T) {
	repo, _ := setupRepository(t)
	ctx := context.Background()

	acc := newAccount()
	require.NoError(t, repo.Create(ctx, acc))
	assert.False(t, acc.CreatedAt.IsZero())

	dup := newAccount()
	dup.Username = acc.Username
	assert.ErrorIs(t, repo.Create(ctx, dup), models.ErrConflict)

	got, err := repo.FindByUsernameOrEmail(ctx, "", acc.Email)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, got.ID)
	assert.Equal(t, []string{}, got.WatchHistory)
	assert.Empty(t, got.RefreshToken)

	_, err = repo.FindByUsernameOrEmail(ctx, "", "")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = repo.FindByID(ctx, uuid.New().String())
	assert.ErrorIs(t, err, models.ErrNotFound)

	updated, err := repo.UpdateDetails(ctx, acc.ID, "New Name", "new-"+acc.Email)
	require.NoError(t, err)
	assert.Equal(t, "New Name", updated.FullName)

	other := newAccount()
	require.NoError(t, repo.Create(ctx, other))
	_, err = repo.UpdateDetails(ctx, other.ID, "x", updated.Email)
	assert.ErrorIs(t, err, models.ErrConflict)

	avatar, err := repo.UpdateAvatar(ctx, acc.ID, models.MediaAsset{URL: "http://media/a2.png", PublicID: "avatars/a2.png"})
	require.NoError(t, err)
	assert.Equal(t, "avatars/a2.png", avatar.AvatarPublicID)
}

func TestRepository_RefreshTokenRotation(t *testing.T) {
	repo, _ := setupRepository(t)
	ctx := context.Background()

	acc := newAccount()
	require.NoError(t, repo.Create(ctx, acc))
	require.NoError(t, repo.SetRefreshToken(ctx, acc.ID, "r1"))

	var wg sync.WaitGroup
	results := make([]bool, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := repo.RotateRefreshToken(ctx, acc.ID, "r1", uuid.New().String())
			assert.NoError(t, err)
			results[i] = ok
		}(i)
	}
	wg.Wait()
	assert.ElementsMatch(t, []bool{true, false}, results)

	require.NoError(t, repo.ClearRefreshToken(ctx, acc.ID))
	got, err := repo.FindByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Empty(t, got.RefreshToken)

	assert.ErrorIs(t, repo.ClearRefreshToken(ctx, uuid.New().String()), models.ErrNotFound)
}

func TestRepository_SubscriptionsAndHistory(t *testing.T) {
	repo, db := setupRepository(t)
	ctx := context.Background()

	channel := newAccount()
	viewer := newAccount()
	require.NoError(t, repo.Create(ctx, channel))
	require.NoError(t, repo.Create(ctx, viewer))

	_, err := db.Pool.Exec(ctx,
		`INSERT INTO subscriptions (id, subscriber, channel) VALUES ($1, $2, $3)`,
		uuid.New().String(), viewer.ID, channel.ID)
	require.NoError(t, err)

	n, err := repo.CountSubscribers(ctx, channel.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.CountSubscriptions(ctx, channel.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	ok, err := repo.IsSubscribed(ctx, viewer.ID, channel.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	v1, v2 := uuid.New().String(), uuid.New().String()
	for _, id := range []string{v1, v2} {
		_, err := db.Pool.Exec(ctx,
			`INSERT INTO videos (id, owner, video_file, thumbnail, title) VALUES ($1, $2, 'f', 't', $1)`,
			id, channel.ID)
		require.NoError(t, err)
	}
	_, err = db.Pool.Exec(ctx,
		`UPDATE accounts SET watch_history = $2 WHERE id = $1`,
		viewer.ID, []string{v2, "missing-video", v1})
	require.NoError(t, err)

	history, err := repo.WatchHistory(ctx, viewer.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, v2, history[0].ID)
	assert.Equal(t, v1, history[1].ID)
	require.NotNil(t, history[0].Owner)
	assert.Equal(t, channel.Username, history[0].Owner.Username)

	empty, err := repo.WatchHistory(ctx, channel.ID)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = repo.WatchHistory(ctx, uuid.New().String())
	assert.ErrorIs(t, err, models.ErrNotFound)
}
