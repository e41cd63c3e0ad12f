package account

import (
	"context"

	"github.com/therealutkarshpriyadarshi/vidtube/internal/events"
	"github.com/therealutkarshpriyadarshi/vidtube/pkg/models"
)

// Repository is the account store. Lookups return models.ErrNotFound when
// nothing matches and writes return models.ErrConflict on a duplicate
// username or email.
type Repository interface {
	FindByID(ctx context.Context, id string) (*models.Account, error)
	// FindByUsernameOrEmail matches either field. Empty arguments are ignored.
	FindByUsernameOrEmail(ctx context.Context, username, email string) (*models.Account, error)
	FindByUsername(ctx context.Context, username string) (*models.Account, error)
	Create(ctx context.Context, account *models.Account) error

	SetRefreshToken(ctx context.Context, id, token string) error
	// RotateRefreshToken replaces current with next only if current is still
	// the stored value. It reports whether the swap happened.
	RotateRefreshToken(ctx context.Context, id, current, next string) (bool, error)
	ClearRefreshToken(ctx context.Context, id string) error

	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UpdateDetails(ctx context.Context, id, fullName, email string) (*models.Account, error)
	UpdateAvatar(ctx context.Context, id string, asset models.MediaAsset) (*models.Account, error)
	UpdateCoverImage(ctx context.Context, id string, asset models.MediaAsset) (*models.Account, error)

	CountSubscribers(ctx context.Context, channelID string) (int64, error)
	CountSubscriptions(ctx context.Context, subscriberID string) (int64, error)
	IsSubscribed(ctx context.Context, subscriberID, channelID string) (bool, error)

	// WatchHistory resolves the account's history in order. Ids that no
	// longer resolve to a video are skipped.
	WatchHistory(ctx context.Context, accountID string) ([]*models.WatchHistoryEntry, error)
}

// MediaUploader moves staged files to the media host
type MediaUploader interface {
	Upload(ctx context.Context, localPath, folder string) (*models.MediaAsset, error)
	Delete(ctx context.Context, publicID string) error
	Discard(paths ...string)
}

// Cache holds sanitized accounts for the authentication gate
type Cache interface {
	GetAccount(ctx context.Context, accountID string) (*models.Account, error)
	SetAccount(ctx context.Context, account *models.Account) error
	DeleteAccount(ctx context.Context, accountID string) error
}

// EventPublisher receives account lifecycle events
type EventPublisher interface {
	Publish(ctx context.Context, event events.AccountEvent) error
}
