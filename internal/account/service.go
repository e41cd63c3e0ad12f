// Package account implements the account lifecycle: registration, session
// tokens, profile changes and the read views built on top of accounts.
package account

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/auth"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/events"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/logging"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/metrics"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/response"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/tracing"
	"github.com/therealutkarshpriyadarshi/vidtube/pkg/models"
)

// Media host folders
const (
	FolderAvatars     = "avatars"
	FolderCoverImages = "cover-images"
)

// Service implements account operations on top of a Repository
type Service struct {
	repo     Repository
	tokens   *auth.TokenManager
	media    MediaUploader
	cache    Cache
	events   EventPublisher
	logger   *logging.Logger
	validate *validator.Validate
}

// Option configures optional collaborators
type Option func(*Service)

// WithCache enables the account cache used by Authenticate
func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithEvents publishes account lifecycle events to p
func WithEvents(p EventPublisher) Option {
	return func(s *Service) { s.events = p }
}

// NewService creates an account service
func NewService(repo Repository, tokens *auth.TokenManager, media MediaUploader, logger *logging.Logger, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		tokens:   tokens,
		media:    media,
		events:   events.NopPublisher{},
		logger:   logger,
		validate: newValidator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoginResult is returned by a successful login
type LoginResult struct {
	Account *models.Account
	Tokens  *models.TokenPair
}

// Register creates an account. Staged media files are always removed before
// returning.
func (s *Service) Register(ctx context.Context, in RegisterInput) (_ *models.Account, err error) {
	span, ctx := tracing.StartSpan(ctx, "account.Register")
	defer func() { tracing.FinishSpan(span, err) }()
	defer s.media.Discard(in.AvatarPath, in.CoverImagePath)

	if err := s.check(in, "All fields are required"); err != nil {
		return nil, err
	}

	username := normalizeUsername(in.Username)
	email := strings.TrimSpace(in.Email)

	_, err = s.repo.FindByUsernameOrEmail(ctx, username, email)
	switch {
	case err == nil:
		return nil, response.Conflict("User with email or username already exists")
	case !errors.Is(err, models.ErrNotFound):
		return nil, response.Internal("Something went wrong while registering the user").WithCause(err)
	}

	if in.AvatarPath == "" {
		return nil, response.Validation("Avatar file is required")
	}

	avatar, err := s.media.Upload(ctx, in.AvatarPath, FolderAvatars)
	if err != nil {
		s.logger.WarnWithErr("Avatar upload failed", err)
		return nil, response.Validation("Avatar file is required").WithCause(err)
	}

	var cover models.MediaAsset
	if in.CoverImagePath != "" {
		asset, err := s.media.Upload(ctx, in.CoverImagePath, FolderCoverImages)
		if err != nil {
			s.logger.WarnWithErr("Cover image upload failed, registering without it", err)
		} else {
			cover = *asset
		}
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, response.Internal("Something went wrong while registering the user").WithCause(err)
	}

	now := time.Now().UTC()
	account := &models.Account{
		ID:                 uuid.New().String(),
		Username:           username,
		Email:              email,
		FullName:           strings.TrimSpace(in.FullName),
		Avatar:             avatar.URL,
		AvatarPublicID:     avatar.PublicID,
		CoverImage:         cover.URL,
		CoverImagePublicID: cover.PublicID,
		WatchHistory:       []string{},
		PasswordHash:       hash,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.repo.Create(ctx, account); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, response.Conflict("User with email or username already exists")
		}
		return nil, response.Internal("Something went wrong while registering the user").WithCause(err)
	}

	s.logger.LogAuthEvent(account.ID, events.AccountRegistered, nil)
	metrics.RecordAuthEvent("register", true)
	s.publish(ctx, events.AccountRegistered, account)

	return account.Sanitized(), nil
}

// Login verifies credentials and starts a new session
func (s *Service) Login(ctx context.Context, in LoginInput) (_ *LoginResult, err error) {
	span, ctx := tracing.StartSpan(ctx, "account.Login")
	defer func() {
		metrics.RecordAuthEvent("login", err == nil)
		tracing.FinishSpan(span, err)
	}()

	username := normalizeUsername(in.Username)
	email := strings.TrimSpace(in.Email)
	if username == "" && email == "" {
		return nil, response.Validation("Username or email is required")
	}
	if err := s.check(in, "Password is required"); err != nil {
		return nil, err
	}

	account, err := s.repo.FindByUsernameOrEmail(ctx, username, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, response.NotFound("User does not exist")
		}
		return nil, response.Internal("Something went wrong").WithCause(err)
	}

	ok, err := auth.CheckPassword(account.PasswordHash, in.Password)
	if err != nil {
		return nil, response.Internal("Something went wrong").WithCause(err)
	}
	if !ok {
		s.logger.LogAuthEvent(account.ID, events.AccountLoggedIn, errors.New("invalid password"))
		return nil, response.Unauthorized("Invalid user credentials")
	}

	pair, err := s.issueSession(ctx, account)
	if err != nil {
		return nil, err
	}

	s.logger.LogAuthEvent(account.ID, events.AccountLoggedIn, nil)
	s.publish(ctx, events.AccountLoggedIn, account)

	return &LoginResult{Account: account.Sanitized(), Tokens: pair}, nil
}

// Logout ends the account's session. Calling it again is a no-op.
func (s *Service) Logout(ctx context.Context, accountID string) (err error) {
	span, ctx := tracing.StartSpan(ctx, "account.Logout")
	defer func() {
		metrics.RecordAuthEvent("logout", err == nil)
		tracing.FinishSpan(span, err)
	}()

	if err := s.repo.ClearRefreshToken(ctx, accountID); err != nil && !errors.Is(err, models.ErrNotFound) {
		return response.Internal("Something went wrong while logging out").WithCause(err)
	}

	s.invalidate(ctx, accountID)
	s.logger.LogAuthEvent(accountID, events.AccountLoggedOut, nil)
	s.publish(ctx, events.AccountLoggedOut, &models.Account{ID: accountID})
	return nil
}

// Refresh exchanges the current refresh token for a new token pair. The
// presented token must be the one stored on the account; it stops working
// once rotated.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (_ *models.TokenPair, err error) {
	span, ctx := tracing.StartSpan(ctx, "account.Refresh")
	defer func() {
		metrics.RecordAuthEvent("refresh", err == nil)
		tracing.FinishSpan(span, err)
	}()

	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, response.Unauthorized("Unauthorized request")
	}

	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, response.InvalidToken(err.Error())
	}

	account, err := s.repo.FindByID(ctx, claims.AccountID())
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, response.InvalidToken("Invalid refresh token")
		}
		return nil, response.Internal("Something went wrong").WithCause(err)
	}

	if account.RefreshToken == "" || account.RefreshToken != refreshToken {
		s.logger.LogAuthEvent(account.ID, events.AccountTokenRefreshed, errors.New("refresh token reused"))
		return nil, response.InvalidToken("Refresh token is expired or used")
	}

	pair, err := s.tokens.IssuePair(account)
	if err != nil {
		return nil, response.Internal("Token generation failed").WithCause(err)
	}

	swapped, err := s.repo.RotateRefreshToken(ctx, account.ID, refreshToken, pair.RefreshToken)
	if err != nil {
		return nil, response.Internal("Token generation failed").WithCause(err)
	}
	if !swapped {
		return nil, response.InvalidToken("Refresh token is expired or used")
	}

	s.logger.LogAuthEvent(account.ID, events.AccountTokenRefreshed, nil)
	s.publish(ctx, events.AccountTokenRefreshed, account)
	return pair, nil
}

// ChangePassword replaces the password after checking the old one
func (s *Service) ChangePassword(ctx context.Context, accountID string, in ChangePasswordInput) (err error) {
	span, ctx := tracing.StartSpan(ctx, "account.ChangePassword")
	defer func() { tracing.FinishSpan(span, err) }()

	if err := s.check(in, "Old and new password are required"); err != nil {
		return err
	}

	account, err := s.find(ctx, accountID)
	if err != nil {
		return err
	}

	ok, err := auth.CheckPassword(account.PasswordHash, in.OldPassword)
	if err != nil {
		return response.Internal("Something went wrong").WithCause(err)
	}
	if !ok {
		return response.Validation("Invalid old password")
	}

	hash, err := auth.HashPassword(in.NewPassword)
	if err != nil {
		return response.Internal("Something went wrong").WithCause(err)
	}

	if err := s.repo.UpdatePassword(ctx, accountID, hash); err != nil {
		return s.storeError(err)
	}

	s.logger.LogAuthEvent(accountID, events.AccountPasswordChanged, nil)
	s.publish(ctx, events.AccountPasswordChanged, account)
	return nil
}

// Authenticate resolves an access token to the sanitized account it was
// issued for
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*models.Account, error) {
	if accessToken == "" {
		return nil, response.Unauthorized("Unauthorized request")
	}

	claims, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		return nil, response.InvalidToken("Invalid Access Token").WithCause(err)
	}

	accountID := claims.AccountID()
	if s.cache != nil {
		cached, err := s.cache.GetAccount(ctx, accountID)
		if err != nil {
			s.logger.WarnWithErr("Account cache read failed", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	account, err := s.repo.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, response.InvalidToken("Invalid Access Token")
		}
		return nil, response.Internal("Something went wrong").WithCause(err)
	}

	sanitized := account.Sanitized()
	if s.cache != nil {
		if err := s.cache.SetAccount(ctx, sanitized); err != nil {
			s.logger.WarnWithErr("Account cache write failed", err)
		}
	}
	return sanitized, nil
}

// UpdateDetails changes the account's full name and email
func (s *Service) UpdateDetails(ctx context.Context, accountID string, in UpdateDetailsInput) (_ *models.Account, err error) {
	span, ctx := tracing.StartSpan(ctx, "account.UpdateDetails")
	defer func() { tracing.FinishSpan(span, err) }()

	if err := s.check(in, "All fields are required"); err != nil {
		return nil, err
	}

	account, err := s.repo.UpdateDetails(ctx, accountID, strings.TrimSpace(in.FullName), strings.TrimSpace(in.Email))
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, response.Conflict("Email is already in use")
		}
		return nil, s.storeError(err)
	}

	s.invalidate(ctx, accountID)
	s.publish(ctx, events.AccountUpdated, account)
	return account.Sanitized(), nil
}

// UpdateAvatar replaces the account's avatar with the staged file
func (s *Service) UpdateAvatar(ctx context.Context, accountID, localPath string) (*models.Account, error) {
	return s.updateMedia(ctx, accountID, localPath, mediaSlot{
		op:       "account.UpdateAvatar",
		name:     "Avatar",
		folder:   FolderAvatars,
		event:    events.AccountAvatarChanged,
		publicID: func(a *models.Account) string { return a.AvatarPublicID },
		save:     s.repo.UpdateAvatar,
	})
}

// UpdateCoverImage replaces the account's cover image with the staged file
func (s *Service) UpdateCoverImage(ctx context.Context, accountID, localPath string) (*models.Account, error) {
	return s.updateMedia(ctx, accountID, localPath, mediaSlot{
		op:       "account.UpdateCoverImage",
		name:     "Cover image",
		folder:   FolderCoverImages,
		event:    events.AccountCoverChanged,
		publicID: func(a *models.Account) string { return a.CoverImagePublicID },
		save:     s.repo.UpdateCoverImage,
	})
}

type mediaSlot struct {
	op       string
	name     string
	folder   string
	event    string
	publicID func(*models.Account) string
	save     func(ctx context.Context, id string, asset models.MediaAsset) (*models.Account, error)
}

func (s *Service) updateMedia(ctx context.Context, accountID, localPath string, slot mediaSlot) (_ *models.Account, err error) {
	span, ctx := tracing.StartSpan(ctx, slot.op)
	defer func() { tracing.FinishSpan(span, err) }()
	defer s.media.Discard(localPath)

	if localPath == "" {
		return nil, response.Validation(slot.name + " file is missing")
	}

	current, err := s.find(ctx, accountID)
	if err != nil {
		return nil, err
	}

	asset, err := s.media.Upload(ctx, localPath, slot.folder)
	if err != nil {
		s.logger.WithAccountID(accountID).WarnWithErr(slot.name+" upload failed", err)
		return nil, response.Validation("Error while uploading " + strings.ToLower(slot.name)).WithCause(err)
	}

	updated, err := slot.save(ctx, accountID, *asset)
	if err != nil {
		return nil, s.storeError(err)
	}

	// The old asset goes only once the new reference is persisted
	if prior := slot.publicID(current); prior != "" && prior != asset.PublicID {
		if err := s.media.Delete(ctx, prior); err != nil {
			s.logger.WithAccountID(accountID).WithField("public_id", prior).WarnWithErr("Failed to delete previous media asset", err)
		}
	}

	s.invalidate(ctx, accountID)
	s.publish(ctx, slot.event, updated)
	return updated.Sanitized(), nil
}

// ChannelProfile builds the public profile of the channel owned by
// username. requesterID may be empty for anonymous requests.
func (s *Service) ChannelProfile(ctx context.Context, username, requesterID string) (_ *models.ChannelProfile, err error) {
	span, ctx := tracing.StartSpan(ctx, "account.ChannelProfile")
	defer func() { tracing.FinishSpan(span, err) }()

	username = normalizeUsername(username)
	if username == "" {
		return nil, response.Validation("Username is missing")
	}

	channel, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, response.NotFound("Channel does not exist")
		}
		return nil, response.Internal("Something went wrong").WithCause(err)
	}

	subscribers, err := s.repo.CountSubscribers(ctx, channel.ID)
	if err != nil {
		return nil, response.Internal("Something went wrong").WithCause(err)
	}

	subscribedTo, err := s.repo.CountSubscriptions(ctx, channel.ID)
	if err != nil {
		return nil, response.Internal("Something went wrong").WithCause(err)
	}

	var isSubscribed bool
	if requesterID != "" {
		isSubscribed, err = s.repo.IsSubscribed(ctx, requesterID, channel.ID)
		if err != nil {
			return nil, response.Internal("Something went wrong").WithCause(err)
		}
	}

	return &models.ChannelProfile{
		ID:                        channel.ID,
		FullName:                  channel.FullName,
		Username:                  channel.Username,
		Email:                     channel.Email,
		Avatar:                    channel.Avatar,
		CoverImage:                channel.CoverImage,
		CreatedAt:                 channel.CreatedAt,
		SubscribersCount:          subscribers,
		ChannelsSubscribedToCount: subscribedTo,
		IsSubscribed:              isSubscribed,
	}, nil
}

// WatchHistory returns the account's watched videos in history order
func (s *Service) WatchHistory(ctx context.Context, accountID string) (_ []*models.WatchHistoryEntry, err error) {
	span, ctx := tracing.StartSpan(ctx, "account.WatchHistory")
	defer func() { tracing.FinishSpan(span, err) }()

	entries, err := s.repo.WatchHistory(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, response.NotFound("User does not exist")
		}
		return nil, response.Internal("Something went wrong").WithCause(err)
	}
	if entries == nil {
		entries = []*models.WatchHistoryEntry{}
	}
	return entries, nil
}

// issueSession issues a token pair and stores the refresh half on the
// account, replacing any previous session
func (s *Service) issueSession(ctx context.Context, account *models.Account) (*models.TokenPair, error) {
	pair, err := s.tokens.IssuePair(account)
	if err != nil {
		return nil, response.Internal("Token generation failed").WithCause(err)
	}
	if err := s.repo.SetRefreshToken(ctx, account.ID, pair.RefreshToken); err != nil {
		return nil, response.Internal("Token generation failed").WithCause(err)
	}
	return pair, nil
}

func (s *Service) find(ctx context.Context, accountID string) (*models.Account, error) {
	account, err := s.repo.FindByID(ctx, accountID)
	if err != nil {
		return nil, s.storeError(err)
	}
	return account, nil
}

func (s *Service) storeError(err error) error {
	if errors.Is(err, models.ErrNotFound) {
		return response.NotFound("User does not exist")
	}
	return response.Internal("Something went wrong").WithCause(err)
}

func (s *Service) invalidate(ctx context.Context, accountID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteAccount(ctx, accountID); err != nil {
		s.logger.WithAccountID(accountID).WarnWithErr("Account cache invalidation failed", err)
	}
}

// publish is best effort; a broker failure never fails the request
func (s *Service) publish(ctx context.Context, eventType string, account *models.Account) {
	event := events.NewAccountEvent(eventType, account.ID, account.Username)
	if err := s.events.Publish(ctx, event); err != nil {
		metrics.RecordError("events", "publish")
		s.logger.WithAccountID(account.ID).WithField("event", eventType).WarnWithErr("Failed to publish account event", err)
	}
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
