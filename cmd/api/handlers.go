package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/account"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/middleware"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/response"
	"github.com/therealutkarshpriyadarshi/vidtube/pkg/models"
)

const refreshTokenCookie = "refreshToken"

// accountService is the part of account.Service the handlers drive
type accountService interface {
	Register(ctx context.Context, in account.RegisterInput) (*models.Account, error)
	Login(ctx context.Context, in account.LoginInput) (*account.LoginResult, error)
	Logout(ctx context.Context, accountID string) error
	Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	ChangePassword(ctx context.Context, accountID string, in account.ChangePasswordInput) error
	Authenticate(ctx context.Context, accessToken string) (*models.Account, error)
	UpdateDetails(ctx context.Context, accountID string, in account.UpdateDetailsInput) (*models.Account, error)
	UpdateAvatar(ctx context.Context, accountID, localPath string) (*models.Account, error)
	UpdateCoverImage(ctx context.Context, accountID, localPath string) (*models.Account, error)
	ChannelProfile(ctx context.Context, username, requesterID string) (*models.ChannelProfile, error)
	WatchHistory(ctx context.Context, accountID string) ([]*models.WatchHistoryEntry, error)
}

type loginResponse struct {
	User         *models.Account `json:"user"`
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"refreshToken"`
}

// Register endpoint
func (api *API) register(c *gin.Context) error {
	if err := api.parseMultipart(c); err != nil {
		return err
	}

	in := account.RegisterInput{
		Username: c.PostForm("username"),
		Email:    c.PostForm("email"),
		FullName: c.PostForm("fullName"),
		Password: c.PostForm("password"),
	}

	var err error
	if in.AvatarPath, err = api.stageFile(c, "avatar"); err != nil {
		return err
	}
	if in.CoverImagePath, err = api.stageFile(c, "coverImage"); err != nil {
		api.media.Discard(in.AvatarPath)
		return err
	}

	created, err := api.accounts.Register(c.Request.Context(), in)
	if err != nil {
		return err
	}

	response.OK(c, http.StatusCreated, created, "User registered successfully")
	return nil
}

// Login endpoint
func (api *API) login(c *gin.Context) error {
	var in account.LoginInput
	if err := bind(c, &in); err != nil {
		return err
	}

	result, err := api.accounts.Login(c.Request.Context(), in)
	if err != nil {
		return err
	}

	api.setSessionCookies(c, result.Tokens)
	response.OK(c, http.StatusOK, loginResponse{
		User:         result.Account,
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
	}, "User logged in successfully")
	return nil
}

// Logout endpoint
func (api *API) logout(c *gin.Context) error {
	accountID, _ := middleware.GetAccountID(c)
	if err := api.accounts.Logout(c.Request.Context(), accountID); err != nil {
		return err
	}

	api.clearSessionCookies(c)
	response.OK(c, http.StatusOK, gin.H{}, "User logged out")
	return nil
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" form:"refreshToken"`
}

// Refresh token endpoint
func (api *API) refreshToken(c *gin.Context) error {
	token, _ := c.Cookie(refreshTokenCookie)
	if token == "" {
		var body refreshRequest
		if err := bind(c, &body); err != nil {
			return err
		}
		token = body.RefreshToken
	}

	pair, err := api.accounts.Refresh(c.Request.Context(), token)
	if err != nil {
		return err
	}

	api.setSessionCookies(c, pair)
	response.OK(c, http.StatusOK, pair, "Access token refreshed")
	return nil
}

// Change password endpoint
func (api *API) changePassword(c *gin.Context) error {
	var in account.ChangePasswordInput
	if err := bind(c, &in); err != nil {
		return err
	}

	accountID, _ := middleware.GetAccountID(c)
	if err := api.accounts.ChangePassword(c.Request.Context(), accountID, in); err != nil {
		return err
	}

	response.OK(c, http.StatusOK, gin.H{}, "Password changed successfully")
	return nil
}

// Current user endpoint
func (api *API) currentUser(c *gin.Context) error {
	current, ok := middleware.CurrentAccount(c)
	if !ok {
		return response.Unauthorized("Unauthorized request")
	}
	response.OK(c, http.StatusOK, current, "Current user fetched successfully")
	return nil
}

// Update account details endpoint
func (api *API) updateAccount(c *gin.Context) error {
	var in account.UpdateDetailsInput
	if err := bind(c, &in); err != nil {
		return err
	}

	accountID, _ := middleware.GetAccountID(c)
	updated, err := api.accounts.UpdateDetails(c.Request.Context(), accountID, in)
	if err != nil {
		return err
	}

	response.OK(c, http.StatusOK, updated, "Account details updated successfully")
	return nil
}

// Update avatar endpoint
func (api *API) updateAvatar(c *gin.Context) error {
	return api.replaceMedia(c, "avatar", api.accounts.UpdateAvatar, "Avatar updated successfully")
}

// Update cover image endpoint
func (api *API) updateCoverImage(c *gin.Context) error {
	return api.replaceMedia(c, "coverImage", api.accounts.UpdateCoverImage, "Cover image updated successfully")
}

type mediaUpdate func(ctx context.Context, accountID, localPath string) (*models.Account, error)

func (api *API) replaceMedia(c *gin.Context, field string, update mediaUpdate, message string) error {
	if err := api.parseMultipart(c); err != nil {
		return err
	}

	localPath, err := api.stageFile(c, field)
	if err != nil {
		return err
	}

	accountID, _ := middleware.GetAccountID(c)
	updated, err := update(c.Request.Context(), accountID, localPath)
	if err != nil {
		return err
	}

	response.OK(c, http.StatusOK, updated, message)
	return nil
}

// Channel profile endpoint
func (api *API) channelProfile(c *gin.Context) error {
	requesterID, _ := middleware.GetAccountID(c)

	profile, err := api.accounts.ChannelProfile(c.Request.Context(), c.Param("username"), requesterID)
	if err != nil {
		return err
	}

	response.OK(c, http.StatusOK, profile, "User channel fetched successfully")
	return nil
}

// Watch history endpoint
func (api *API) watchHistory(c *gin.Context) error {
	accountID, _ := middleware.GetAccountID(c)

	entries, err := api.accounts.WatchHistory(c.Request.Context(), accountID)
	if err != nil {
		return err
	}

	response.OK(c, http.StatusOK, entries, "Watch history fetched successfully")
	return nil
}

// Session cookies

func (api *API) setSessionCookies(c *gin.Context, pair *models.TokenPair) {
	c.SetSameSite(http.SameSiteNoneMode)
	c.SetCookie(middleware.AccessTokenCookie, pair.AccessToken,
		int(api.cfg.Auth.AccessTokenExpiry.Seconds()), "/", "", api.cfg.Server.CookieSecure, true)
	c.SetCookie(refreshTokenCookie, pair.RefreshToken,
		int(api.cfg.Auth.RefreshTokenExpiry.Seconds()), "/", "", api.cfg.Server.CookieSecure, true)
}

func (api *API) clearSessionCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteNoneMode)
	c.SetCookie(middleware.AccessTokenCookie, "", -1, "/", "", api.cfg.Server.CookieSecure, true)
	c.SetCookie(refreshTokenCookie, "", -1, "/", "", api.cfg.Server.CookieSecure, true)
}

// Request decoding

// bind decodes a JSON or form body into dst. An empty body leaves dst zeroed
// so the service reports the missing fields.
func bind(c *gin.Context, dst interface{}) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBind(dst); err != nil {
		return decodeError(err)
	}
	return nil
}

// parseMultipart reads the multipart form into memory or temp files. Non
// multipart requests are left alone and simply carry no files.
func (api *API) parseMultipart(c *gin.Context) error {
	if _, err := c.MultipartForm(); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return decodeError(err)
	}
	return nil
}

// stageFile copies the first file under field to the staging directory.
// A missing file yields an empty path.
func (api *API) stageFile(c *gin.Context, field string) (string, error) {
	fh, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return "", nil
	}
	if err != nil {
		return "", decodeError(err)
	}

	path, err := api.stager.Stage(fh)
	if err != nil {
		return "", response.Internal("Failed to stage uploaded file").WithCause(err)
	}
	return path, nil
}

func decodeError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return response.New(http.StatusRequestEntityTooLarge, "Request body too large").WithCause(err)
	}
	return response.Validation("Invalid request body").WithCause(err)
}
