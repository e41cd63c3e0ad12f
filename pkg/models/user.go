package models

import (
	"time"
)

// Account represents a registered user of the platform. A channel is an
// account viewed as a subscribable content source.
type Account struct {
	ID                 string    `json:"id" bson:"_id"`
	Username           string    `json:"username" bson:"username"`
	Email              string    `json:"email" bson:"email"`
	FullName           string    `json:"fullName" bson:"fullName"`
	Avatar             string    `json:"avatar" bson:"avatar"`
	AvatarPublicID     string    `json:"avatarPublicId,omitempty" bson:"avatarPublicId,omitempty"`
	CoverImage         string    `json:"coverImage" bson:"coverImage"`
	CoverImagePublicID string    `json:"coverImagePublicId,omitempty" bson:"coverImagePublicId,omitempty"`
	WatchHistory       []string  `json:"watchHistory" bson:"watchHistory"`
	PasswordHash       string    `json:"-" bson:"password"`
	RefreshToken       string    `json:"-" bson:"refreshToken,omitempty"`
	CreatedAt          time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Sanitized returns a copy of the account without credential fields.
func (a *Account) Sanitized() *Account {
	if a == nil {
		return nil
	}
	out := *a
	out.PasswordHash = ""
	out.RefreshToken = ""
	if out.WatchHistory == nil {
		out.WatchHistory = []string{}
	}
	return &out
}

// MediaAsset is a file hosted by the media host.
type MediaAsset struct {
	URL      string `json:"url"`
	PublicID string `json:"publicId"`
}

// Subscription relates a subscriber account to a channel account.
type Subscription struct {
	ID           string    `json:"id" bson:"_id"`
	SubscriberID string    `json:"subscriber" bson:"subscriber"`
	ChannelID    string    `json:"channel" bson:"channel"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
}

// ChannelProfile is the public view of a channel with subscription counts.
type ChannelProfile struct {
	ID                        string    `json:"id"`
	FullName                  string    `json:"fullName"`
	Username                  string    `json:"username"`
	Email                     string    `json:"email"`
	Avatar                    string    `json:"avatar"`
	CoverImage                string    `json:"coverImage"`
	CreatedAt                 time.Time `json:"createdAt"`
	SubscribersCount          int64     `json:"subscribersCount"`
	ChannelsSubscribedToCount int64     `json:"channelsSubscribedToCount"`
	IsSubscribed              bool      `json:"isSubscribed"`
}

// TokenPair holds a freshly issued access and refresh token.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
