package models

import (
	"time"
)

// Video represents an uploaded video owned by an account
type Video struct {
	ID          string    `json:"id" bson:"_id"`
	OwnerID     string    `json:"-" bson:"owner"`
	VideoFile   string    `json:"videoFile" bson:"videoFile"`
	Thumbnail   string    `json:"thumbnail" bson:"thumbnail"`
	Title       string    `json:"title" bson:"title"`
	Description string    `json:"description" bson:"description"`
	Duration    float64   `json:"duration" bson:"duration"`
	Views       int64     `json:"views" bson:"views"`
	IsPublished bool      `json:"isPublished" bson:"isPublished"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt" bson:"updatedAt"`
}

// VideoOwner is the reduced projection of the account owning a video
type VideoOwner struct {
	ID       string `json:"id" bson:"_id"`
	FullName string `json:"fullName" bson:"fullName"`
	Username string `json:"username" bson:"username"`
	Avatar   string `json:"avatar" bson:"avatar"`
}

// WatchHistoryEntry is a watched video enriched with its owner
type WatchHistoryEntry struct {
	Video `bson:",inline"`
	Owner *VideoOwner `json:"owner" bson:"-"`
}
