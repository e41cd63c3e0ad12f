package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/therealutkarshpriyadarshi/vidtube/internal/config"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/logging"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/metrics"
	"github.com/therealutkarshpriyadarshi/vidtube/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	accountsCollection      = "accounts"
	videosCollection        = "videos"
	subscriptionsCollection = "subscriptions"
)

// Store is the MongoDB account store
type Store struct {
	client        *mongo.Client
	accounts      *mongo.Collection
	videos        *mongo.Collection
	subscriptions *mongo.Collection
	logger        *logging.Logger
}

// New connects to MongoDB and ensures the unique indexes exist
func New(ctx context.Context, cfg config.DatabaseConfig, logger *logging.Logger) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	db := client.Database(cfg.DBName)
	s := &Store{
		client:        client,
		accounts:      db.Collection(accountsCollection),
		videos:        db.Collection(videosCollection),
		subscriptions: db.Collection(subscriptionsCollection),
		logger:        logger,
	}

	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)

	_, err := s.accounts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: unique},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: unique},
	})
	if err != nil {
		return fmt.Errorf("failed to create account indexes: %w", err)
	}

	_, err = s.subscriptions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "subscriber", Value: 1}, {Key: "channel", Value: 1}}, Options: unique},
		{Keys: bson.D{{Key: "channel", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create subscription indexes: %w", err)
	}

	return nil
}

// Close disconnects the client
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Health pings the primary
func (s *Store) Health(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		status = "error"
	}
	duration := time.Since(start)
	metrics.RecordDatabaseOperation(operation, status, duration.Seconds())
	if status == "error" {
		s.logger.LogDatabaseOperation(operation, duration, err)
		return
	}
	s.logger.LogDatabaseOperation(operation, duration, nil)
}

// mapError translates driver errors into repository sentinels
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return models.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return models.ErrConflict
	default:
		return err
	}
}

func (s *Store) findOne(ctx context.Context, operation string, filter interface{}) (a *models.Account, err error) {
	start := time.Now()
	defer func() { s.observe(operation, start, err) }()

	var acc models.Account
	if err = mapError(s.accounts.FindOne(ctx, filter).Decode(&acc)); err != nil {
		return nil, err
	}
	if acc.WatchHistory == nil {
		acc.WatchHistory = []string{}
	}
	return &acc, nil
}

// FindByID retrieves an account by ID
func (s *Store) FindByID(ctx context.Context, id string) (*models.Account, error) {
	return s.findOne(ctx, "FindByID", bson.M{"_id": id})
}

// FindByUsernameOrEmail matches either identifier, ignoring empty ones
func (s *Store) FindByUsernameOrEmail(ctx context.Context, username, email string) (*models.Account, error) {
	or := bson.A{}
	if username != "" {
		or = append(or, bson.M{"username": username})
	}
	if email != "" {
		or = append(or, bson.M{"email": email})
	}
	if len(or) == 0 {
		return nil, models.ErrNotFound
	}
	return s.findOne(ctx, "FindByUsernameOrEmail", bson.M{"$or": or})
}

// FindByUsername retrieves an account by username
func (s *Store) FindByUsername(ctx context.Context, username string) (*models.Account, error) {
	return s.findOne(ctx, "FindByUsername", bson.M{"username": username})
}

// Create inserts a new account
func (s *Store) Create(ctx context.Context, account *models.Account) (err error) {
	start := time.Now()
	defer func() { s.observe("Create", start, err) }()

	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now
	if account.WatchHistory == nil {
		account.WatchHistory = []string{}
	}

	_, err = s.accounts.InsertOne(ctx, account)
	return mapError(err)
}

func (s *Store) updateOne(ctx context.Context, operation string, filter, update bson.M) (matched int64, err error) {
	start := time.Now()
	defer func() { s.observe(operation, start, err) }()

	res, err := s.accounts.UpdateOne(ctx, filter, update)
	if err != nil {
		return 0, mapError(err)
	}
	return res.MatchedCount, nil
}

func (s *Store) updateByID(ctx context.Context, operation, id string, update bson.M) error {
	matched, err := s.updateOne(ctx, operation, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if matched == 0 {
		return models.ErrNotFound
	}
	return nil
}

func setWithTimestamp(fields bson.M) bson.M {
	fields["updatedAt"] = time.Now().UTC()
	return bson.M{"$set": fields}
}

// SetRefreshToken stores the account's current refresh token
func (s *Store) SetRefreshToken(ctx context.Context, id, token string) error {
	return s.updateByID(ctx, "SetRefreshToken", id, setWithTimestamp(bson.M{"refreshToken": token}))
}

// RotateRefreshToken swaps the token only while current is still stored
func (s *Store) RotateRefreshToken(ctx context.Context, id, current, next string) (bool, error) {
	if current == "" {
		return false, nil
	}
	matched, err := s.updateOne(ctx, "RotateRefreshToken",
		bson.M{"_id": id, "refreshToken": current},
		setWithTimestamp(bson.M{"refreshToken": next}),
	)
	if err != nil {
		return false, err
	}
	return matched == 1, nil
}

// ClearRefreshToken removes the stored refresh token
func (s *Store) ClearRefreshToken(ctx context.Context, id string) error {
	return s.updateByID(ctx, "ClearRefreshToken", id, bson.M{
		"$unset": bson.M{"refreshToken": ""},
		"$set":   bson.M{"updatedAt": time.Now().UTC()},
	})
}

// UpdatePassword replaces the password hash
func (s *Store) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return s.updateByID(ctx, "UpdatePassword", id, setWithTimestamp(bson.M{"password": passwordHash}))
}

func (s *Store) findAndSet(ctx context.Context, operation, id string, fields bson.M) (a *models.Account, err error) {
	start := time.Now()
	defer func() { s.observe(operation, start, err) }()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var acc models.Account
	err = s.accounts.FindOneAndUpdate(ctx, bson.M{"_id": id}, setWithTimestamp(fields), opts).Decode(&acc)
	if err = mapError(err); err != nil {
		return nil, err
	}
	if acc.WatchHistory == nil {
		acc.WatchHistory = []string{}
	}
	return &acc, nil
}

// UpdateDetails changes full name and email
func (s *Store) UpdateDetails(ctx context.Context, id, fullName, email string) (*models.Account, error) {
	return s.findAndSet(ctx, "UpdateDetails", id, bson.M{"fullName": fullName, "email": email})
}

// UpdateAvatar points the account at a new avatar asset
func (s *Store) UpdateAvatar(ctx context.Context, id string, asset models.MediaAsset) (*models.Account, error) {
	return s.findAndSet(ctx, "UpdateAvatar", id, bson.M{"avatar": asset.URL, "avatarPublicId": asset.PublicID})
}

// UpdateCoverImage points the account at a new cover image asset
func (s *Store) UpdateCoverImage(ctx context.Context, id string, asset models.MediaAsset) (*models.Account, error) {
	return s.findAndSet(ctx, "UpdateCoverImage", id, bson.M{"coverImage": asset.URL, "coverImagePublicId": asset.PublicID})
}

func (s *Store) count(ctx context.Context, operation string, filter bson.M) (n int64, err error) {
	start := time.Now()
	defer func() { s.observe(operation, start, err) }()

	n, err = s.subscriptions.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count subscriptions: %w", err)
	}
	return n, nil
}

// CountSubscribers counts the subscribers of a channel
func (s *Store) CountSubscribers(ctx context.Context, channelID string) (int64, error) {
	return s.count(ctx, "CountSubscribers", bson.M{"channel": channelID})
}

// CountSubscriptions counts the channels an account subscribes to
func (s *Store) CountSubscriptions(ctx context.Context, subscriberID string) (int64, error) {
	return s.count(ctx, "CountSubscriptions", bson.M{"subscriber": subscriberID})
}

// IsSubscribed reports whether subscriber follows channel
func (s *Store) IsSubscribed(ctx context.Context, subscriberID, channelID string) (bool, error) {
	n, err := s.count(ctx, "IsSubscribed", bson.M{"subscriber": subscriberID, "channel": channelID})
	return n > 0, err
}

// WatchHistory resolves the account's history in stored order
func (s *Store) WatchHistory(ctx context.Context, accountID string) ([]*models.WatchHistoryEntry, error) {
	account, err := s.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	entries, err := s.resolveHistory(ctx, account.WatchHistory)
	s.observe("WatchHistory", start, err)
	return entries, err
}

func (s *Store) resolveHistory(ctx context.Context, ids []string) ([]*models.WatchHistoryEntry, error) {
	entries := []*models.WatchHistoryEntry{}
	if len(ids) == 0 {
		return entries, nil
	}

	cursor, err := s.videos.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("failed to find videos: %w", err)
	}
	var videos []models.Video
	if err := cursor.All(ctx, &videos); err != nil {
		return nil, fmt.Errorf("failed to decode videos: %w", err)
	}

	byID := make(map[string]models.Video, len(videos))
	ownerIDs := make([]string, 0, len(videos))
	for _, v := range videos {
		byID[v.ID] = v
		ownerIDs = append(ownerIDs, v.OwnerID)
	}

	owners, err := s.findOwners(ctx, ownerIDs)
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		v, ok := byID[id]
		if !ok {
			continue
		}
		entries = append(entries, &models.WatchHistoryEntry{Video: v, Owner: owners[v.OwnerID]})
	}
	return entries, nil
}

func (s *Store) findOwners(ctx context.Context, ids []string) (map[string]*models.VideoOwner, error) {
	owners := make(map[string]*models.VideoOwner, len(ids))
	if len(ids) == 0 {
		return owners, nil
	}

	projection := bson.M{"_id": 1, "fullName": 1, "username": 1, "avatar": 1}
	cursor, err := s.accounts.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, options.Find().SetProjection(projection))
	if err != nil {
		return nil, fmt.Errorf("failed to find video owners: %w", err)
	}

	var found []models.VideoOwner
	if err := cursor.All(ctx, &found); err != nil {
		return nil, fmt.Errorf("failed to decode video owners: %w", err)
	}
	for i := range found {
		owners[found[i].ID] = &found[i]
	}
	return owners, nil
}
