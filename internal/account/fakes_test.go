package account

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"

	"github.com/therealutkarshpriyadarshi/vidtube/internal/events"
	"github.com/therealutkarshpriyadarshi/vidtube/pkg/models"
)

// memRepo is an in-memory Repository
type memRepo struct {
	mu            sync.Mutex
	accounts      map[string]*models.Account
	videos        map[string]*models.Video
	subscriptions []models.Subscription
	failWrites    error
}

func newMemRepo() *memRepo {
	return &memRepo{
		accounts: make(map[string]*models.Account),
		videos:   make(map[string]*models.Video),
	}
}

func (r *memRepo) put(a *models.Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.accounts[a.ID] = &cp
}

func (r *memRepo) get(id string) *models.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil
	}
	cp := *a
	return &cp
}

func (r *memRepo) subscribe(subscriberID, channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscriptions = append(r.subscriptions, models.Subscription{
		ID:           subscriberID + "->" + channelID,
		SubscriberID: subscriberID,
		ChannelID:    channelID,
	})
}

func (r *memRepo) FindByID(ctx context.Context, id string) (*models.Account, error) {
	if a := r.get(id); a != nil {
		return a, nil
	}
	return nil, models.ErrNotFound
}

func (r *memRepo) FindByUsernameOrEmail(ctx context.Context, username, email string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if (username != "" && a.Username == username) || (email != "" && a.Email == email) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *memRepo) FindByUsername(ctx context.Context, username string) (*models.Account, error) {
	return r.FindByUsernameOrEmail(ctx, username, "")
}

func (r *memRepo) Create(ctx context.Context, account *models.Account) error {
	if r.failWrites != nil {
		return r.failWrites
	}
	if _, err := r.FindByUsernameOrEmail(ctx, account.Username, account.Email); err == nil {
		return models.ErrConflict
	}
	r.put(account)
	return nil
}

func (r *memRepo) update(id string, fn func(a *models.Account) error) (*models.Account, error) {
	if r.failWrites != nil {
		return nil, r.failWrites
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if err := fn(a); err != nil {
		return nil, err
	}
	cp := *a
	return &cp, nil
}

func (r *memRepo) SetRefreshToken(ctx context.Context, id, token string) error {
	_, err := r.update(id, func(a *models.Account) error {
		a.RefreshToken = token
		return nil
	})
	return err
}

func (r *memRepo) RotateRefreshToken(ctx context.Context, id, current, next string) (bool, error) {
	swapped := false
	_, err := r.update(id, func(a *models.Account) error {
		if a.RefreshToken == current {
			a.RefreshToken = next
			swapped = true
		}
		return nil
	})
	return swapped, err
}

func (r *memRepo) ClearRefreshToken(ctx context.Context, id string) error {
	_, err := r.update(id, func(a *models.Account) error {
		a.RefreshToken = ""
		return nil
	})
	return err
}

func (r *memRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	_, err := r.update(id, func(a *models.Account) error {
		a.PasswordHash = passwordHash
		return nil
	})
	return err
}

func (r *memRepo) UpdateDetails(ctx context.Context, id, fullName, email string) (*models.Account, error) {
	r.mu.Lock()
	for _, other := range r.accounts {
		if other.ID != id && other.Email == email {
			r.mu.Unlock()
			return nil, models.ErrConflict
		}
	}
	r.mu.Unlock()

	return r.update(id, func(a *models.Account) error {
		a.FullName = fullName
		a.Email = email
		return nil
	})
}

func (r *memRepo) UpdateAvatar(ctx context.Context, id string, asset models.MediaAsset) (*models.Account, error) {
	return r.update(id, func(a *models.Account) error {
		a.Avatar = asset.URL
		a.AvatarPublicID = asset.PublicID
		return nil
	})
}

func (r *memRepo) UpdateCoverImage(ctx context.Context, id string, asset models.MediaAsset) (*models.Account, error) {
	return r.update(id, func(a *models.Account) error {
		a.CoverImage = asset.URL
		a.CoverImagePublicID = asset.PublicID
		return nil
	})
}

func (r *memRepo) CountSubscribers(ctx context.Context, channelID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.subscriptions {
		if s.ChannelID == channelID {
			n++
		}
	}
	return n, nil
}

func (r *memRepo) CountSubscriptions(ctx context.Context, subscriberID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.subscriptions {
		if s.SubscriberID == subscriberID {
			n++
		}
	}
	return n, nil
}

func (r *memRepo) IsSubscribed(ctx context.Context, subscriberID, channelID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subscriptions {
		if s.SubscriberID == subscriberID && s.ChannelID == channelID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepo) WatchHistory(ctx context.Context, accountID string) ([]*models.WatchHistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[accountID]
	if !ok {
		return nil, models.ErrNotFound
	}

	var entries []*models.WatchHistoryEntry
	for _, id := range a.WatchHistory {
		v, ok := r.videos[id]
		if !ok {
			continue
		}
		entry := &models.WatchHistoryEntry{Video: *v}
		if owner, ok := r.accounts[v.OwnerID]; ok {
			entry.Owner = &models.VideoOwner{
				ID:       owner.ID,
				FullName: owner.FullName,
				Username: owner.Username,
				Avatar:   owner.Avatar,
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// fakeMedia is a MediaUploader that records calls and removes staged files
// the way the real uploader does
type fakeMedia struct {
	mu        sync.Mutex
	uploads   []string
	deleted   []string
	failFor   map[string]bool
	deleteErr error
	seq       int
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{failFor: make(map[string]bool)}
}

func (m *fakeMedia) Upload(ctx context.Context, localPath, folder string) (*models.MediaAsset, error) {
	defer m.Discard(localPath)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[folder] {
		return nil, errors.New("media host unavailable")
	}
	m.seq++
	m.uploads = append(m.uploads, folder)
	id := folder + "/" + strings.Repeat("x", m.seq)
	return &models.MediaAsset{URL: "https://cdn.test/" + id, PublicID: id}, nil
}

func (m *fakeMedia) Delete(ctx context.Context, publicID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, publicID)
	return m.deleteErr
}

func (m *fakeMedia) Discard(paths ...string) {
	for _, p := range paths {
		if p != "" {
			os.Remove(p)
		}
	}
}

// mapCache is an in-memory Cache
type mapCache struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
	hits     int
}

func newMapCache() *mapCache {
	return &mapCache{accounts: make(map[string]*models.Account)}
}

func (c *mapCache) GetAccount(ctx context.Context, accountID string) (*models.Account, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.accounts[accountID]
	if !ok {
		return nil, nil
	}
	c.hits++
	cp := *a
	return &cp, nil
}

func (c *mapCache) SetAccount(ctx context.Context, account *models.Account) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *account
	c.accounts[account.ID] = &cp
	return nil
}

func (c *mapCache) DeleteAccount(ctx context.Context, accountID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.accounts, accountID)
	return nil
}

// recordingPublisher keeps every published event
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.AccountEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event events.AccountEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}
