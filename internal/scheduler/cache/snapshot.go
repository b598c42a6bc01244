package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/postflow-ai/postflow/internal/domain/models"
	"github.com/postflow-ai/postflow/internal/pkg/metrics"
)

// OwnedFinder loads a row scoped to its owner.
type OwnedFinder[T any] interface {
	FindOwned(ctx context.Context, userID, id uuid.UUID) (*T, error)
}

type SnapshotConfig struct {
	TTL  time.Duration
	Size int
	Now  func() time.Time
}

// SnapshotLoader reads account and content rows through a TTL cache. The
// cache is never authoritative: misses and expired entries go to storage,
// and load errors are not cached.
type SnapshotLoader struct {
	accounts OwnedFinder[models.SocialAccount]
	contents OwnedFinder[models.Content]

	accountCache *TTLCache[string, models.SocialAccount]
	contentCache *TTLCache[uuid.UUID, models.Content]
}

func NewSnapshotLoader(accounts OwnedFinder[models.SocialAccount], contents OwnedFinder[models.Content], cfg SnapshotConfig) *SnapshotLoader {
	return &SnapshotLoader{
		accounts:     accounts,
		contents:     contents,
		accountCache: NewTTLCache[string, models.SocialAccount](cfg.TTL, cfg.Size, cfg.Now),
		contentCache: NewTTLCache[uuid.UUID, models.Content](cfg.TTL, cfg.Size, cfg.Now),
	}
}

func accountKey(userID, accountID uuid.UUID) string {
	return userID.String() + ":" + accountID.String()
}

func (l *SnapshotLoader) Account(ctx context.Context, userID, accountID uuid.UUID) (*models.SocialAccount, error) {
	key := accountKey(userID, accountID)
	if account, ok := l.accountCache.Get(key); ok {
		metrics.RecordCacheLookup("account", true)
		return &account, nil
	}
	metrics.RecordCacheLookup("account", false)

	account, err := l.accounts.FindOwned(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}
	l.accountCache.Set(key, *account)
	return account, nil
}

// Content is keyed by content id alone; ownership is still checked on the
// cached row.
func (l *SnapshotLoader) Content(ctx context.Context, userID, contentID uuid.UUID) (*models.Content, error) {
	if content, ok := l.contentCache.Get(contentID); ok && content.UserID == userID {
		metrics.RecordCacheLookup("content", true)
		return &content, nil
	}
	metrics.RecordCacheLookup("content", false)

	content, err := l.contents.FindOwned(ctx, userID, contentID)
	if err != nil {
		return nil, err
	}
	l.contentCache.Set(contentID, *content)
	return content, nil
}

// Purge drops expired snapshots from both caches.
func (l *SnapshotLoader) Purge() int {
	return l.accountCache.Purge() + l.contentCache.Purge()
}
