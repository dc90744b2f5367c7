package hashcache

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const DefaultCollection = "syftsync-hash-cache"

type firestoreEntry struct {
	Value     string    `firestore:"value"`
	ExpiresAt time.Time `firestore:"expires_at,omitempty"`
}

// FirestoreCache shares entries between machines that sync to the same
// bucket. One document per key.
type FirestoreCache struct {
	client     *firestore.Client
	collection string
	ttl        time.Duration
	owned      bool
}

var _ Cache = (*FirestoreCache)(nil)

// NewFirestoreCache connects to projectID and stores documents in collection.
func NewFirestoreCache(ctx context.Context, projectID, collection string, ttl time.Duration) (*FirestoreCache, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	c := NewFirestoreCacheWithClient(client, collection, ttl)
	c.owned = true
	return c, nil
}

// NewFirestoreCacheWithClient uses an existing client, which Close leaves open.
func NewFirestoreCacheWithClient(client *firestore.Client, collection string, ttl time.Duration) *FirestoreCache {
	if collection == "" {
		collection = DefaultCollection
	}
	return &FirestoreCache{client: client, collection: collection, ttl: ttl}
}

func (c *FirestoreCache) doc(key string) *firestore.DocumentRef {
	return c.client.Collection(c.collection).Doc(key)
}

func (c *FirestoreCache) Get(ctx context.Context, key string) (string, bool, error) {
	snap, err := c.doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}

	var entry firestoreEntry
	if err := snap.DataTo(&entry); err != nil {
		return "", false, fmt.Errorf("decode %s: %w", key, err)
	}
	if !entry.ExpiresAt.IsZero() && !time.Now().Before(entry.ExpiresAt) {
		return "", false, nil
	}
	return entry.Value, true, nil
}

func (c *FirestoreCache) Set(ctx context.Context, key, value string) error {
	entry := firestoreEntry{Value: value}
	if c.ttl > 0 {
		entry.ExpiresAt = time.Now().Add(c.ttl)
	}
	if _, err := c.doc(key).Set(ctx, entry); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (c *FirestoreCache) Delete(ctx context.Context, key string) error {
	// deleting a missing document is not an error in firestore
	if _, err := c.doc(key).Delete(ctx); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (c *FirestoreCache) Close() error {
	if !c.owned {
		return nil
	}
	return c.client.Close()
}
