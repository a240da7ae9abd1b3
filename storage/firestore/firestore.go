// Package firestore provides a Firestore implementation of the panelpay.Store
// interface. Each key is one document holding the raw value and an optional
// expiresAt timestamp; expiry is evaluated on read, and a Firestore TTL policy
// on expiresAt can purge expired documents server side.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mcpanel/panelpay/pkg/panelpay"
)

const (
	fieldKey       = "key"
	fieldValue     = "value"
	fieldExpiresAt = "expiresAt"
	fieldUpdatedAt = "updatedAt"
)

// Storage implements panelpay.Store using Google Cloud Firestore
type Storage struct {
	client     *firestore.Client
	collection string
	now        func() time.Time
}

// Config holds Firestore storage configuration
type Config struct {
	// Collection is the Firestore collection holding the keys
	// Default: "panelpay_cache"
	Collection string
}

// New creates a new Firestore storage adapter
func New(client *firestore.Client, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}

	// Set defaults
	if config.Collection == "" {
		config.Collection = "panelpay_cache"
	}

	return &Storage{
		client:     client,
		collection: config.Collection,
		now:        time.Now,
	}, nil
}

// Get implements panelpay.Store
func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	if err := panelpay.ValidateKey(key); err != nil {
		return nil, err
	}

	data, err := s.read(ctx, key)
	if err != nil {
		return nil, err
	}
	value, ok := data[fieldValue].([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: get %s: malformed document", panelpay.ErrStoreUnavailable, key)
	}
	return value, nil
}

// Set implements panelpay.Store
func (s *Storage) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := panelpay.ValidateKey(key); err != nil {
		return err
	}

	now := s.now().UTC()
	data := map[string]interface{}{
		fieldKey:       key,
		fieldValue:     value,
		fieldUpdatedAt: now,
	}
	if ttl > 0 {
		data[fieldExpiresAt] = now.Add(ttl)
	}

	// Whole-document overwrite drops a previous expiresAt
	if _, err := s.doc(key).Set(ctx, data); err != nil {
		return fmt.Errorf("%w: set %s: %v", panelpay.ErrStoreUnavailable, key, err)
	}
	return nil
}

// Delete implements panelpay.Store
func (s *Storage) Delete(ctx context.Context, key string) error {
	if err := panelpay.ValidateKey(key); err != nil {
		return err
	}
	if _, err := s.doc(key).Delete(ctx); err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("%w: delete %s: %v", panelpay.ErrStoreUnavailable, key, err)
	}
	return nil
}

// Exists implements panelpay.Store
func (s *Storage) Exists(ctx context.Context, key string) (bool, error) {
	if err := panelpay.ValidateKey(key); err != nil {
		return false, err
	}

	_, err := s.read(ctx, key)
	if errors.Is(err, panelpay.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Storage) read(ctx context.Context, key string) (map[string]interface{}, error) {
	snap, err := s.doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, panelpay.ErrNotFound
		}
		return nil, fmt.Errorf("%w: get %s: %v", panelpay.ErrStoreUnavailable, key, err)
	}
	if !snap.Exists() {
		return nil, panelpay.ErrNotFound
	}

	data := snap.Data()
	if expiresAt, ok := data[fieldExpiresAt].(time.Time); ok && !expiresAt.After(s.now()) {
		// The precondition keeps a document rewritten since this read.
		// A failed purge leaves it for the next read.
		_, _ = s.doc(key).Delete(ctx, firestore.LastUpdateTime(snap.UpdateTime))
		return nil, panelpay.ErrNotFound
	}
	return data, nil
}

// doc maps key to a document. Keys may contain '/', which Firestore reserves
// as the path separator, so they are path-escaped into the document ID.
func (s *Storage) doc(key string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(url.PathEscape(key))
}

var _ panelpay.Store = (*Storage)(nil)
