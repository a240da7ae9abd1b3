//go:build integration
// +build integration

package firestore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpanel/panelpay/pkg/panelpay"
)

const (
	testProjectID = "test-project"
	emulatorHost  = "localhost:8080"
)

func setupFirestoreClient(t *testing.T) *firestore.Client {
	t.Helper()

	// Set emulator environment variable
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Setenv("FIRESTORE_EMULATOR_HOST", emulatorHost)
	}

	ctx := context.Background()
	client, err := firestore.NewClient(ctx, testProjectID)
	if err != nil {
		t.Skipf("Firestore emulator not available: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func setupTestStorage(t *testing.T) *Storage {
	t.Helper()
	client := setupFirestoreClient(t)

	// Unique collection per test run
	storage, err := New(client, Config{Collection: fmt.Sprintf("test_cache_%d", time.Now().UnixNano())})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := storage.Exists(ctx, "healthcheck"); err != nil {
		t.Skipf("Firestore emulator not reachable: %v", err)
	}
	return storage
}

func TestNew_RequiresClient(t *testing.T) {
	_, err := New(nil, Config{})
	assert.Error(t, err)
}

func TestStorage_SetGetDelete(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()
	key := panelpay.UserCustomerKey("guild/user1")

	_, err := s.Get(ctx, key)
	assert.ErrorIs(t, err, panelpay.ErrNotFound)

	require.NoError(t, s.Set(ctx, key, []byte(`"cus_1"`), 0))
	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `"cus_1"`, string(got))

	exists, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, s.Delete(ctx, key))
	require.NoError(t, s.Delete(ctx, key), "deleting an absent key is not an error")
	exists, err = s.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStorage_Expiry(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()
	now := time.Now()
	s.now = func() time.Time { return now }

	key := panelpay.WebhookMarkerKey("evt_1")
	require.NoError(t, s.Set(ctx, key, []byte("true"), time.Minute))
	_, err := s.Get(ctx, key)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = s.Get(ctx, key)
	assert.ErrorIs(t, err, panelpay.ErrNotFound)

	// The expired read purged the document
	snap, err := s.doc(key).Get(ctx)
	require.Error(t, err)
	assert.False(t, snap.Exists())

	// Overwriting without a ttl clears the expiry
	require.NoError(t, s.Set(ctx, key, []byte("true"), 0))
	now = now.Add(24 * time.Hour)
	exists, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestStorage_CodecRoundTrip(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	snapshot := &panelpay.PaymentSnapshot{PaymentIntentID: "pi_1", Status: panelpay.PaymentStatusSucceeded, Amount: 999}
	require.NoError(t, panelpay.SetValue(ctx, s, panelpay.CustomerSnapshotKey("cus_1"), snapshot, 0))

	got, err := panelpay.GetValue[panelpay.PaymentSnapshot](ctx, s, panelpay.CustomerSnapshotKey("cus_1"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, *snapshot, *got)
}
