package challenge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/openportal/twofa/internal/database/testutil"
	"github.com/openportal/twofa/internal/directory"
	"github.com/openportal/twofa/internal/models"
	"github.com/openportal/twofa/pkg/crypto"
	apperrors "github.com/openportal/twofa/pkg/errors"
)

var testKey = []byte("12345678901234567890123456789012")

func newTestStore(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()

	db := testutil.MustOpenTestDB(t)
	dir, err := directory.New(db)
	require.NoError(t, err)

	store, err := NewStore(db, dir, testKey)
	require.NoError(t, err)

	return store, db
}

func TestNewStoreValidatesKey(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	dir, err := directory.New(db)
	require.NoError(t, err)

	_, err = NewStore(db, dir, []byte("short"))
	require.Error(t, err)

	_, err = NewStore(nil, dir, testKey)
	require.Error(t, err)

	_, err = NewStore(db, nil, testKey)
	require.Error(t, err)
}

func TestGetUnknownUser(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Get(context.Background(), "nonexistent-user")
	require.ErrorIs(t, err, apperrors.ErrUserNotFound)
}

func TestGetUnprovisionedUser(t *testing.T) {
	store, db := newTestStore(t)
	testutil.MustCreateUser(t, db, "alice", "alice@example.com")

	rec, err := store.Get(context.Background(), "alice")
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestUpsertEncryptsAtRest(t *testing.T) {
	store, db := newTestStore(t)
	user := testutil.MustCreateUser(t, db, "alice", "alice@example.com")

	rec, err := store.Upsert(context.Background(), user.ID, "JBSWY3DPEHPK3PXP")
	require.NoError(t, err)
	require.Equal(t, "JBSWY3DPEHPK3PXP", rec.Secret)
	require.Nil(t, rec.LastAccess)

	var row models.UserSecret
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&row).Error)
	require.NotEqual(t, "JBSWY3DPEHPK3PXP", row.Secret)

	plaintext, err := crypto.Decrypt(row.Secret, testKey)
	require.NoError(t, err)
	require.Equal(t, "JBSWY3DPEHPK3PXP", string(plaintext))
}

func TestUpsertReplacesSecretKeepsWatermark(t *testing.T) {
	store, db := newTestStore(t)
	user := testutil.MustCreateUser(t, db, "bob", "bob@example.com")
	ctx := context.Background()

	first, err := store.Upsert(ctx, user.ID, "FIRSTSECRETAAAAA")
	require.NoError(t, err)

	accepted := time.Date(2026, 3, 14, 9, 26, 0, 0, time.UTC)
	ok, err := store.RecordSuccess(ctx, first, accepted)
	require.NoError(t, err)
	require.True(t, ok)

	second, err := store.Upsert(ctx, user.ID, "SECONDSECRETAAAA")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID, "same row, secret overwritten in place")
	require.Equal(t, "SECONDSECRETAAAA", second.Secret)
	require.NotNil(t, second.LastAccess)
	require.True(t, second.LastAccess.Equal(accepted), "watermark untouched by re-provisioning")

	var count int64
	require.NoError(t, db.Model(&models.UserSecret{}).Where("user_id = ?", user.ID).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestRecordSuccessAdvancesWatermark(t *testing.T) {
	store, db := newTestStore(t)
	user := testutil.MustCreateUser(t, db, "carol", "carol@example.com")
	ctx := context.Background()

	rec, err := store.Upsert(ctx, user.ID, "JBSWY3DPEHPK3PXP")
	require.NoError(t, err)

	t1 := time.Date(2026, 3, 14, 9, 26, 0, 0, time.UTC)
	ok, err := store.RecordSuccess(ctx, rec, t1)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, rec.LastAccess)
	require.True(t, rec.LastAccess.Equal(t1))

	reloaded, err := store.Get(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.LastAccess)
	require.True(t, reloaded.LastAccess.Equal(t1), "write is durable and read-after-write consistent")
	_ = db

	t2 := t1.Add(30 * time.Second)
	ok, err = store.RecordSuccess(ctx, reloaded, t2)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRecordSuccessCASRejectsStaleRecord(t *testing.T) {
	store, db := newTestStore(t)
	user := testutil.MustCreateUser(t, db, "dave", "dave@example.com")
	ctx := context.Background()

	rec, err := store.Upsert(ctx, user.ID, "JBSWY3DPEHPK3PXP")
	require.NoError(t, err)

	// Two goroutine-equivalent views of the same record.
	stale, err := store.Get(ctx, user.ID)
	require.NoError(t, err)

	t1 := time.Date(2026, 3, 14, 9, 26, 0, 0, time.UTC)
	ok, err := store.RecordSuccess(ctx, rec, t1)
	require.NoError(t, err)
	require.True(t, ok)

	// The second view still carries last_access = NULL; its CAS must fail.
	ok, err = store.RecordSuccess(ctx, stale, t1.Add(time.Second))
	require.NoError(t, err)
	require.False(t, ok)

	var row models.UserSecret
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&row).Error)
	require.True(t, row.LastAccess.UTC().Equal(t1), "first writer wins")
}

func TestRecordSuccessRequiresLoadedRecord(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.RecordSuccess(context.Background(), nil, time.Now())
	require.Error(t, err)

	_, err = store.RecordSuccess(context.Background(), &Record{}, time.Now())
	require.Error(t, err)
}

func TestUpsertValidatesInput(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Upsert(context.Background(), "", "SECRET")
	require.Error(t, err)

	_, err = store.Upsert(context.Background(), "some-user", "")
	require.Error(t, err)
}
