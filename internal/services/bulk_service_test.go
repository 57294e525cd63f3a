package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/aegis-proxy/aegis/internal/models"
)

var errTriggerDown = errors.New("engine down")

type countingTrigger struct {
	count int32
	err   error
}

func (c *countingTrigger) Trigger(ctx context.Context) error {
	atomic.AddInt32(&c.count, 1)
	return c.err
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.ProxyHost{},
		&models.AccessList{},
		&models.SecurityConfig{},
		&models.SecurityRuleSet{},
	))
	return db
}

func seedHosts(t *testing.T, db *gorm.DB, n int) []uint {
	t.Helper()
	ids := make([]uint, 0, n)
	for i := 0; i < n; i++ {
		host := models.ProxyHost{
			UUID:          uuidForIndex(i),
			DomainNames:   uuidForIndex(i) + ".example.com",
			ForwardScheme: "http",
			ForwardHost:   "10.0.0.5",
			ForwardPort:   3000,
			Enabled:       true,
		}
		require.NoError(t, db.Create(&host).Error)
		ids = append(ids, host.ID)
	}
	return ids
}

func uuidForIndex(i int) string {
	return string(rune('a'+i)) + "-host"
}

func TestBulkToggleFlags(t *testing.T) {
	db := testDB(t)
	trigger := &countingTrigger{}
	svc := NewBulkService(db, trigger)
	ids := seedHosts(t, db, 3)

	on := true
	result, err := svc.BulkToggleFlags(context.Background(), ids, FlagChanges{BlockExploits: &on, HSTSEnabled: &on})
	require.NoError(t, err)
	require.Equal(t, 3, result.Updated)
	require.Empty(t, result.Errors)
	require.Equal(t, int32(1), trigger.count, "exactly one reload per batch")

	var hosts []models.ProxyHost
	require.NoError(t, db.Find(&hosts).Error)
	for _, h := range hosts {
		require.True(t, h.BlockExploits)
		require.True(t, h.HSTSEnabled)
		require.True(t, h.Enabled, "untouched flags keep their value")
	}
}

func TestBulkToggleFlags_PartialFailure(t *testing.T) {
	db := testDB(t)
	trigger := &countingTrigger{}
	svc := NewBulkService(db, trigger)
	ids := seedHosts(t, db, 2)
	ids = append(ids, 9999) // does not exist

	off := false
	result, err := svc.BulkToggleFlags(context.Background(), ids, FlagChanges{Enabled: &off})
	require.NoError(t, err, "a missing host is an item error, not a batch failure")
	require.Equal(t, 2, result.Updated)
	require.Len(t, result.Errors, 1)
	require.Equal(t, uint(9999), result.Errors[0].HostID)
	require.Equal(t, int32(1), trigger.count, "partial success still reloads exactly once")
}

func TestBulkToggleFlags_AllFailNoReload(t *testing.T) {
	db := testDB(t)
	trigger := &countingTrigger{}
	svc := NewBulkService(db, trigger)

	on := true
	result, err := svc.BulkToggleFlags(context.Background(), []uint{111, 222}, FlagChanges{ForceTLS: &on})
	require.NoError(t, err)
	require.Zero(t, result.Updated)
	require.Len(t, result.Errors, 2)
	require.Zero(t, trigger.count, "nothing changed, nothing to reload")
}

func TestBulkToggleFlags_EmptyInput(t *testing.T) {
	svc := NewBulkService(testDB(t), nil)
	_, err := svc.BulkToggleFlags(context.Background(), nil, FlagChanges{})
	require.Error(t, err)
}

func TestBulkApplyACL(t *testing.T) {
	db := testDB(t)
	trigger := &countingTrigger{}
	svc := NewBulkService(db, trigger)
	ids := seedHosts(t, db, 2)

	acl := models.AccessList{UUID: "acl-1", Name: "lan", Type: "whitelist", LocalNetworkOnly: true, Enabled: true}
	require.NoError(t, db.Create(&acl).Error)

	result, err := svc.BulkApplyACL(context.Background(), ids, &acl.ID)
	require.NoError(t, err)
	require.Equal(t, 2, result.Updated)
	require.Equal(t, int32(1), trigger.count)

	var hosts []models.ProxyHost
	require.NoError(t, db.Find(&hosts).Error)
	for _, h := range hosts {
		require.NotNil(t, h.AccessListID)
		require.Equal(t, acl.ID, *h.AccessListID)
	}
}

func TestBulkApplyACL_Detach(t *testing.T) {
	db := testDB(t)
	svc := NewBulkService(db, &countingTrigger{})
	ids := seedHosts(t, db, 1)

	acl := models.AccessList{UUID: "acl-1", Name: "lan", Type: "whitelist", LocalNetworkOnly: true, Enabled: true}
	require.NoError(t, db.Create(&acl).Error)
	require.NoError(t, db.Model(&models.ProxyHost{}).Where("id = ?", ids[0]).Update("access_list_id", acl.ID).Error)

	result, err := svc.BulkApplyACL(context.Background(), ids, nil)
	require.NoError(t, err)
	require.Equal(t, 1, result.Updated)

	var host models.ProxyHost
	require.NoError(t, db.First(&host, ids[0]).Error)
	require.Nil(t, host.AccessListID)
}

func TestBulkApplyACL_UnknownListRejectedBeforeMutation(t *testing.T) {
	db := testDB(t)
	trigger := &countingTrigger{}
	svc := NewBulkService(db, trigger)
	ids := seedHosts(t, db, 2)

	missing := uint(424242)
	_, err := svc.BulkApplyACL(context.Background(), ids, &missing)
	require.ErrorIs(t, err, ErrAccessListNotFound)
	require.Zero(t, trigger.count)

	var hosts []models.ProxyHost
	require.NoError(t, db.Find(&hosts).Error)
	for _, h := range hosts {
		require.Nil(t, h.AccessListID, "validation failure must not touch any host")
	}
}

func TestBulk_ReloadFailureSurfaced(t *testing.T) {
	db := testDB(t)
	trigger := &countingTrigger{err: errTriggerDown}
	svc := NewBulkService(db, trigger)
	ids := seedHosts(t, db, 1)

	on := true
	result, err := svc.BulkToggleFlags(context.Background(), ids, FlagChanges{ForceTLS: &on})
	require.Error(t, err)
	require.Equal(t, 1, result.Updated, "the store update itself succeeded")
}
