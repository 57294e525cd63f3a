package services

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aegis-proxy/aegis/internal/models"
)

func TestAccessListService_CreateWhitelist(t *testing.T) {
	svc := NewAccessListService(testDB(t))

	acl := &models.AccessList{
		Name:    "office",
		Type:    "whitelist",
		IPRules: `[{"cidr":"203.0.113.0/24"},{"cidr":"198.51.100.7"}]`,
		Enabled: true,
	}
	require.NoError(t, svc.Create(acl))
	require.NotEmpty(t, acl.UUID)
}

func TestAccessListService_Validation(t *testing.T) {
	svc := NewAccessListService(testDB(t))

	require.ErrorIs(t, svc.Create(&models.AccessList{Type: "allow"}), ErrInvalidAccessListType)

	require.ErrorIs(t, svc.Create(&models.AccessList{
		Type:    "whitelist",
		IPRules: `[{"cidr":"not-an-ip"}]`,
	}), ErrInvalidIPAddress)

	require.ErrorIs(t, svc.Create(&models.AccessList{
		Type:             "blacklist",
		LocalNetworkOnly: true,
		IPRules:          `[{"cidr":"203.0.113.0/24"}]`,
	}), ErrMixedListState)
}

func TestAccessListService_GeoValidation(t *testing.T) {
	svc := NewAccessListService(testDB(t))

	require.NoError(t, svc.Create(&models.AccessList{
		Type:         "geo_blacklist",
		CountryCodes: "cn, ru",
	}), "lowercase codes are accepted")

	require.ErrorIs(t, svc.Create(&models.AccessList{
		Type:         "geo_whitelist",
		CountryCodes: "USA",
	}), ErrInvalidCountryCode)

	require.ErrorIs(t, svc.Create(&models.AccessList{
		Type: "geo_whitelist",
	}), ErrInvalidCountryCode)

	require.ErrorIs(t, svc.Create(&models.AccessList{
		Type:             "geo_blacklist",
		CountryCodes:     "CN",
		LocalNetworkOnly: true,
	}), ErrMixedListState)
}

func TestAccessListService_DeleteBlockedWhileInUse(t *testing.T) {
	db := testDB(t)
	svc := NewAccessListService(db)

	acl := &models.AccessList{Name: "lan", Type: "whitelist", LocalNetworkOnly: true, Enabled: true}
	require.NoError(t, svc.Create(acl))

	host := validHost()
	host.UUID = "host-using-acl"
	host.AccessListID = &acl.ID
	require.NoError(t, db.Create(host).Error)

	require.ErrorIs(t, svc.Delete(acl.ID), ErrAccessListInUse)

	require.NoError(t, db.Model(host).Update("access_list_id", nil).Error)
	require.NoError(t, svc.Delete(acl.ID))
	require.ErrorIs(t, svc.Delete(acl.ID), ErrAccessListNotFound)
}
