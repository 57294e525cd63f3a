package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/aegis-proxy/aegis/internal/logger"
	"github.com/aegis-proxy/aegis/internal/metrics"
	"github.com/aegis-proxy/aegis/internal/models"
)

// ReloadTrigger requests one compile-and-apply cycle downstream.
type ReloadTrigger interface {
	Trigger(ctx context.Context) error
}

// BulkError records one host's failure inside a bulk operation.
type BulkError struct {
	HostID uint   `json:"host_id"`
	Error  string `json:"error"`
}

// BulkResult is the per-item accounting of one bulk operation. A bulk
// operation is a partial-failure batch, not a transaction: one host's
// failure never aborts the rest.
type BulkResult struct {
	Updated int         `json:"updated"`
	Errors  []BulkError `json:"errors"`
}

// FlagChanges lists boolean feature flags to toggle. Nil fields are left
// untouched.
type FlagChanges struct {
	ForceTLS         *bool `json:"force_tls,omitempty"`
	HTTP2Support     *bool `json:"http2_support,omitempty"`
	HSTSEnabled      *bool `json:"hsts_enabled,omitempty"`
	BlockExploits    *bool `json:"block_exploits,omitempty"`
	WebsocketSupport *bool `json:"websocket_support,omitempty"`
	Enabled          *bool `json:"enabled,omitempty"`
}

// BulkService applies one logical change to many hosts and triggers exactly
// one downstream reload for the whole batch.
type BulkService struct {
	db       *gorm.DB
	reloader ReloadTrigger
}

// NewBulkService creates a bulk executor. reloader may be nil in tests.
func NewBulkService(db *gorm.DB, reloader ReloadTrigger) *BulkService {
	return &BulkService{db: db, reloader: reloader}
}

// BulkApplyACL attaches (or with a nil id detaches) an access list on each
// listed host.
func (s *BulkService) BulkApplyACL(ctx context.Context, hostIDs []uint, accessListID *uint) (BulkResult, error) {
	if len(hostIDs) == 0 {
		return BulkResult{}, errors.New("host ids cannot be empty")
	}

	// Validate the target list once, before touching any host.
	if accessListID != nil {
		var acl models.AccessList
		if err := s.db.WithContext(ctx).First(&acl, *accessListID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return BulkResult{}, ErrAccessListNotFound
			}
			return BulkResult{}, fmt.Errorf("fetch access list: %w", err)
		}
	}

	return s.run(ctx, hostIDs, func(host *models.ProxyHost) {
		host.AccessListID = accessListID
	})
}

// BulkToggleFlags applies the given flag changes to each listed host.
func (s *BulkService) BulkToggleFlags(ctx context.Context, hostIDs []uint, flags FlagChanges) (BulkResult, error) {
	if len(hostIDs) == 0 {
		return BulkResult{}, errors.New("host ids cannot be empty")
	}

	return s.run(ctx, hostIDs, func(host *models.ProxyHost) {
		if flags.ForceTLS != nil {
			host.ForceTLS = *flags.ForceTLS
		}
		if flags.HTTP2Support != nil {
			host.HTTP2Support = *flags.HTTP2Support
		}
		if flags.HSTSEnabled != nil {
			host.HSTSEnabled = *flags.HSTSEnabled
		}
		if flags.BlockExploits != nil {
			host.BlockExploits = *flags.BlockExploits
		}
		if flags.WebsocketSupport != nil {
			host.WebsocketSupport = *flags.WebsocketSupport
		}
		if flags.Enabled != nil {
			host.Enabled = *flags.Enabled
		}
	})
}

func (s *BulkService) run(ctx context.Context, hostIDs []uint, mutate func(*models.ProxyHost)) (BulkResult, error) {
	var result BulkResult

	for _, id := range hostIDs {
		var host models.ProxyHost
		if err := s.db.WithContext(ctx).First(&host, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				result.Errors = append(result.Errors, BulkError{HostID: id, Error: "proxy host not found"})
				metrics.IncBulkItemError()
				continue
			}
			// The store itself is unavailable; abort without a reload.
			return BulkResult{}, fmt.Errorf("fetch host %d: %w", id, err)
		}

		mutate(&host)

		if err := s.db.WithContext(ctx).Save(&host).Error; err != nil {
			result.Errors = append(result.Errors, BulkError{HostID: id, Error: err.Error()})
			metrics.IncBulkItemError()
			continue
		}
		result.Updated++
	}

	// One reload for the whole batch. Nothing changed means nothing to
	// reload.
	if result.Updated > 0 && s.reloader != nil {
		if err := s.reloader.Trigger(ctx); err != nil {
			logger.Log().WithError(err).Error("bulk operation reload failed")
			return result, fmt.Errorf("updated %d hosts but reload failed: %w", result.Updated, err)
		}
	}

	return result, nil
}
