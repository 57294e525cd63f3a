package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/aegis-proxy/aegis/internal/models"
)

// Snapshot is an immutable read of every policy-relevant record, taken once
// at the start of a compile cycle. Compilation is a pure function of one
// Snapshot; it never reads the store again mid-cycle.
type Snapshot struct {
	Hosts       []models.ProxyHost
	AccessLists []models.AccessList
	Rulesets    []models.SecurityRuleSet
	Security    models.SecurityConfig
	TakenAt     time.Time
}

// AccessListByID resolves an access list from the snapshot.
func (s *Snapshot) AccessListByID(id uint) *models.AccessList {
	for i := range s.AccessLists {
		if s.AccessLists[i].ID == id {
			return &s.AccessLists[i]
		}
	}
	return nil
}

// Reader loads snapshots from the store.
type Reader struct {
	db *gorm.DB
}

// NewReader creates a snapshot reader over the given database.
func NewReader(db *gorm.DB) *Reader {
	return &Reader{db: db}
}

// Load reads all hosts, access lists, rulesets and the singleton security
// config in one pass. A missing security config row yields a zero-value
// config with every pipeline stage disabled.
func (r *Reader) Load(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{TakenAt: time.Now()}

	db := r.db.WithContext(ctx)

	if err := db.Preload("Certificate").Preload("AccessList").Order("id asc").Find(&snap.Hosts).Error; err != nil {
		return Snapshot{}, fmt.Errorf("fetch proxy hosts: %w", err)
	}
	if err := db.Where("enabled = ?", true).Order("id asc").Find(&snap.AccessLists).Error; err != nil {
		return Snapshot{}, fmt.Errorf("fetch access lists: %w", err)
	}
	if err := db.Order("id asc").Find(&snap.Rulesets).Error; err != nil {
		return Snapshot{}, fmt.Errorf("fetch rulesets: %w", err)
	}

	var sec models.SecurityConfig
	if err := db.First(&sec).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return Snapshot{}, fmt.Errorf("fetch security config: %w", err)
		}
	}
	snap.Security = sec

	return snap, nil
}
