package services

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/aegis-proxy/aegis/internal/logger"
	"github.com/aegis-proxy/aegis/internal/models"
)

var (
	ErrRulesetNotFound = errors.New("security ruleset not found")
	ErrRulesetEmpty    = errors.New("ruleset requires content or a source URL")
)

const maxRulesetBytes = 8 << 20 // 8 MiB

// RulesetService owns WAF ruleset storage and scheduled refresh from source
// URLs.
type RulesetService struct {
	db         *gorm.DB
	httpClient *http.Client
	reloader   ReloadTrigger
	cron       *cron.Cron
}

// NewRulesetService creates a ruleset service. reloader may be nil in tests.
func NewRulesetService(db *gorm.DB, reloader ReloadTrigger) *RulesetService {
	return &RulesetService{
		db:         db,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		reloader:   reloader,
	}
}

// List retrieves all rulesets.
func (s *RulesetService) List() ([]models.SecurityRuleSet, error) {
	var rulesets []models.SecurityRuleSet
	if err := s.db.Order("name asc").Find(&rulesets).Error; err != nil {
		return nil, err
	}
	return rulesets, nil
}

// GetByName retrieves a ruleset by its selection key.
func (s *RulesetService) GetByName(name string) (*models.SecurityRuleSet, error) {
	var rs models.SecurityRuleSet
	if err := s.db.Where("name = ?", name).First(&rs).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRulesetNotFound
		}
		return nil, err
	}
	return &rs, nil
}

// Save validates and persists a ruleset.
func (s *RulesetService) Save(rs *models.SecurityRuleSet) error {
	if rs.Content == "" && rs.SourceURL == "" {
		return ErrRulesetEmpty
	}
	if rs.UUID == "" {
		rs.UUID = uuid.NewString()
	}
	rs.LastUpdated = time.Now()
	return s.db.Save(rs).Error
}

// Delete removes a ruleset.
func (s *RulesetService) Delete(id uint) error {
	res := s.db.Delete(&models.SecurityRuleSet{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRulesetNotFound
	}
	return nil
}

// RefreshAll re-downloads every ruleset that has a source URL. It reports
// whether any content changed; an unchanged refresh does not warrant a
// reload.
func (s *RulesetService) RefreshAll(ctx context.Context) (bool, error) {
	var rulesets []models.SecurityRuleSet
	if err := s.db.Where("source_url <> ''").Find(&rulesets).Error; err != nil {
		return false, err
	}

	changed := false
	for i := range rulesets {
		rs := &rulesets[i]
		updated, err := s.refreshOne(ctx, rs)
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"ruleset": rs.Name,
				"error":   err.Error(),
			}).Warn("ruleset refresh failed")
			continue
		}
		if updated {
			changed = true
		}
	}

	if changed && s.reloader != nil {
		if err := s.reloader.Trigger(ctx); err != nil {
			return changed, fmt.Errorf("rulesets refreshed but reload failed: %w", err)
		}
	}

	return changed, nil
}

func (s *RulesetService) refreshOne(ctx context.Context, rs *models.SecurityRuleSet) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rs.SourceURL, nil)
	if err != nil {
		return false, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("source returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRulesetBytes))
	if err != nil {
		return false, err
	}
	if len(body) == 0 {
		return false, errors.New("source returned empty body")
	}

	if sha256.Sum256(body) == sha256.Sum256([]byte(rs.Content)) {
		return false, nil
	}

	rs.Content = string(body)
	rs.LastUpdated = time.Now()
	if err := s.db.Save(rs).Error; err != nil {
		return false, err
	}
	return true, nil
}

// StartSchedule begins the periodic refresh using the given cron spec.
func (s *RulesetService) StartSchedule(spec string) error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := s.RefreshAll(ctx); err != nil {
			logger.Log().WithError(err).Warn("scheduled ruleset refresh failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule ruleset refresh: %w", err)
	}
	s.cron.Start()
	return nil
}

// StopSchedule stops the refresh schedule.
func (s *RulesetService) StopSchedule() {
	if s.cron != nil {
		s.cron.Stop()
	}
}
