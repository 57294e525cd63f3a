package services

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/aegis-proxy/aegis/internal/models"
)

var (
	ErrSecurityConfigNotFound = errors.New("security config not found")
	ErrInvalidAdminCIDR       = errors.New("invalid admin whitelist CIDR")
	ErrInvalidWAFMode         = errors.New("invalid waf mode")
	ErrBreakGlassInvalid      = errors.New("break-glass token invalid")
)

// SecurityService owns the singleton security settings record.
type SecurityService struct {
	db *gorm.DB
}

func NewSecurityService(db *gorm.DB) *SecurityService {
	return &SecurityService{db: db}
}

// Get returns the singleton SecurityConfig row.
func (s *SecurityService) Get() (*models.SecurityConfig, error) {
	var cfg models.SecurityConfig
	if err := s.db.First(&cfg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSecurityConfigNotFound
		}
		return nil, err
	}
	return &cfg, nil
}

// Upsert validates and saves the security config.
func (s *SecurityService) Upsert(cfg *models.SecurityConfig) error {
	switch cfg.WAFMode {
	case "", "disabled", "detect", "block":
	default:
		return ErrInvalidWAFMode
	}

	if cfg.AdminWhitelist != "" {
		for _, p := range strings.Split(cfg.AdminWhitelist, ",") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if !isValidCIDR(p) {
				return ErrInvalidAdminCIDR
			}
		}
	}

	var existing models.SecurityConfig
	if err := s.db.First(&existing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if cfg.UUID == "" {
				cfg.UUID = uuid.NewString()
			}
			return s.db.Create(cfg).Error
		}
		return err
	}

	// Preserve secrets not supplied by the caller.
	if cfg.BreakGlassHash == "" {
		cfg.BreakGlassHash = existing.BreakGlassHash
	}
	if cfg.CrowdSecAPIKey == "" {
		cfg.CrowdSecAPIKey = existing.CrowdSecAPIKey
	}
	cfg.ID = existing.ID
	cfg.UUID = existing.UUID
	return s.db.Save(cfg).Error
}

// GenerateBreakGlassToken generates a token, stores its bcrypt hash, and
// returns the plaintext token exactly once.
func (s *SecurityService) GenerateBreakGlassToken() (string, error) {
	tokenBytes := make([]byte, 24)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	var cfg models.SecurityConfig
	if err := s.db.First(&cfg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			cfg = models.SecurityConfig{UUID: uuid.NewString(), BreakGlassHash: string(hash)}
			if err := s.db.Create(&cfg).Error; err != nil {
				return "", err
			}
			return token, nil
		}
		return "", err
	}

	cfg.BreakGlassHash = string(hash)
	if err := s.db.Save(&cfg).Error; err != nil {
		return "", err
	}
	return token, nil
}

// VerifyBreakGlassToken checks a presented token against the stored hash.
func (s *SecurityService) VerifyBreakGlassToken(token string) error {
	cfg, err := s.Get()
	if err != nil {
		return err
	}
	if cfg.BreakGlassHash == "" {
		return ErrBreakGlassInvalid
	}
	if bcrypt.CompareHashAndPassword([]byte(cfg.BreakGlassHash), []byte(token)) != nil {
		return ErrBreakGlassInvalid
	}
	return nil
}
