package services

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aegis-proxy/aegis/internal/models"
)

var (
	ErrProxyHostNotFound = errors.New("proxy host not found")
	ErrDomainInUse       = errors.New("domain name already in use by an enabled host")
	ErrInvalidUpstream   = errors.New("upstream target must be scheme, host and port")
)

// ProxyHostService owns proxy host persistence and validation.
type ProxyHostService struct {
	db *gorm.DB
}

func NewProxyHostService(db *gorm.DB) *ProxyHostService {
	return &ProxyHostService{db: db}
}

// List retrieves all proxy hosts with their relations.
func (s *ProxyHostService) List() ([]models.ProxyHost, error) {
	var hosts []models.ProxyHost
	if err := s.db.Preload("Certificate").Preload("AccessList").Order("id asc").Find(&hosts).Error; err != nil {
		return nil, err
	}
	return hosts, nil
}

// GetByUUID retrieves one proxy host.
func (s *ProxyHostService) GetByUUID(id string) (*models.ProxyHost, error) {
	var host models.ProxyHost
	if err := s.db.Preload("Certificate").Preload("AccessList").Where("uuid = ?", id).First(&host).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProxyHostNotFound
		}
		return nil, err
	}
	return &host, nil
}

// GetByID retrieves one proxy host by numeric id.
func (s *ProxyHostService) GetByID(id uint) (*models.ProxyHost, error) {
	var host models.ProxyHost
	if err := s.db.First(&host, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProxyHostNotFound
		}
		return nil, err
	}
	return &host, nil
}

// Create validates and persists a new proxy host.
func (s *ProxyHostService) Create(host *models.ProxyHost) error {
	if err := s.validate(host, 0); err != nil {
		return err
	}
	if host.UUID == "" {
		host.UUID = uuid.NewString()
	}
	return s.db.Create(host).Error
}

// Update validates and persists changes to an existing host.
func (s *ProxyHostService) Update(host *models.ProxyHost) error {
	if err := s.validate(host, host.ID); err != nil {
		return err
	}
	return s.db.Save(host).Error
}

// Delete removes a proxy host.
func (s *ProxyHostService) Delete(id uint) error {
	res := s.db.Delete(&models.ProxyHost{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrProxyHostNotFound
	}
	return nil
}

// TestConnection dials the upstream target to verify reachability.
func (s *ProxyHostService) TestConnection(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return fmt.Errorf("upstream %s unreachable: %w", addr, err)
	}
	return conn.Close()
}

func (s *ProxyHostService) validate(host *models.ProxyHost, selfID uint) error {
	domains := host.Domains()
	if len(domains) == 0 {
		return errors.New("at least one domain name is required")
	}
	if host.ForwardHost == "" || host.ForwardPort <= 0 || host.ForwardPort > 65535 {
		return ErrInvalidUpstream
	}
	if host.ForwardScheme == "" {
		host.ForwardScheme = "http"
	}
	if host.ForwardScheme != "http" && host.ForwardScheme != "https" {
		return ErrInvalidUpstream
	}

	if !host.Enabled {
		return nil
	}

	// Domain names must be unique across enabled hosts.
	var others []models.ProxyHost
	if err := s.db.Where("enabled = ? AND id <> ?", true, selfID).Find(&others).Error; err != nil {
		return err
	}
	for i := range others {
		for _, existing := range others[i].Domains() {
			for _, d := range domains {
				if d == existing {
					return fmt.Errorf("%w: %s (host %s)", ErrDomainInUse, d, others[i].UUID)
				}
			}
		}
	}
	return nil
}
