package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aegis-proxy/aegis/internal/models"
)

var (
	ErrAccessListNotFound    = errors.New("access list not found")
	ErrInvalidAccessListType = errors.New("invalid access list type")
	ErrInvalidIPAddress      = errors.New("invalid IP address or CIDR")
	ErrInvalidCountryCode    = errors.New("invalid country code")
	ErrMixedListState        = errors.New("local_network_only and explicit IP rules are mutually exclusive")
	ErrAccessListInUse       = errors.New("access list is in use by proxy hosts")
)

// ValidAccessListTypes defines allowed access list types.
var ValidAccessListTypes = []string{"whitelist", "blacklist", "geo_whitelist", "geo_blacklist"}

var countryCodePattern = regexp.MustCompile(`^[A-Z]{2}$`)

// AccessListService owns access list persistence and validation.
type AccessListService struct {
	db *gorm.DB
}

func NewAccessListService(db *gorm.DB) *AccessListService {
	return &AccessListService{db: db}
}

// List retrieves all access lists.
func (s *AccessListService) List() ([]models.AccessList, error) {
	var acls []models.AccessList
	if err := s.db.Order("id asc").Find(&acls).Error; err != nil {
		return nil, err
	}
	return acls, nil
}

// GetByID retrieves an access list by ID.
func (s *AccessListService) GetByID(id uint) (*models.AccessList, error) {
	var acl models.AccessList
	if err := s.db.First(&acl, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccessListNotFound
		}
		return nil, err
	}
	return &acl, nil
}

// GetByUUID retrieves an access list by UUID.
func (s *AccessListService) GetByUUID(id string) (*models.AccessList, error) {
	var acl models.AccessList
	if err := s.db.Where("uuid = ?", id).First(&acl).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccessListNotFound
		}
		return nil, err
	}
	return &acl, nil
}

// Create creates a new access list with validation.
func (s *AccessListService) Create(acl *models.AccessList) error {
	if err := s.validate(acl); err != nil {
		return err
	}
	acl.UUID = uuid.NewString()
	return s.db.Create(acl).Error
}

// Update validates and saves an existing access list.
func (s *AccessListService) Update(acl *models.AccessList) error {
	if err := s.validate(acl); err != nil {
		return err
	}
	return s.db.Save(acl).Error
}

// Delete removes an access list unless it is referenced by a host.
func (s *AccessListService) Delete(id uint) error {
	var count int64
	if err := s.db.Model(&models.ProxyHost{}).Where("access_list_id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrAccessListInUse
	}

	res := s.db.Delete(&models.AccessList{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAccessListNotFound
	}
	return nil
}

func (s *AccessListService) validate(acl *models.AccessList) error {
	valid := false
	for _, t := range ValidAccessListTypes {
		if acl.Type == t {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("%w: %q", ErrInvalidAccessListType, acl.Type)
	}

	if acl.IsGeo() {
		if acl.LocalNetworkOnly {
			return ErrMixedListState
		}
		codes := strings.Split(acl.CountryCodes, ",")
		found := 0
		for _, c := range codes {
			c = strings.ToUpper(strings.TrimSpace(c))
			if c == "" {
				continue
			}
			if !countryCodePattern.MatchString(c) {
				return fmt.Errorf("%w: %q", ErrInvalidCountryCode, c)
			}
			found++
		}
		if found == 0 {
			return fmt.Errorf("%w: geo list requires country codes", ErrInvalidCountryCode)
		}
		return nil
	}

	hasRules := acl.IPRules != "" && acl.IPRules != "[]"
	if acl.LocalNetworkOnly && hasRules {
		return ErrMixedListState
	}

	if hasRules {
		var rules []models.AccessListRule
		if err := json.Unmarshal([]byte(acl.IPRules), &rules); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidIPAddress, err)
		}
		for _, r := range rules {
			if !isValidCIDR(r.CIDR) {
				return fmt.Errorf("%w: %q", ErrInvalidIPAddress, r.CIDR)
			}
		}
	}

	return nil
}

// isValidCIDR accepts a bare IP or CIDR notation.
func isValidCIDR(s string) bool {
	if s == "" {
		return false
	}
	if !strings.Contains(s, "/") {
		return net.ParseIP(s) != nil
	}
	_, _, err := net.ParseCIDR(s)
	return err == nil
}
