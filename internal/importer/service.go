package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aegis-proxy/aegis/internal/caddy"
	"github.com/aegis-proxy/aegis/internal/logger"
	"github.com/aegis-proxy/aegis/internal/models"
)

var (
	// ErrSessionNotFound means the referenced import session does not exist
	// or is no longer open.
	ErrSessionNotFound = errors.New("import session not found")
)

// ReloadTrigger requests one compile-and-apply cycle downstream.
type ReloadTrigger interface {
	Trigger(ctx context.Context) error
}

// Service runs the import path: stage a preview, let the user resolve
// conflicts, commit the batch with exactly one downstream reload.
type Service struct {
	db       *gorm.DB
	reloader ReloadTrigger
}

// NewService creates an import service. reloader may be nil in tests.
func NewService(db *gorm.DB, reloader ReloadTrigger) *Service {
	return &Service{db: db, reloader: reloader}
}

// Preview parses an externally authored document, diffs it against the
// current host set and stages a resolvable session. The store is not
// mutated beyond the session record.
func (s *Service) Preview(ctx context.Context, raw []byte, sourceName string) (*models.ImportSession, *ConflictPreview, error) {
	candidates, err := ParseConfig(raw)
	if err != nil {
		return nil, nil, err
	}
	if len(candidates) == 0 {
		return nil, nil, caddy.NewValidationError("document contains no importable hosts")
	}

	var existing []models.ProxyHost
	if err := s.db.WithContext(ctx).Find(&existing).Error; err != nil {
		return nil, nil, fmt.Errorf("fetch existing hosts: %w", err)
	}

	preview := DetectConflicts(candidates, existing)

	session := &models.ImportSession{
		UUID:           uuid.NewString(),
		SourceFile:     sourceName,
		Status:         "pending",
		ParsedData:     mustMarshal(candidates),
		ConflictReport: mustMarshal(preview),
	}
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return nil, nil, fmt.Errorf("create import session: %w", err)
	}

	return session, preview, nil
}

// CommitImport applies the user's resolutions: new hosts are created,
// conflicts resolved as overwrite replace the existing host's diffed
// fields, keep-existing entries are untouched. Every conflict must carry a
// resolution or the commit is rejected outright. One reload runs for the
// whole batch, and only if anything changed.
func (s *Service) CommitImport(ctx context.Context, sessionUUID string, resolutions map[string]string) (int, error) {
	var session models.ImportSession
	err := s.db.WithContext(ctx).
		Where("uuid = ? AND status IN ?", sessionUUID, []string{"pending", "reviewing"}).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrSessionNotFound
		}
		return 0, fmt.Errorf("fetch import session: %w", err)
	}

	var candidates []models.ProxyHost
	if err := json.Unmarshal([]byte(session.ParsedData), &candidates); err != nil {
		return 0, fmt.Errorf("decode staged hosts: %w", err)
	}
	var preview ConflictPreview
	if err := json.Unmarshal([]byte(session.ConflictReport), &preview); err != nil {
		return 0, fmt.Errorf("decode conflict report: %w", err)
	}

	// Reject before mutating anything if a conflict is unresolved.
	for domain, entry := range preview.Entries {
		if entry.Classification != "conflict" {
			continue
		}
		switch resolutions[domain] {
		case ResolutionKeepExisting, ResolutionOverwrite:
		default:
			return 0, fmt.Errorf("%w: %s", caddy.ErrConflictUnresolved, domain)
		}
	}

	applied := 0
	var itemErrors []string

	// Candidates sharing a DomainNames key collapse onto one preview entry,
	// so duplicates inside the batch are caught here as well: the first
	// candidate to claim a domain wins, later claimants become item errors.
	claimed := make(map[string]bool)
	claim := func(cand *models.ProxyHost) bool {
		for _, d := range cand.Domains() {
			if claimed[d] {
				itemErrors = append(itemErrors,
					fmt.Sprintf("%s: domain %s already imported by another entry in this document", cand.DomainNames, d))
				return false
			}
		}
		for _, d := range cand.Domains() {
			claimed[d] = true
		}
		return true
	}

	for i := range candidates {
		cand := &candidates[i]
		entry := preview.Entries[cand.DomainNames]
		if entry == nil {
			continue
		}

		switch entry.Classification {
		case "new":
			if !claim(cand) {
				continue
			}
			cand.UUID = uuid.NewString()
			if err := s.db.WithContext(ctx).Create(cand).Error; err != nil {
				itemErrors = append(itemErrors, fmt.Sprintf("%s: %v", cand.DomainNames, err))
				continue
			}
			applied++
		case "conflict":
			if resolutions[cand.DomainNames] != ResolutionOverwrite {
				continue
			}
			if !claim(cand) {
				continue
			}
			if err := s.overwriteExisting(ctx, entry.ExistingUUID, cand); err != nil {
				itemErrors = append(itemErrors, fmt.Sprintf("%s: %v", cand.DomainNames, err))
				continue
			}
			applied++
		}
	}

	for _, msg := range itemErrors {
		logger.WithFields(map[string]interface{}{"item": msg}).Warn("import item failed")
	}

	// A commit that applied nothing leaves the session open for a retry.
	if applied == 0 && len(itemErrors) > 0 {
		return 0, fmt.Errorf("no hosts imported: %s", itemErrors[0])
	}

	now := time.Now()
	session.Status = "committed"
	session.CommittedAt = &now
	session.UserResolutions = mustMarshal(resolutions)
	if err := s.db.WithContext(ctx).Save(&session).Error; err != nil {
		logger.Log().WithError(err).Warn("failed to persist committed import session")
	}

	if applied > 0 && s.reloader != nil {
		if err := s.reloader.Trigger(ctx); err != nil {
			return applied, fmt.Errorf("imported %d hosts but reload failed: %w", applied, err)
		}
	}

	return applied, nil
}

// Cancel discards a pending session.
func (s *Service) Cancel(ctx context.Context, sessionUUID string) error {
	var session models.ImportSession
	err := s.db.WithContext(ctx).Where("uuid = ?", sessionUUID).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	session.Status = "cancelled"
	return s.db.WithContext(ctx).Save(&session).Error
}

func (s *Service) overwriteExisting(ctx context.Context, existingUUID string, cand *models.ProxyHost) error {
	var existing models.ProxyHost
	if err := s.db.WithContext(ctx).Where("uuid = ?", existingUUID).First(&existing).Error; err != nil {
		return err
	}
	existing.ForwardScheme = cand.ForwardScheme
	existing.ForwardHost = cand.ForwardHost
	existing.ForwardPort = cand.ForwardPort
	existing.ForceTLS = cand.ForceTLS
	existing.WebsocketSupport = cand.WebsocketSupport
	return s.db.WithContext(ctx).Save(&existing).Error
}

func mustMarshal(v interface{}) string {
	b, _ := json.Marshal(v)
	return string(b)
}
