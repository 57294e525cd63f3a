package services

import (
	"fmt"
	"strings"

	"github.com/containrrr/shoutrrr"

	"github.com/aegis-proxy/aegis/internal/logger"
)

// NotificationService pushes operator-facing messages through shoutrrr
// URLs. Send-only and best effort: a failed notification never fails the
// operation that raised it.
type NotificationService struct {
	urls []string
}

// NewNotificationService parses a comma-separated list of shoutrrr URLs.
// An empty list yields a no-op service.
func NewNotificationService(rawURLs string) *NotificationService {
	var urls []string
	for _, u := range strings.Split(rawURLs, ",") {
		u = strings.TrimSpace(u)
		if u != "" {
			urls = append(urls, u)
		}
	}
	return &NotificationService{urls: urls}
}

// Send delivers a message to every configured target.
func (s *NotificationService) Send(title, message string) {
	if len(s.urls) == 0 {
		return
	}
	body := fmt.Sprintf("%s\n\n%s", title, message)
	for _, url := range s.urls {
		if err := shoutrrr.Send(url, body); err != nil {
			logger.Log().WithError(err).Warn("notification delivery failed")
		}
	}
}
