package session

import (
	"fmt"

	"github.com/matheus3301/msgsync/internal/config"
)

// Session identifies the signed-in account every queue, sync and
// discussion call acts for. It is passed explicitly; nothing reads a
// process-wide "current site".
type Session struct {
	SiteID string
	UserID int64
	URL    string
	Token  string
}

// FromConfig builds the session for siteID from the loaded configuration.
func FromConfig(cfg *config.Config, siteID string) (Session, error) {
	if err := ValidateName(siteID); err != nil {
		return Session{}, err
	}
	site, ok := cfg.Site(siteID)
	if !ok {
		return Session{}, fmt.Errorf("site %q is not configured", siteID)
	}
	if site.UserID <= 0 {
		return Session{}, fmt.Errorf("site %q has no user_id", siteID)
	}
	return Session{
		SiteID: siteID,
		UserID: site.UserID,
		URL:    site.URL,
		Token:  site.Token,
	}, nil
}
