package renewal

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/memberfox/memberfox/app/models"
	"github.com/memberfox/memberfox/internal/pkg/env"
	"github.com/memberfox/memberfox/internal/pkg/security"
)

// renewalLinkTTL bounds how long a signed manual renewal link stays valid.
const renewalLinkTTL = 30 * 24 * time.Hour

// renderReminder builds the reminder mail for one subscription. Automatic
// subscriptions get an "about to auto-renew" note, manual ones a renewal
// link built from their token.
func (s *Scanner) renderReminder(user *models.User, sub *models.Subscription, days int) (subject string, body string) {
	settings := models.GetAppSettings()
	site := settings.SiteTitle
	word := "days"
	if days == 1 {
		word = "day"
	}

	if sub.RenewalType == models.RenewalAutomatic {
		subject = fmt.Sprintf("Your %s membership renews in %d %s", site, days, word)
		body = fmt.Sprintf(
			"<p>Hi %s,</p>"+
				"<p>your %s membership renews automatically in %d %s. "+
				"No action is needed; this is just a heads-up before we charge your payment method.</p>"+
				"<p>— %s</p>",
			user.Name, site, days, word, site)
		return subject, body
	}

	subject = fmt.Sprintf("Your %s membership expires in %d %s", site, days, word)
	link := s.renewalLink(sub)
	if link == "" {
		// Legacy manual subscriptions may lack a token. Still remind, just
		// without a link.
		log.Warnf("[Renewal] Subscription %d is manual but has no renewal token", sub.ID)
		body = fmt.Sprintf(
			"<p>Hi %s,</p>"+
				"<p>your %s membership expires in %d %s. Please visit the site to renew.</p>"+
				"<p>— %s</p>",
			user.Name, site, days, word, site)
		return subject, body
	}

	body = fmt.Sprintf(
		"<p>Hi %s,</p>"+
			"<p>your %s membership expires in %d %s.</p>"+
			"<p><a href=\"%s\">Renew your membership now</a></p>"+
			"<p>— %s</p>",
		user.Name, site, days, word, link, site)
	return subject, body
}

// renewalLink builds the manual renewal URL. When a signing secret is
// configured the raw token is wrapped in a signed, expiring claim so the
// storefront can verify the link offline.
func (s *Scanner) renewalLink(sub *models.Subscription) string {
	if sub.RenewalToken == "" {
		return ""
	}
	base := models.GetAppSettings().GetRenewalBaseURL()

	if secret := env.GetEnv("RENEWAL_LINK_SECRET", ""); secret != "" {
		signed, err := security.GenerateRenewalLinkToken(sub.ID, sub.UserID, sub.RenewalToken, renewalLinkTTL, secret)
		if err != nil {
			log.Errorf("[Renewal] Failed to sign renewal link for subscription %d: %v", sub.ID, err)
		} else {
			return fmt.Sprintf("%s/renew?token=%s&signed=1", base, signed)
		}
	}

	return fmt.Sprintf("%s/renew?token=%s", base, sub.RenewalToken)
}
