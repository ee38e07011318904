package membership

import (
	"github.com/gofiber/fiber/v2/log"

	"github.com/memberfox/memberfox/app/models"
	"github.com/memberfox/memberfox/app/repository"
)

// Lifecycle events fanned out to registered listeners.
const (
	EventActivated = "activated"
	EventExpired   = "expired"
	EventCancelled = "cancelled"
)

// Listener receives lifecycle events after role side effects are applied.
type Listener func(event string, sub *models.Subscription)

// Handler translates subscription status transitions into role side effects
// on the user system and fans out lifecycle events.
type Handler struct {
	users     repository.UserRepository
	listeners []Listener
}

// NewHandler creates a transition handler over the user store.
func NewHandler(users repository.UserRepository) *Handler {
	return &Handler{users: users}
}

// On registers a lifecycle event listener.
func (h *Handler) On(l Listener) {
	h.listeners = append(h.listeners, l)
}

// HandleStatusChange applies the role side effects for one transition.
// Every transition is logged; only activation, expiration and cancellation
// touch roles. An unresolvable user is logged and skipped, the mutation
// re-runs on the next status change anyway.
func (h *Handler) HandleStatusChange(sub *models.Subscription, oldStatus, newStatus string) {
	log.Infof("[Membership] Subscription %d (user %d): %s -> %s", sub.ID, sub.UserID, oldStatus, newStatus)

	switch {
	case newStatus == models.SubStatusActive && oldStatus != models.SubStatusActive:
		h.activate(sub)
	case oldStatus == models.SubStatusActive && newStatus == models.SubStatusExpired:
		h.deactivate(sub, EventExpired)
	case newStatus == models.SubStatusCancelled:
		// Cancellation takes the same role-removal path as expiration.
		h.deactivate(sub, EventCancelled)
	}
}

// activate grants the membership role next to whatever roles the user
// already carries and marks the membership flag.
func (h *Handler) activate(sub *models.Subscription) {
	user, err := h.users.GetByID(sub.UserID)
	if err != nil {
		log.Errorf("[Membership] Cannot resolve user %d for subscription %d: %v", sub.UserID, sub.ID, err)
		return
	}

	user.AddRole(models.GetAppSettings().GetMembershipRole())
	user.HasActiveMembership = true
	if err := h.users.Update(user); err != nil {
		log.Errorf("[Membership] Failed to grant membership role to user %d: %v", user.ID, err)
		return
	}

	h.emit(EventActivated, sub)
}

// deactivate removes the membership role (unless removal is administratively
// disabled) and clears the membership flag. The user always keeps at least
// one role.
func (h *Handler) deactivate(sub *models.Subscription, event string) {
	user, err := h.users.GetByID(sub.UserID)
	if err != nil {
		log.Errorf("[Membership] Cannot resolve user %d for subscription %d: %v", sub.UserID, sub.ID, err)
		return
	}

	settings := models.GetAppSettings()
	if settings.IsRoleRemovalDisabled() {
		log.Infof("[Membership] Role removal disabled, user %d keeps role %q", user.ID, settings.GetMembershipRole())
	} else {
		user.RemoveRole(settings.GetMembershipRole(), settings.GetDefaultRole())
	}

	user.HasActiveMembership = false
	if err := h.users.Update(user); err != nil {
		log.Errorf("[Membership] Failed to update user %d after %s: %v", user.ID, event, err)
		return
	}

	h.emit(event, sub)
}

// emit fans one event out to all listeners. A panicking listener is logged
// and never breaks the transition.
func (h *Handler) emit(event string, sub *models.Subscription) {
	for _, l := range h.listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("[Membership] Listener panicked on %s for subscription %d: %v", event, sub.ID, r)
				}
			}()
			l(event, sub)
		}()
	}
}
