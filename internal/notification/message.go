// Package notification turns request lifecycle edges into templated e-mails.
// The dispatcher only enqueues; a worker drains the queue, applies the
// recipient's gates, deduplicates per transition and calls the mail API.
package notification

import (
	"fmt"
	"strings"
	"time"

	"rental-booking/internal/models"
)

// TemplateID mail template known to the mail API
type TemplateID string

const (
	TemplateNewRequest TemplateID = "NOTIFICATION_EMAIL"
	TemplateApproval   TemplateID = "APPROVAL_EMAIL"
	TemplateDenial     TemplateID = "DENIAL_EMAIL"
)

// template argument names
const (
	ArgRequester = "request_notification_requester"
	ArgCheckIn   = "request_notification_check_in"
	ArgCheckOut  = "request_notification_check_out"
	ArgHost      = "request_notification_host"
	ArgUnit      = "request_notification_unit"
)

// Message one queued notification
type Message struct {
	ID         string            `json:"id"`
	Key        string            `json:"key"` // one per transition, used for dedupe
	TemplateID TemplateID        `json:"template_id"`
	Locale     string            `json:"locale"`
	To         string            `json:"to"` // recipient user id
	Args       map[string]string `json:"args"`

	// SubscriptionGate requires the recipient to have e_notifications on
	SubscriptionGate bool `json:"subscription_gate"`
	// ConfirmationGate requires the recipient's address to be validated
	ConfirmationGate bool `json:"confirmation_gate"`

	RequestID string    `json:"request_id"`
	CreatedAt time.Time `json:"created_at"`

	// Attempt counts earlier deliveries that failed
	Attempt int `json:"attempt,omitempty"`
}

// TransitionKey identifies the lifecycle edge a message belongs to
func TransitionKey(requestID string, status models.RequestStatus) string {
	return fmt.Sprintf("%s:%s", requestID, status)
}

var dateLayouts = map[string]string{
	"en": "Jan 2, 2006",
	"es": "02/01/2006",
	"fr": "02/01/2006",
	"de": "02.01.2006",
	"fi": "2.1.2006",
	"sv": "2006-01-02",
}

const defaultLocale = "en"

// NormalizeLocale reduces "es-MX" or "ES" to a supported base language
func NormalizeLocale(locale string) string {
	base := strings.ToLower(locale)
	if i := strings.IndexAny(base, "-_"); i > 0 {
		base = base[:i]
	}
	if _, ok := dateLayouts[base]; ok {
		return base
	}
	return defaultLocale
}

// FormatDate renders a stay date the way the recipient's locale writes it
func FormatDate(locale string, t time.Time) string {
	return t.Format(dateLayouts[NormalizeLocale(locale)])
}

// DecisionTemplate picks the template for a decided request
func DecisionTemplate(status models.RequestStatus) (TemplateID, bool) {
	switch status {
	case models.StatusApproved:
		return TemplateApproval, true
	case models.StatusDenied:
		return TemplateDenial, true
	}
	return "", false
}
