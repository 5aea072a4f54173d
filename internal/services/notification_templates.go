package services

import (
	"fmt"
	"html"
	"strings"

	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/models"
)

// notificationContent is the rendered text for both channels
type notificationContent struct {
	SMS       string
	Subject   string
	PlainText string
	HTML      string
}

// renderNotification builds the message for a notification type from its data fields.
// Missing fields render as empty strings.
func renderNotification(t models.NotificationType, name string, data map[string]string) notificationContent {
	get := func(key string) string { return data[key] }
	service := get("service_name")
	if service == "" {
		service = "detailing"
	}
	when := strings.TrimSpace(get("scheduled_date") + " " + get("scheduled_time"))

	var subject, body string
	switch t {
	case models.NotificationNewBooking:
		subject = "New booking offer"
		body = fmt.Sprintf("New %s booking on %s at %s. Open the app to accept.", service, when, get("service_address"))
	case models.NotificationBookingCancelled:
		subject = "Booking cancelled"
		body = fmt.Sprintf("Your %s booking on %s has been cancelled.", service, when)
	case models.NotificationBookingReminder:
		subject = "Booking reminder"
		body = fmt.Sprintf("Reminder: %s booking tomorrow, %s at %s.", service, when, get("service_address"))
	case models.NotificationPayoutProcessed:
		subject = "Payout sent"
		body = fmt.Sprintf("A payout of %s %s is on its way to your account.", get("amount"), strings.ToUpper(get("currency")))
	default:
		subject = "CleanSwift update"
		body = "You have a new update in the CleanSwift app."
	}

	if ref := get("receipt_id"); ref != "" && t != models.NotificationPayoutProcessed {
		body += " Ref " + ref + "."
	}

	greeting := "Hi"
	if name != "" {
		greeting = "Hi " + name
	}
	plain := greeting + ",\n\n" + body + "\n\nCleanSwift"

	return notificationContent{
		SMS:       "CleanSwift: " + body,
		Subject:   subject,
		PlainText: plain,
		HTML:      "<p>" + html.EscapeString(greeting) + ",</p><p>" + html.EscapeString(body) + "</p><p>CleanSwift</p>",
	}
}
