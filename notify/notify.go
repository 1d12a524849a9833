// Package notify delivers user-facing mail. Callers treat delivery as best effort: a
// failed send is logged and counted, never surfaced to the request.
package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"library_lending/models"
)

// Notifier is the outbound mail sink.
type Notifier interface {
	Notify(ctx context.Context, toEmail, subject, body, recipientName string) error
	NotifyOrderConfirmation(ctx context.Context, toEmail, recipientName string, o *models.Order, books []models.Book) error
}

const (
	SubjectWelcome      = "New User Account Created"
	SubjectConfirmation = "Order Summary"
	SubjectRenewal      = "Order Renewal"
	SubjectOverdue      = "Order Overdue"
	SubjectDueTomorrow  = "Order Due Tomorrow"
)

const dateLayout = "Mon, 02 Jan 2006"

func RenewalBody(o *models.Order) string {
	return fmt.Sprintf("Your order %s has been renewed. The new due date is %s.", o.ID, o.DueDate.Format(dateLayout))
}

func RenewBooksBody(o *models.Order, books []models.Book) string {
	return fmt.Sprintf("The following books have been renewed under order %s: %s. They are due on %s.",
		o.ID, strings.Join(titles(books), ", "), o.DueDate.Format(dateLayout))
}

func OverdueBody(o *models.Order) string {
	return fmt.Sprintf("Your order %s was due on %s and is now overdue. Please return the books as soon as possible.",
		o.ID, o.DueDate.Format(dateLayout))
}

func DueTomorrowBody(o *models.Order) string {
	return fmt.Sprintf("Your order %s is due tomorrow (%s). Renew it or bring the books back to avoid an overdue notice.",
		o.ID, o.DueDate.Format(dateLayout))
}

func WelcomeBody(username string) string {
	return fmt.Sprintf("Your account %q has been created. You can now sign in and borrow books.", username)
}

// plainText wraps body with the greeting and signature every plain mail carries.
func plainText(appName, name, body string) string {
	return "Hello " + name + ",\n\n" + body + "\n\n" +
		"Thank you for using our service.\n\n" +
		"Best Regards,\n" + appName
}

// confirmationHTML renders the order summary mail.
func confirmationHTML(appName, name string, o *models.Order, books []models.Book) string {
	var rows strings.Builder
	for _, b := range books {
		fmt.Fprintf(&rows, `<tr><td style="padding:4px 8px">%s</td><td style="padding:4px 8px">%s</td></tr>`,
			html.EscapeString(b.Title), html.EscapeString(b.Author))
	}
	return fmt.Sprintf(`
<div style="font-family:Arial,sans-serif; font-size:14px; color:#222">
  <p>Hello %s,</p>
  <p>Thank you for your order <b>%s</b>. Please pick up your books at the front desk.</p>
  <table style="border-collapse:collapse">
    <tr><th align="left" style="padding:4px 8px">Title</th><th align="left" style="padding:4px 8px">Author</th></tr>
    %s
  </table>
  <p>Borrowed: %s<br/>Due: <b>%s</b></p>
  <hr/>
  <p style="color:#666">%s</p>
</div>
`, html.EscapeString(name), o.ID, rows.String(),
		o.BorrowedAt.Format(dateLayout), o.DueDate.Format(dateLayout), html.EscapeString(appName))
}

func titles(books []models.Book) []string {
	out := make([]string, 0, len(books))
	for _, b := range books {
		out = append(out, b.Title)
	}
	return out
}

// DefaultTimeout bounds one delivery attempt.
const DefaultTimeout = 5 * time.Second
