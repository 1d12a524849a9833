// Package lending is the order state machine: BORROWED -> OVERDUE -> RETURNED, with
// BORROWED -> RETURNED allowed directly. RETURNED is terminal.
//
// Everything here is pure: functions take the order and the current time and never
// touch a store, so request handlers and the background sweeps share the same rules.
package lending

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"library_lending/models"
)

const day = 24 * time.Hour

// Create builds a new BORROWED order. The caller has already checked that the user and
// every book exist.
func Create(userID string, bookIDs []string, now time.Time, p Policy) *models.Order {
	return &models.Order{
		ID:         uuid.NewString(),
		UserID:     userID,
		BookIDs:    append(pq.StringArray(nil), bookIDs...),
		Status:     models.StatusBorrowed,
		BorrowedAt: now,
		DueDate:    now.Add(p.loanPeriod()),
		PickedUp:   false,
	}
}

// IsOverdue is true only for BORROWED orders strictly past their due date.
func IsOverdue(o *models.Order, now time.Time) bool {
	return o.Status == models.StatusBorrowed && now.After(o.DueDate)
}

// DaysRemaining counts whole days from now to the due date, truncated toward zero.
// Negative once the due date has passed by a full day.
func DaysRemaining(o *models.Order, now time.Time) int {
	return int(o.DueDate.Sub(now) / day)
}

// Return stamps the order RETURNED. Calling it again overwrites ReturnedAt; use
// CheckReturn first when that should be refused.
func Return(o *models.Order, now time.Time) {
	t := now
	o.ReturnedAt = &t
	o.Status = models.StatusReturned
}

// MarkOverdue moves BORROWED to OVERDUE and reports whether anything changed.
func MarkOverdue(o *models.Order) bool {
	if o.Status != models.StatusBorrowed {
		return false
	}
	o.Status = models.StatusOverdue
	return true
}

// MarkPickedUp is independent of the status field.
func MarkPickedUp(o *models.Order) {
	o.PickedUp = true
}

// Renew pushes the due date out by the renewal extension in place.
// An OVERDUE order whose new due date lies ahead of now goes back to BORROWED.
func Renew(o *models.Order, now time.Time, p Policy) {
	o.DueDate = o.DueDate.Add(p.renewalExtension())
	if o.Status == models.StatusOverdue && o.DueDate.After(now) {
		o.Status = models.StatusBorrowed
	}
}

// RenewBooks starts a fresh order for bookIDs on behalf of the original's owner.
// The original order is left untouched.
func RenewBooks(o *models.Order, bookIDs []string, now time.Time, p Policy) *models.Order {
	return &models.Order{
		ID:         uuid.NewString(),
		UserID:     o.UserID,
		BookIDs:    append(pq.StringArray(nil), bookIDs...),
		Status:     models.StatusBorrowed,
		BorrowedAt: now,
		DueDate:    now.Add(p.renewalExtension()),
		PickedUp:   false,
	}
}
