package lending

import (
	"fmt"
	"time"

	"library_lending/apperr"
	"library_lending/models"
)

const (
	// DefaultLoanPeriod is how long a fresh order runs before it is due.
	DefaultLoanPeriod = 7 * day

	// DefaultRenewalExtension is added to the due date by a renewal.
	DefaultRenewalExtension = 5 * day

	// DefaultRenewWindowDays: a renewal is accepted once DaysRemaining <= this value.
	DefaultRenewWindowDays = 2
)

// Policy holds the business rules callers enforce around the state machine.
type Policy struct {
	LoanPeriod       time.Duration
	RenewalExtension time.Duration

	// RenewWindowDays gates renewals to the last days of a loan. Negative disables the gate.
	RenewWindowDays int

	AllowRenewAfterReturn bool
	AllowRepeatReturn     bool
}

func DefaultPolicy() Policy {
	return Policy{
		LoanPeriod:       DefaultLoanPeriod,
		RenewalExtension: DefaultRenewalExtension,
		RenewWindowDays:  DefaultRenewWindowDays,
	}
}

func (p Policy) loanPeriod() time.Duration {
	if p.LoanPeriod <= 0 {
		return DefaultLoanPeriod
	}
	return p.LoanPeriod
}

func (p Policy) renewalExtension() time.Duration {
	if p.RenewalExtension <= 0 {
		return DefaultRenewalExtension
	}
	return p.RenewalExtension
}

// CheckRenewal returns a Conflict error when policy forbids renewing o at now.
func CheckRenewal(o *models.Order, now time.Time, p Policy) error {
	if o.Status == models.StatusReturned && !p.AllowRenewAfterReturn {
		return apperr.Conflict(fmt.Sprintf("order %s already returned", o.ID))
	}
	if p.RenewWindowDays >= 0 {
		if left := DaysRemaining(o, now); left > p.RenewWindowDays {
			return apperr.Conflict(fmt.Sprintf("cannot renew order %s: %d days remaining, must be at most %d", o.ID, left, p.RenewWindowDays))
		}
	}
	return nil
}

// CheckReturn refuses a second return unless the policy keeps the overwrite behaviour.
func CheckReturn(o *models.Order, p Policy) error {
	if o.Status == models.StatusReturned && !p.AllowRepeatReturn {
		return apperr.Conflict(fmt.Sprintf("order %s already returned", o.ID))
	}
	return nil
}
