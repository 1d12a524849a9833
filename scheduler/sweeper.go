// Package scheduler runs the periodic lending jobs: flag orders that went past their due
// date, and remind borrowers the day before an order is due.
package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"library_lending/db"
	"library_lending/lending"
	"library_lending/models"
	"library_lending/notify"
)

// ReminderLedger records which reminders already went out.
type ReminderLedger interface {
	Claim(ctx context.Context, orderID string, due time.Time) (bool, error)
	Release(ctx context.Context, orderID string, due time.Time) error
}

// SweepStore is what the sweeps read and write.
type SweepStore interface {
	db.OrderStore
	FindUserByID(ctx context.Context, id string) (*models.User, error)
}

// SweepReport summarises one run. Failed counts records whose save or notification failed.
type SweepReport struct {
	Scanned  int `json:"scanned"`
	Updated  int `json:"updated"`
	Notified int `json:"notified"`
	Failed   int `json:"failed"`
}

type Sweeper struct {
	store   SweepStore
	ledger  ReminderLedger
	mail    *notify.Dispatcher
	log     logrus.FieldLogger
	timeout time.Duration
}

func NewSweeper(store SweepStore, ledger ReminderLedger, mail *notify.Dispatcher, log logrus.FieldLogger, storeTimeout time.Duration) *Sweeper {
	if storeTimeout <= 0 {
		storeTimeout = 3 * time.Second
	}
	return &Sweeper{store: store, ledger: ledger, mail: mail, log: log, timeout: storeTimeout}
}

// SweepOverdue marks every BORROWED order past its due date OVERDUE and tells the owner.
// Only the candidate query failing aborts the run; per-order failures are counted.
func (s *Sweeper) SweepOverdue(ctx context.Context, now time.Time) (SweepReport, error) {
	var rep SweepReport
	qctx, cancel := context.WithTimeout(ctx, s.timeout)
	candidates, err := s.store.FindOverdueCandidates(qctx, now)
	cancel()
	if err != nil {
		return rep, err
	}
	rep.Scanned = len(candidates)

	for i := range candidates {
		o := &candidates[i]
		log := s.log.WithFields(logrus.Fields{"job": "overdue", "order_id": o.ID})
		if !lending.IsOverdue(o, now) || !lending.MarkOverdue(o) {
			continue
		}
		if err := s.save(ctx, o); err != nil {
			log.WithError(err).Error("mark overdue failed")
			rep.Failed++
			continue
		}
		rep.Updated++

		if s.notifyOwner(ctx, o, "overdue", notify.SubjectOverdue, notify.OverdueBody(o)) {
			rep.Notified++
		} else {
			rep.Failed++
		}
	}
	return rep, nil
}

// SendReminders mails owners of BORROWED orders due in one day (DaysRemaining == 1).
// The ledger keeps a second run from mailing the same order again.
func (s *Sweeper) SendReminders(ctx context.Context, now time.Time) (SweepReport, error) {
	var rep SweepReport
	qctx, cancel := context.WithTimeout(ctx, s.timeout)
	candidates, err := s.store.FindDueBetween(qctx, now.Add(24*time.Hour), now.Add(48*time.Hour))
	cancel()
	if err != nil {
		return rep, err
	}
	rep.Scanned = len(candidates)

	for i := range candidates {
		o := &candidates[i]
		log := s.log.WithFields(logrus.Fields{"job": "reminder", "order_id": o.ID})
		if lending.DaysRemaining(o, now) != 1 {
			continue
		}

		claimed, err := s.ledger.Claim(ctx, o.ID, o.DueDate)
		if err != nil {
			log.WithError(err).Error("reminder ledger unavailable")
			rep.Failed++
			continue
		}
		if !claimed {
			continue
		}

		if s.notifyOwner(ctx, o, "reminder", notify.SubjectDueTomorrow, notify.DueTomorrowBody(o)) {
			rep.Notified++
			continue
		}
		rep.Failed++
		if err := s.ledger.Release(ctx, o.ID, o.DueDate); err != nil {
			log.WithError(err).Warn("release reminder claim failed")
		}
	}
	return rep, nil
}

func (s *Sweeper) save(ctx context.Context, o *models.Order) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.SaveOrder(ctx, o)
}

func (s *Sweeper) notifyOwner(ctx context.Context, o *models.Order, kind, subject, body string) bool {
	uctx, cancel := context.WithTimeout(ctx, s.timeout)
	u, err := s.store.FindUserByID(uctx, o.UserID)
	cancel()
	if err != nil {
		s.log.WithFields(logrus.Fields{"job": kind, "order_id": o.ID, "user_id": o.UserID}).WithError(err).Error("owner lookup failed")
		return false
	}
	name := u.Name
	if name == "" {
		name = u.Username
	}
	return s.mail.Send(ctx, kind, u.Email, subject, body, name)
}
