// Package service runs one request end to end: authorize the caller, apply the lending
// rules, persist, then notify after the write has landed.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"library_lending/apperr"
	"library_lending/auth"
	"library_lending/db"
	"library_lending/lending"
	"library_lending/metrics"
	"library_lending/models"
	"library_lending/notify"
)

// DefaultStoreTimeout bounds the store work of one request.
const DefaultStoreTimeout = 3 * time.Second

type Orders struct {
	store   db.Store
	mail    *notify.Dispatcher
	guard   auth.Guard
	policy  lending.Policy
	log     logrus.FieldLogger
	timeout time.Duration
	now     func() time.Time
}

func NewOrders(store db.Store, mail *notify.Dispatcher, guard auth.Guard, policy lending.Policy, log logrus.FieldLogger, storeTimeout time.Duration) *Orders {
	if storeTimeout <= 0 {
		storeTimeout = DefaultStoreTimeout
	}
	return &Orders{
		store:   store,
		mail:    mail,
		guard:   guard,
		policy:  policy,
		log:     log,
		timeout: storeTimeout,
		now:     time.Now,
	}
}

// OrderPatch is the admin edit of an order; nil fields stay as they are.
type OrderPatch struct {
	UserID   *string
	BookIDs  []string
	DueDate  *time.Time
	PickedUp *bool
}

func (s *Orders) CreateOrder(ctx context.Context, id *auth.Identity, userID string, bookIDs []string) (*models.Order, error) {
	if err := authorize(s.guard, id, auth.OwnedBy(userID)); err != nil {
		return nil, err
	}
	ids := dedupe(bookIDs)
	if len(ids) == 0 {
		return nil, apperr.Invalid("an order needs at least one book")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	books, err := s.requireBooks(ctx, ids)
	if err != nil {
		return nil, err
	}

	o := lending.Create(userID, ids, s.now(), s.policy)
	if err := s.store.SaveOrder(ctx, o); err != nil {
		return nil, err
	}
	metrics.RecordTransition("create")
	s.log.WithFields(logrus.Fields{"order_id": o.ID, "user_id": userID}).Info("order created")

	s.mail.SendConfirmation(ctx, user.Email, displayName(user), o, books)
	return o, nil
}

// GetOrder answers NotFound before Forbidden, so order existence is visible to any caller.
func (s *Orders) GetOrder(ctx context.Context, id *auth.Identity, orderID string) (*models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.loadOwned(ctx, id, orderID)
}

// GetOrderOwner returns the user an order belongs to.
func (s *Orders) GetOrderOwner(ctx context.Context, id *auth.Identity, orderID string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	o, err := s.loadOwned(ctx, id, orderID)
	if err != nil {
		return nil, err
	}
	return s.store.FindUserByID(ctx, o.UserID)
}

func (s *Orders) ListOrdersForUser(ctx context.Context, id *auth.Identity, userID string) ([]models.Order, error) {
	if err := authorize(s.guard, id, auth.OwnedBy(userID)); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.store.FindUserByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.ListOrdersByUser(ctx, userID)
}

func (s *Orders) ListAllOrders(ctx context.Context, id *auth.Identity) ([]models.Order, error) {
	if err := authorize(s.guard, id, auth.AdminAction("list orders")); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.ListOrders(ctx)
}

func (s *Orders) RenewOrder(ctx context.Context, id *auth.Identity, orderID string) (*models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	o, err := s.loadOwned(ctx, id, orderID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := lending.CheckRenewal(o, now, s.policy); err != nil {
		return nil, err
	}
	lending.Renew(o, now, s.policy)
	if err := s.store.SaveOrder(ctx, o); err != nil {
		return nil, err
	}
	metrics.RecordTransition("renew")
	s.log.WithFields(logrus.Fields{"order_id": o.ID, "due_date": o.DueDate}).Info("order renewed")

	s.notifyOwner(ctx, o, "renewal", notify.SubjectRenewal, notify.RenewalBody(o))
	return o, nil
}

// RenewBooks moves a subset of an order's books onto a fresh order. The original stays as is.
func (s *Orders) RenewBooks(ctx context.Context, id *auth.Identity, orderID string, bookIDs []string) (*models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	o, err := s.loadOwned(ctx, id, orderID)
	if err != nil {
		return nil, err
	}
	ids := dedupe(bookIDs)
	if len(ids) == 0 {
		return nil, apperr.Invalid("no books to renew")
	}
	for _, b := range ids {
		if !o.HasBook(b) {
			return nil, apperr.Invalid(fmt.Sprintf("book %s is not part of order %s", b, o.ID))
		}
	}
	books, err := s.requireBooks(ctx, ids)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := lending.CheckRenewal(o, now, s.policy); err != nil {
		return nil, err
	}

	n := lending.RenewBooks(o, ids, now, s.policy)
	if err := s.store.SaveOrder(ctx, n); err != nil {
		return nil, err
	}
	metrics.RecordTransition("renew_books")
	s.log.WithFields(logrus.Fields{"order_id": n.ID, "from_order": o.ID}).Info("books renewed")

	s.notifyOwner(ctx, n, "renewal", notify.SubjectRenewal, notify.RenewBooksBody(n, books))
	return n, nil
}

func (s *Orders) ReturnOrder(ctx context.Context, id *auth.Identity, orderID string) (*models.Order, error) {
	return s.adminMutate(ctx, id, orderID, "return", func(ctx context.Context, o *models.Order) error {
		if err := lending.CheckReturn(o, s.policy); err != nil {
			return err
		}
		lending.Return(o, s.now())
		return nil
	})
}

func (s *Orders) PickupOrder(ctx context.Context, id *auth.Identity, orderID string) (*models.Order, error) {
	return s.adminMutate(ctx, id, orderID, "pickup", func(ctx context.Context, o *models.Order) error {
		lending.MarkPickedUp(o)
		return nil
	})
}

// MarkOrderOverdue is the manual librarian override; it does not look at the due date.
func (s *Orders) MarkOrderOverdue(ctx context.Context, id *auth.Identity, orderID string) (*models.Order, error) {
	o, err := s.adminMutate(ctx, id, orderID, "overdue", func(ctx context.Context, o *models.Order) error {
		if !lending.MarkOverdue(o) {
			return apperr.Conflict(fmt.Sprintf("order %s is %s, only BORROWED orders can become overdue", o.ID, o.Status))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifyOwner(ctx, o, "overdue", notify.SubjectOverdue, notify.OverdueBody(o))
	return o, nil
}

func (s *Orders) UpdateOrder(ctx context.Context, id *auth.Identity, orderID string, p OrderPatch) (*models.Order, error) {
	return s.adminMutate(ctx, id, orderID, "update", func(ctx context.Context, o *models.Order) error {
		if p.UserID != nil && *p.UserID != o.UserID {
			if _, err := s.store.FindUserByID(ctx, *p.UserID); err != nil {
				return err
			}
			o.UserID = *p.UserID
		}
		if p.BookIDs != nil {
			ids := dedupe(p.BookIDs)
			if len(ids) == 0 {
				return apperr.Invalid("an order needs at least one book")
			}
			if _, err := s.requireBooks(ctx, ids); err != nil {
				return err
			}
			o.BookIDs = ids
		}
		if p.DueDate != nil {
			if p.DueDate.Before(o.BorrowedAt) {
				return apperr.Invalid("due date before borrow date")
			}
			o.DueDate = *p.DueDate
		}
		if p.PickedUp != nil {
			o.PickedUp = *p.PickedUp
		}

		// 改了到期日要重新判断是否逾期
		now := s.now()
		switch {
		case lending.IsOverdue(o, now):
			lending.MarkOverdue(o)
		case o.Status == models.StatusOverdue && !now.After(o.DueDate):
			o.Status = models.StatusBorrowed
		}
		return nil
	})
}

func (s *Orders) DeleteOrder(ctx context.Context, id *auth.Identity, orderID string) error {
	if err := authorize(s.guard, id, auth.AdminAction("delete order")); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ok, err := s.store.OrderExists(ctx, orderID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("order", orderID)
	}
	if err := s.store.DeleteOrder(ctx, orderID); err != nil {
		return err
	}
	metrics.RecordTransition("delete")
	s.log.WithField("order_id", orderID).Info("order deleted")
	return nil
}

// adminMutate loads the order, applies change and saves it. Only admins get here.
func (s *Orders) adminMutate(ctx context.Context, id *auth.Identity, orderID, op string, change func(context.Context, *models.Order) error) (*models.Order, error) {
	if err := authorize(s.guard, id, auth.AdminAction(op+" order")); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	o, err := s.store.FindOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := change(ctx, o); err != nil {
		return nil, err
	}
	if err := s.store.SaveOrder(ctx, o); err != nil {
		return nil, err
	}
	metrics.RecordTransition(op)
	s.log.WithFields(logrus.Fields{"order_id": o.ID, "status": o.Status, "by": id.Username}).Infof("order %s", op)
	return o, nil
}

func (s *Orders) loadOwned(ctx context.Context, id *auth.Identity, orderID string) (*models.Order, error) {
	if id == nil {
		return nil, fmt.Errorf("no identity: %w", apperr.ErrUnauthenticated)
	}
	o, err := s.store.FindOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := authorize(s.guard, id, auth.OwnedBy(o.UserID)); err != nil {
		return nil, err
	}
	return o, nil
}

// requireBooks returns the books for ids, or NotFound naming the first missing one.
func (s *Orders) requireBooks(ctx context.Context, ids []string) ([]models.Book, error) {
	books, err := s.store.FindBooksByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(books) == len(ids) {
		return books, nil
	}
	found := make(map[string]bool, len(books))
	for _, b := range books {
		found[b.ID] = true
	}
	for _, id := range ids {
		if !found[id] {
			return nil, apperr.NotFound("book", id)
		}
	}
	return books, nil
}

func (s *Orders) notifyOwner(ctx context.Context, o *models.Order, kind, subject, body string) {
	u, err := s.store.FindUserByID(ctx, o.UserID)
	if err != nil {
		s.log.WithFields(logrus.Fields{"order_id": o.ID, "user_id": o.UserID}).WithError(err).Warn("notification skipped: owner lookup failed")
		return
	}
	s.mail.Send(ctx, kind, u.Email, subject, body, displayName(u))
}

// authorize turns a missing identity into Unauthenticated and a Deny into Forbidden.
func authorize(g auth.Guard, id *auth.Identity, r auth.Resource) error {
	if id == nil {
		return fmt.Errorf("no identity: %w", apperr.ErrUnauthenticated)
	}
	return g.Authorize(id, r).Err(r)
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func displayName(u *models.User) string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}
