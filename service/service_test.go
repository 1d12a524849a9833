package service

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library_lending/apperr"
	"library_lending/auth"
	"library_lending/db"
	"library_lending/lending"
	"library_lending/models"
	"library_lending/notify"
)

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

type sentMail struct {
	To      string
	Subject string
	Body    string
}

type recorder struct {
	mu   sync.Mutex
	sent []sentMail
	fail bool
}

func (r *recorder) Notify(_ context.Context, to, subject, body, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("smtp unavailable")
	}
	r.sent = append(r.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (r *recorder) NotifyOrderConfirmation(ctx context.Context, to, name string, o *models.Order, _ []models.Book) error {
	return r.Notify(ctx, to, notify.SubjectConfirmation, o.ID, name)
}

func (r *recorder) subjects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.sent {
		out = append(out, m.Subject)
	}
	return out
}

// flakyStore fails SaveOrder with failSave while it is set.
type flakyStore struct {
	*db.MemoryStore
	failSave error
}

func (s *flakyStore) SaveOrder(ctx context.Context, o *models.Order) error {
	if s.failSave != nil {
		return s.failSave
	}
	return s.MemoryStore.SaveOrder(ctx, o)
}

type fixture struct {
	store    *db.MemoryStore
	flaky    *flakyStore
	mail     *recorder
	orders   *Orders
	accounts *Accounts
	books    *Books
	now      time.Time

	alice, bob, admin *auth.Identity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	log, _ := test.NewNullLogger()

	f := &fixture{store: db.NewMemoryStore(), mail: &recorder{}, now: t0}
	f.flaky = &flakyStore{MemoryStore: f.store}
	dispatcher := notify.NewDispatcher(f.mail, time.Second, log)

	f.orders = NewOrders(f.flaky, dispatcher, auth.Guard{}, lending.DefaultPolicy(), log, time.Second)
	f.orders.now = func() time.Time { return f.now }

	tokens, err := auth.NewTokenService(base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef")), time.Hour)
	require.NoError(t, err)
	f.accounts = NewAccounts(f.store, tokens, dispatcher, log, time.Second)
	f.books = NewBooks(f.store, auth.Guard{}, log, time.Second)

	for _, u := range []*models.User{
		{ID: "u-alice", Username: "alice", Name: "Alice", Email: "alice@example.com", Roles: []string{"ROLE_USER"}},
		{ID: "u-bob", Username: "bob", Name: "Bob", Email: "bob@example.com", Roles: []string{"ROLE_USER"}},
		{ID: "u-admin", Username: "admin", Name: "Librarian", Email: "admin@example.com", Roles: []string{"ROLE_USER", "ROLE_ADMIN"}},
	} {
		require.NoError(t, f.store.CreateUser(ctx, u))
	}
	for _, b := range []*models.Book{
		{ID: "b1", Title: "Dune", Author: "Herbert"},
		{ID: "b2", Title: "Emma", Author: "Austen"},
		{ID: "b3", Title: "Ulysses", Author: "Joyce"},
	} {
		require.NoError(t, f.store.CreateBook(ctx, b))
	}

	f.alice = &auth.Identity{UserID: "u-alice", Username: "alice", Roles: []models.Role{models.RoleUser}}
	f.bob = &auth.Identity{UserID: "u-bob", Username: "bob", Roles: []models.Role{models.RoleUser}}
	f.admin = &auth.Identity{UserID: "u-admin", Username: "admin", Roles: []models.Role{models.RoleUser, models.RoleAdmin}}
	return f
}

func (f *fixture) aliceOrder(t *testing.T, books ...string) *models.Order {
	t.Helper()
	if len(books) == 0 {
		books = []string{"b1", "b2"}
	}
	o, err := f.orders.CreateOrder(context.Background(), f.alice, "u-alice", books)
	require.NoError(t, err)
	return o
}

func TestCreateOrder(t *testing.T) {
	f := newFixture(t)
	o := f.aliceOrder(t)

	assert.Equal(t, models.StatusBorrowed, o.Status)
	assert.Equal(t, t0, o.BorrowedAt)
	assert.Equal(t, t0.Add(7*24*time.Hour), o.DueDate)
	assert.False(t, o.PickedUp)
	assert.Equal(t, []string{notify.SubjectConfirmation}, f.mail.subjects())

	stored, err := f.store.FindOrderByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.DueDate, stored.DueDate)
}

func TestCreateOrderErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		id     *auth.Identity
		userID string
		books  []string
		want   error
	}{
		{"anonymous", nil, "u-alice", []string{"b1"}, apperr.ErrUnauthenticated},
		{"for someone else", f.bob, "u-alice", []string{"b1"}, apperr.ErrForbidden},
		{"no books", f.alice, "u-alice", nil, apperr.ErrInvalid},
		{"blank books", f.alice, "u-alice", []string{""}, apperr.ErrInvalid},
		{"unknown book", f.alice, "u-alice", []string{"b1", "nope"}, apperr.ErrNotFound},
		{"unknown user", f.admin, "u-ghost", []string{"b1"}, apperr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.orders.CreateOrder(ctx, tt.id, tt.userID, tt.books)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	all, err := f.store.ListOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, all, "failed creates persist nothing")
}

func TestAdminCreatesForUser(t *testing.T) {
	f := newFixture(t)
	o, err := f.orders.CreateOrder(context.Background(), f.admin, "u-bob", []string{"b3", "b3"})
	require.NoError(t, err)
	assert.Equal(t, "u-bob", o.UserID)
	assert.Equal(t, []string{"b3"}, []string(o.BookIDs))
}

func TestGetOrderAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.aliceOrder(t)

	got, err := f.orders.GetOrder(ctx, f.alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)

	_, err = f.orders.GetOrder(ctx, f.admin, o.ID)
	assert.NoError(t, err)

	_, err = f.orders.GetOrder(ctx, f.bob, o.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.orders.GetOrder(ctx, f.bob, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound, "not found is reported before ownership")

	_, err = f.orders.GetOrder(ctx, nil, o.ID)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	owner, err := f.orders.GetOrderOwner(ctx, f.alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", owner.Username)
}

func TestListOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.aliceOrder(t)
	_, err := f.orders.CreateOrder(ctx, f.bob, "u-bob", []string{"b3"})
	require.NoError(t, err)

	_, err = f.orders.ListAllOrders(ctx, nil)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
	_, err = f.orders.ListAllOrders(ctx, f.alice)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	all, err := f.orders.ListAllOrders(ctx, f.admin)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := f.orders.ListOrdersForUser(ctx, f.alice, "u-alice")
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	_, err = f.orders.ListOrdersForUser(ctx, f.bob, "u-alice")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.orders.ListOrdersForUser(ctx, f.admin, "u-ghost")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRenewOrderScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.aliceOrder(t)

	f.now = t0.Add(24 * time.Hour)
	_, err := f.orders.RenewOrder(ctx, f.alice, o.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict, "too early to renew")

	f.now = t0.Add(6 * 24 * time.Hour)
	renewed, err := f.orders.RenewOrder(ctx, f.alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(12*24*time.Hour), renewed.DueDate)
	assert.Contains(t, f.mail.subjects(), notify.SubjectRenewal)

	_, err = f.orders.RenewOrder(ctx, f.bob, o.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestSaveFailureSendsNoMail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.flaky.failSave = apperr.Dependency("save order", errors.New("connection reset"))

	_, err := f.orders.CreateOrder(ctx, f.alice, "u-alice", []string{"b1"})
	assert.ErrorIs(t, err, apperr.ErrDependency)
	assert.Empty(t, f.mail.subjects())

	f.flaky.failSave = nil
	o := f.aliceOrder(t)
	f.mail.sent = nil

	f.flaky.failSave = apperr.Dependency("save order", errors.New("connection reset"))
	f.now = t0.Add(6 * 24 * time.Hour)
	_, err = f.orders.RenewOrder(ctx, f.alice, o.ID)
	assert.ErrorIs(t, err, apperr.ErrDependency)
	assert.Empty(t, f.mail.subjects(), "no renewal mail for an unsaved renewal")

	stored, err := f.store.FindOrderByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.DueDate, stored.DueDate)
}

func TestRenewReturnedOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.aliceOrder(t)
	_, err := f.orders.ReturnOrder(ctx, f.admin, o.ID)
	require.NoError(t, err)

	f.now = t0.Add(6 * 24 * time.Hour)
	_, err = f.orders.RenewOrder(ctx, f.alice, o.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestRenewBooks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.aliceOrder(t, "b1", "b2")
	f.now = t0.Add(6 * 24 * time.Hour)

	_, err := f.orders.RenewBooks(ctx, f.alice, o.ID, []string{"b3"})
	assert.ErrorIs(t, err, apperr.ErrInvalid, "b3 is not in the order")

	n, err := f.orders.RenewBooks(ctx, f.alice, o.ID, []string{"b2"})
	require.NoError(t, err)
	assert.NotEqual(t, o.ID, n.ID)
	assert.Equal(t, []string{"b2"}, []string(n.BookIDs))
	assert.Equal(t, f.now.Add(5*24*time.Hour), n.DueDate)

	orig, err := f.store.FindOrderByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.DueDate, orig.DueDate)
	assert.Equal(t, []string{"b1", "b2"}, []string(orig.BookIDs))

	mine, err := f.store.ListOrdersByUser(ctx, "u-alice")
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}

func TestReturnOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.aliceOrder(t)

	_, err := f.orders.ReturnOrder(ctx, f.alice, o.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	f.now = t0.Add(3 * 24 * time.Hour)
	r, err := f.orders.ReturnOrder(ctx, f.admin, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReturned, r.Status)
	require.NotNil(t, r.ReturnedAt)
	assert.Equal(t, f.now, *r.ReturnedAt)

	_, err = f.orders.ReturnOrder(ctx, f.admin, o.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = f.orders.ReturnOrder(ctx, f.admin, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestPickupAndManualOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.aliceOrder(t)

	p, err := f.orders.PickupOrder(ctx, f.admin, o.ID)
	require.NoError(t, err)
	assert.True(t, p.PickedUp)

	od, err := f.orders.MarkOrderOverdue(ctx, f.admin, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOverdue, od.Status)
	assert.Contains(t, f.mail.subjects(), notify.SubjectOverdue)

	_, err = f.orders.MarkOrderOverdue(ctx, f.admin, o.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestUpdateOrderRederivesOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.aliceOrder(t)
	f.now = t0.Add(2 * 24 * time.Hour)

	past := t0.Add(24 * time.Hour)
	u, err := f.orders.UpdateOrder(ctx, f.admin, o.ID, OrderPatch{DueDate: &past})
	require.NoError(t, err)
	assert.Equal(t, models.StatusOverdue, u.Status)

	future := t0.Add(10 * 24 * time.Hour)
	picked := true
	bob := "u-bob"
	u, err = f.orders.UpdateOrder(ctx, f.admin, o.ID, OrderPatch{DueDate: &future, PickedUp: &picked, UserID: &bob, BookIDs: []string{"b3"}})
	require.NoError(t, err)
	assert.Equal(t, models.StatusBorrowed, u.Status)
	assert.True(t, u.PickedUp)
	assert.Equal(t, "u-bob", u.UserID)
	assert.Equal(t, []string{"b3"}, []string(u.BookIDs))

	before := t0.Add(-time.Hour)
	_, err = f.orders.UpdateOrder(ctx, f.admin, o.ID, OrderPatch{DueDate: &before})
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	ghost := "u-ghost"
	_, err = f.orders.UpdateOrder(ctx, f.admin, o.ID, OrderPatch{UserID: &ghost})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.orders.UpdateOrder(ctx, f.alice, o.ID, OrderPatch{PickedUp: &picked})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestDeleteOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.aliceOrder(t)

	assert.ErrorIs(t, f.orders.DeleteOrder(ctx, f.alice, o.ID), apperr.ErrForbidden)
	assert.ErrorIs(t, f.orders.DeleteOrder(ctx, f.admin, "missing"), apperr.ErrNotFound)
	require.NoError(t, f.orders.DeleteOrder(ctx, f.admin, o.ID))

	_, err := f.orders.GetOrder(ctx, f.admin, o.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestNotificationFailureDoesNotFailRequest(t *testing.T) {
	f := newFixture(t)
	f.mail.fail = true

	o, err := f.orders.CreateOrder(context.Background(), f.alice, "u-alice", []string{"b1"})
	require.NoError(t, err)
	_, err = f.store.FindOrderByID(context.Background(), o.ID)
	assert.NoError(t, err, "order is persisted even though the mail failed")
}

func TestReturnedIffReturnedAtAcrossOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.aliceOrder(t)

	check := func() {
		got, err := f.store.FindOrderByID(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, got.Status == models.StatusReturned, got.ReturnedAt != nil)
	}
	check()
	_, err := f.orders.MarkOrderOverdue(ctx, f.admin, o.ID)
	require.NoError(t, err)
	check()
	_, err = f.orders.ReturnOrder(ctx, f.admin, o.ID)
	require.NoError(t, err)
	check()
}

func TestBooks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.books.Create(ctx, f.alice, NewBook{Title: "Middlemarch", Author: "Eliot"})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.books.Create(ctx, f.admin, NewBook{Title: " "})
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	b, err := f.books.Create(ctx, f.admin, NewBook{Title: "Middlemarch", Author: "Eliot", ImageURL: "https://img.example.com/m.jpg"})
	require.NoError(t, err)

	got, err := f.books.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "Middlemarch", got.Title)

	all, err := f.books.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestUpdateAndDeleteBook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.books.Update(ctx, f.alice, "b3", NewBook{Title: "Ulysses", Author: "Joyce"})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.books.Update(ctx, f.admin, "b3", NewBook{Title: "", Author: "Joyce"})
	assert.ErrorIs(t, err, apperr.ErrInvalid)
	_, err = f.books.Update(ctx, f.admin, "nope", NewBook{Title: "X", Author: "Y"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	b, err := f.books.Update(ctx, f.admin, "b3", NewBook{Title: " Ulysses (annotated) ", Author: "Joyce"})
	require.NoError(t, err)
	assert.Equal(t, "Ulysses (annotated)", b.Title)

	f.aliceOrder(t, "b1")
	assert.ErrorIs(t, f.books.Delete(ctx, f.admin, "b1"), apperr.ErrConflict, "on loan")
	assert.ErrorIs(t, f.books.Delete(ctx, f.alice, "b3"), apperr.ErrForbidden)
	require.NoError(t, f.books.Delete(ctx, f.admin, "b3"))
	assert.ErrorIs(t, f.books.Delete(ctx, f.admin, "b3"), apperr.ErrNotFound)
}

func TestDeleteUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.accounts.DeleteUser(ctx, f.alice, "u-bob"), apperr.ErrForbidden)
	assert.ErrorIs(t, f.accounts.DeleteUser(ctx, f.admin, "u-admin"), apperr.ErrInvalid)
	assert.ErrorIs(t, f.accounts.DeleteUser(ctx, f.admin, "nope"), apperr.ErrNotFound)

	o := f.aliceOrder(t)
	assert.ErrorIs(t, f.accounts.DeleteUser(ctx, f.admin, "u-alice"), apperr.ErrConflict)
	_, err := f.orders.ReturnOrder(ctx, f.admin, o.ID)
	require.NoError(t, err)
	require.NoError(t, f.accounts.DeleteUser(ctx, f.admin, "u-alice"))

	_, err = f.accounts.GetUser(ctx, f.admin, "u-alice")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	u, err := f.accounts.GetUser(ctx, f.admin, "u-bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", u.Username)
	_, err = f.accounts.GetUser(ctx, f.bob, "u-bob")
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestDeleteAdminRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.CreateUser(ctx, &models.User{ID: "u-root", Username: "root", Email: "root@example.com", Roles: []string{"ROLE_USER", "ROLE_ADMIN"}}))

	assert.ErrorIs(t, f.accounts.DeleteUser(ctx, f.admin, "u-root"), apperr.ErrForbidden)
}
