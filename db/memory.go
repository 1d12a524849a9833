package db

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"library_lending/apperr"
	"library_lending/models"
)

// MemoryStore keeps everything in process. Used with STORE=memory and in tests.
// Records are copied on the way in and out.
type MemoryStore struct {
	mu     sync.RWMutex
	orders map[string]*models.Order
	users  map[string]*models.User
	books  map[string]*models.Book
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders: map[string]*models.Order{},
		users:  map[string]*models.User{},
		books:  map[string]*models.Book{},
		now:    time.Now,
	}
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

// Orders

func (m *MemoryStore) FindOrderByID(_ context.Context, id string) (*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, apperr.NotFound("order", id)
	}
	return o.Clone(), nil
}

func (m *MemoryStore) ListOrders(context.Context) ([]models.Order, error) {
	return m.filterOrders(func(*models.Order) bool { return true }, byBorrowedDesc), nil
}

func (m *MemoryStore) ListOrdersByUser(_ context.Context, userID string) ([]models.Order, error) {
	return m.filterOrders(func(o *models.Order) bool { return o.UserID == userID }, byBorrowedDesc), nil
}

func (m *MemoryStore) SaveOrder(_ context.Context, o *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if prev, ok := m.orders[o.ID]; ok {
		o.CreatedAt = prev.CreatedAt
	} else if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	m.orders[o.ID] = o.Clone()
	return nil
}

func (m *MemoryStore) DeleteOrder(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[id]; !ok {
		return apperr.NotFound("order", id)
	}
	delete(m.orders, id)
	return nil
}

func (m *MemoryStore) OrderExists(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.orders[id]
	return ok, nil
}

func (m *MemoryStore) FindOverdueCandidates(_ context.Context, now time.Time) ([]models.Order, error) {
	return m.filterOrders(func(o *models.Order) bool {
		return o.Status == models.StatusBorrowed && o.DueDate.Before(now)
	}, byDueDate), nil
}

func (m *MemoryStore) FindDueBetween(_ context.Context, from, to time.Time) ([]models.Order, error) {
	return m.filterOrders(func(o *models.Order) bool {
		return o.Status == models.StatusBorrowed && !o.DueDate.Before(from) && o.DueDate.Before(to)
	}, byDueDate), nil
}

func (m *MemoryStore) UserHasActiveOrders(_ context.Context, userID string) (bool, error) {
	return m.anyOrder(func(o *models.Order) bool {
		return o.UserID == userID && o.Status != models.StatusReturned
	}), nil
}

func (m *MemoryStore) BookOnLoan(_ context.Context, bookID string) (bool, error) {
	return m.anyOrder(func(o *models.Order) bool {
		return o.Status != models.StatusReturned && slices.Contains(o.BookIDs, bookID)
	}), nil
}

func (m *MemoryStore) anyOrder(match func(*models.Order) bool) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.orders {
		if match(o) {
			return true
		}
	}
	return false
}

func byBorrowedDesc(a, b *models.Order) bool {
	if a.BorrowedAt.Equal(b.BorrowedAt) {
		return a.ID < b.ID
	}
	return a.BorrowedAt.After(b.BorrowedAt)
}

func byDueDate(a, b *models.Order) bool {
	if a.DueDate.Equal(b.DueDate) {
		return a.ID < b.ID
	}
	return a.DueDate.Before(b.DueDate)
}

func (m *MemoryStore) filterOrders(keep func(*models.Order) bool, less func(a, b *models.Order) bool) []models.Order {
	m.mu.RLock()
	picked := make([]*models.Order, 0, len(m.orders))
	for _, o := range m.orders {
		if keep(o) {
			picked = append(picked, o.Clone())
		}
	}
	m.mu.RUnlock()

	sort.Slice(picked, func(i, j int) bool { return less(picked[i], picked[j]) })
	out := make([]models.Order, len(picked))
	for i, o := range picked {
		out[i] = *o
	}
	return out
}

// Users

func (m *MemoryStore) FindUserByID(_ context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperr.NotFound("user", id)
	}
	return cloneUser(u), nil
}

func (m *MemoryStore) FindUserByUsername(_ context.Context, username string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Username == username {
			return cloneUser(u), nil
		}
	}
	return nil, apperr.NotFound("user", username)
}

func (m *MemoryStore) UsernameExists(_ context.Context, username string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.usernameTaken(username), nil
}

func (m *MemoryStore) EmailExists(_ context.Context, email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.emailTaken(email), nil
}

func (m *MemoryStore) usernameTaken(username string) bool {
	for _, u := range m.users {
		if u.Username == username {
			return true
		}
	}
	return false
}

func (m *MemoryStore) emailTaken(email string) bool {
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return true
		}
	}
	return false
}

func (m *MemoryStore) CreateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; ok {
		return apperr.Conflict("create user: user already exists")
	}
	if m.usernameTaken(u.Username) {
		return apperr.Conflict("create user: username already taken")
	}
	if m.emailTaken(u.Email) {
		return apperr.Conflict("create user: email already in use")
	}
	now := m.now()
	u.CreatedAt, u.UpdatedAt = now, now
	m.users[u.ID] = cloneUser(u)
	return nil
}

func (m *MemoryStore) ListUsers(_ context.Context, q string, offset, limit int) ([]models.User, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q = strings.ToLower(strings.TrimSpace(q))
	var all []models.User
	for _, u := range m.users {
		if q != "" && !strings.Contains(strings.ToLower(u.Username), q) &&
			!strings.Contains(strings.ToLower(u.Name), q) &&
			!strings.Contains(strings.ToLower(u.Email), q) {
			continue
		}
		all = append(all, *cloneUser(u))
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].Username < all[j].Username
	})
	total := int64(len(all))
	if offset >= len(all) {
		return []models.User{}, total, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}

func (m *MemoryStore) DeleteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return apperr.NotFound("user", id)
	}
	delete(m.users, id)
	return nil
}

func (m *MemoryStore) CountUsers(context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.users)), nil
}

func cloneUser(u *models.User) *models.User {
	c := *u
	c.Roles = append(c.Roles[:0:0], u.Roles...)
	return &c
}

// Books

func (m *MemoryStore) CreateBook(_ context.Context, b *models.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.books[b.ID]; ok {
		return apperr.Conflict("create book: book already exists")
	}
	now := m.now()
	b.CreatedAt, b.UpdatedAt = now, now
	c := *b
	m.books[b.ID] = &c
	return nil
}

func (m *MemoryStore) FindBookByID(_ context.Context, id string) (*models.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[id]
	if !ok {
		return nil, apperr.NotFound("book", id)
	}
	c := *b
	return &c, nil
}

func (m *MemoryStore) UpdateBook(_ context.Context, b *models.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.books[b.ID]
	if !ok {
		return apperr.NotFound("book", b.ID)
	}
	c := *cur
	c.Title, c.Author, c.Description, c.ImageURL = b.Title, b.Author, b.Description, b.ImageURL
	c.UpdatedAt = m.now()
	m.books[b.ID] = &c
	return nil
}

func (m *MemoryStore) DeleteBook(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.books[id]; !ok {
		return apperr.NotFound("book", id)
	}
	delete(m.books, id)
	return nil
}

func (m *MemoryStore) FindBooksByIDs(_ context.Context, ids []string) ([]models.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Book
	seen := map[string]bool{}
	for _, id := range ids {
		if b, ok := m.books[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *MemoryStore) ListBooks(context.Context) ([]models.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Book, 0, len(m.books))
	for _, b := range m.books {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}
