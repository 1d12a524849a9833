package db

import (
	"context"
	"time"

	"library_lending/models"
)

// OrderStore persists orders. Lookups that miss return apperr.ErrNotFound, and so do IDs
// that are not well-formed; I/O failures come back wrapped in apperr.ErrDependency.
type OrderStore interface {
	FindOrderByID(ctx context.Context, id string) (*models.Order, error)
	ListOrders(ctx context.Context) ([]models.Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error)
	SaveOrder(ctx context.Context, o *models.Order) error
	DeleteOrder(ctx context.Context, id string) error
	OrderExists(ctx context.Context, id string) (bool, error)

	// FindOverdueCandidates returns BORROWED orders with due_date < now.
	FindOverdueCandidates(ctx context.Context, now time.Time) ([]models.Order, error)
	// FindDueBetween returns BORROWED orders with from <= due_date < to.
	FindDueBetween(ctx context.Context, from, to time.Time) ([]models.Order, error)

	// Active means any status other than RETURNED.
	UserHasActiveOrders(ctx context.Context, userID string) (bool, error)
	BookOnLoan(ctx context.Context, bookID string) (bool, error)
}

type UserStore interface {
	FindUserByID(ctx context.Context, id string) (*models.User, error)
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	CreateUser(ctx context.Context, u *models.User) error
	// ListUsers matches q against username, name and email (case-insensitive), newest first.
	ListUsers(ctx context.Context, q string, offset, limit int) ([]models.User, int64, error)
	CountUsers(ctx context.Context) (int64, error)
	DeleteUser(ctx context.Context, id string) error
}

type BookStore interface {
	FindBookByID(ctx context.Context, id string) (*models.Book, error)
	// FindBooksByIDs returns the books that exist; missing IDs are simply absent.
	FindBooksByIDs(ctx context.Context, ids []string) ([]models.Book, error)
	ListBooks(ctx context.Context) ([]models.Book, error)
	CreateBook(ctx context.Context, b *models.Book) error
	UpdateBook(ctx context.Context, b *models.Book) error
	DeleteBook(ctx context.Context, id string) error
}

// Store is everything the services need; both Repo and MemoryStore satisfy it.
type Store interface {
	OrderStore
	UserStore
	BookStore
	Ping(ctx context.Context) error
}

var (
	_ Store = (*Repo)(nil)
	_ Store = (*MemoryStore)(nil)
)
