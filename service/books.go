package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"library_lending/apperr"
	"library_lending/auth"
	"library_lending/db"
	"library_lending/models"
)

// Catalog is the book store plus the loan check deletion needs.
type Catalog interface {
	db.BookStore
	BookOnLoan(ctx context.Context, bookID string) (bool, error)
}

// Books is the small slice of the catalogue that lending needs: browse, look up, maintain.
type Books struct {
	store   Catalog
	guard   auth.Guard
	log     logrus.FieldLogger
	timeout time.Duration
}

func NewBooks(store Catalog, guard auth.Guard, log logrus.FieldLogger, storeTimeout time.Duration) *Books {
	if storeTimeout <= 0 {
		storeTimeout = DefaultStoreTimeout
	}
	return &Books{store: store, guard: guard, log: log, timeout: storeTimeout}
}

func (s *Books) List(ctx context.Context) ([]models.Book, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.ListBooks(ctx)
}

func (s *Books) Get(ctx context.Context, bookID string) (*models.Book, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.FindBookByID(ctx, bookID)
}

type NewBook struct {
	Title       string
	Author      string
	Description string
	ImageURL    string
}

func (in *NewBook) normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	in.ImageURL = strings.TrimSpace(in.ImageURL)
	if in.Title == "" || in.Author == "" {
		return apperr.Invalid("title and author are required")
	}
	return nil
}

func (s *Books) Create(ctx context.Context, id *auth.Identity, in NewBook) (*models.Book, error) {
	if err := authorize(s.guard, id, auth.AdminAction("create book")); err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	b := &models.Book{
		ID:          uuid.NewString(),
		Title:       in.Title,
		Author:      in.Author,
		Description: in.Description,
		ImageURL:    in.ImageURL,
	}
	if err := s.store.CreateBook(ctx, b); err != nil {
		return nil, err
	}
	s.log.WithField("book_id", b.ID).Info("book created")
	return b, nil
}

// Update replaces the editable fields of a book.
func (s *Books) Update(ctx context.Context, id *auth.Identity, bookID string, in NewBook) (*models.Book, error) {
	if err := authorize(s.guard, id, auth.AdminAction("update book")); err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	b := &models.Book{ID: bookID, Title: in.Title, Author: in.Author, Description: in.Description, ImageURL: in.ImageURL}
	if err := s.store.UpdateBook(ctx, b); err != nil {
		return nil, err
	}
	s.log.WithField("book_id", bookID).Info("book updated")
	return s.store.FindBookByID(ctx, bookID)
}

// Delete removes a book that no open order references.
func (s *Books) Delete(ctx context.Context, id *auth.Identity, bookID string) error {
	if err := authorize(s.guard, id, auth.AdminAction("delete book")); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.store.FindBookByID(ctx, bookID); err != nil {
		return err
	}
	onLoan, err := s.store.BookOnLoan(ctx, bookID)
	if err != nil {
		return err
	}
	if onLoan {
		return apperr.Conflict("book is part of an order that is not returned")
	}
	if err := s.store.DeleteBook(ctx, bookID); err != nil {
		return err
	}
	s.log.WithField("book_id", bookID).Info("book deleted")
	return nil
}
