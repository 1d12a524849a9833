package db

import (
	"context"

	"library_lending/apperr"
	"library_lending/models"
)

// Books
func (r *Repo) CreateBook(ctx context.Context, b *models.Book) error {
	return classify("create book", "book", b.ID, r.DB.WithContext(ctx).Create(b).Error)
}

func (r *Repo) FindBookByID(ctx context.Context, id string) (*models.Book, error) {
	if !validID(id) {
		return nil, apperr.NotFound("book", id)
	}
	var b models.Book
	if err := r.DB.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, classify("find book", "book", id, err)
	}
	return &b, nil
}

func (r *Repo) FindBooksByIDs(ctx context.Context, ids []string) ([]models.Book, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if validID(id) {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return nil, nil
	}
	var books []models.Book
	if err := r.DB.WithContext(ctx).Where("id IN ?", valid).Find(&books).Error; err != nil {
		return nil, apperr.Dependency("find books", err)
	}
	return books, nil
}

func (r *Repo) ListBooks(ctx context.Context) ([]models.Book, error) {
	var books []models.Book
	err := r.DB.WithContext(ctx).Order("title").Find(&books).Error
	if err != nil {
		return nil, apperr.Dependency("list books", err)
	}
	return books, nil
}

// UpdateBook overwrites the editable columns of an existing book.
func (r *Repo) UpdateBook(ctx context.Context, b *models.Book) error {
	if !validID(b.ID) {
		return apperr.NotFound("book", b.ID)
	}
	res := r.DB.WithContext(ctx).Model(&models.Book{}).Where("id = ?", b.ID).Updates(map[string]any{
		"title":       b.Title,
		"author":      b.Author,
		"description": b.Description,
		"image_url":   b.ImageURL,
	})
	if res.Error != nil {
		return classify("update book", "book", b.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("book", b.ID)
	}
	return nil
}

func (r *Repo) DeleteBook(ctx context.Context, id string) error {
	if !validID(id) {
		return apperr.NotFound("book", id)
	}
	res := r.DB.WithContext(ctx).Where("id = ?", id).Delete(&models.Book{})
	if res.Error != nil {
		return apperr.Dependency("delete book", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("book", id)
	}
	return nil
}
