package db

import (
	"context"
	"time"

	"library_lending/apperr"
	"library_lending/models"
)

func (r *Repo) FindOrderByID(ctx context.Context, id string) (*models.Order, error) {
	if !validID(id) {
		return nil, apperr.NotFound("order", id)
	}
	var o models.Order
	if err := r.DB.WithContext(ctx).First(&o, "id = ?", id).Error; err != nil {
		return nil, classify("find order", "order", id, err)
	}
	return &o, nil
}

func (r *Repo) ListOrders(ctx context.Context) ([]models.Order, error) {
	var out []models.Order
	if err := r.DB.WithContext(ctx).Order("borrowed_at DESC").Find(&out).Error; err != nil {
		return nil, apperr.Dependency("list orders", err)
	}
	return out, nil
}

func (r *Repo) ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	if !validID(userID) {
		return nil, nil
	}
	var out []models.Order
	if err := r.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("borrowed_at DESC").
		Find(&out).Error; err != nil {
		return nil, apperr.Dependency("list user orders", err)
	}
	return out, nil
}

// SaveOrder inserts or overwrites the whole row (last write wins).
func (r *Repo) SaveOrder(ctx context.Context, o *models.Order) error {
	if err := r.DB.WithContext(ctx).Save(o).Error; err != nil {
		return classify("save order", "order", o.ID, err)
	}
	return nil
}

func (r *Repo) DeleteOrder(ctx context.Context, id string) error {
	if !validID(id) {
		return apperr.NotFound("order", id)
	}
	res := r.DB.WithContext(ctx).Where("id = ?", id).Delete(&models.Order{})
	if res.Error != nil {
		return apperr.Dependency("delete order", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("order", id)
	}
	return nil
}

func (r *Repo) OrderExists(ctx context.Context, id string) (bool, error) {
	if !validID(id) {
		return false, nil
	}
	var n int64
	if err := r.DB.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", id).
		Count(&n).Error; err != nil {
		return false, apperr.Dependency("order exists", err)
	}
	return n > 0, nil
}

func (r *Repo) FindOverdueCandidates(ctx context.Context, now time.Time) ([]models.Order, error) {
	var out []models.Order
	if err := r.DB.WithContext(ctx).
		Where("status = ? AND due_date < ?", models.StatusBorrowed, now).
		Order("due_date").
		Find(&out).Error; err != nil {
		return nil, apperr.Dependency("find overdue", err)
	}
	return out, nil
}

func (r *Repo) FindDueBetween(ctx context.Context, from, to time.Time) ([]models.Order, error) {
	var out []models.Order
	if err := r.DB.WithContext(ctx).
		Where("status = ? AND due_date >= ? AND due_date < ?", models.StatusBorrowed, from, to).
		Order("due_date").
		Find(&out).Error; err != nil {
		return nil, apperr.Dependency("find due", err)
	}
	return out, nil
}

// UserHasActiveOrders reports whether userID still holds an order that is not RETURNED.
func (r *Repo) UserHasActiveOrders(ctx context.Context, userID string) (bool, error) {
	if !validID(userID) {
		return false, nil
	}
	var n int64
	if err := r.DB.WithContext(ctx).Model(&models.Order{}).
		Where("user_id = ? AND status <> ?", userID, models.StatusReturned).
		Count(&n).Error; err != nil {
		return false, apperr.Dependency("user active orders", err)
	}
	return n > 0, nil
}

// BookOnLoan reports whether bookID is part of an order that is not RETURNED.
func (r *Repo) BookOnLoan(ctx context.Context, bookID string) (bool, error) {
	var n int64
	if err := r.DB.WithContext(ctx).Model(&models.Order{}).
		Where("status <> ? AND ? = ANY(book_ids)", models.StatusReturned, bookID).
		Count(&n).Error; err != nil {
		return false, apperr.Dependency("book on loan", err)
	}
	return n > 0, nil
}
