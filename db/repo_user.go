package db

import (
	"context"
	"strings"

	"library_lending/apperr"
	"library_lending/models"
)

// 按 ID 查
func (r *Repo) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	if !validID(id) {
		return nil, apperr.NotFound("user", id)
	}
	var u models.User
	if err := r.DB.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, classify("find user", "user", id, err)
	}
	return &u, nil
}

func (r *Repo) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := r.DB.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, classify("find user", "user", username, err)
	}
	return &u, nil
}

func (r *Repo) UsernameExists(ctx context.Context, username string) (bool, error) {
	return r.userExists(ctx, "username = ?", username)
}

func (r *Repo) EmailExists(ctx context.Context, email string) (bool, error) {
	return r.userExists(ctx, "LOWER(email) = LOWER(?)", email)
}

func (r *Repo) userExists(ctx context.Context, where string, arg string) (bool, error) {
	var n int64
	if err := r.DB.WithContext(ctx).Model(&models.User{}).Where(where, arg).Count(&n).Error; err != nil {
		return false, apperr.Dependency("user exists", err)
	}
	return n > 0, nil
}

// CreateUser relies on the unique indexes as the last word on duplicates.
func (r *Repo) CreateUser(ctx context.Context, u *models.User) error {
	return classify("create user", "user", u.Username, r.DB.WithContext(ctx).Create(u).Error)
}

// ListUsers 支持按 username / name / email 模糊搜索 + 分页
func (r *Repo) ListUsers(ctx context.Context, q string, offset, limit int) ([]models.User, int64, error) {
	tx := r.DB.WithContext(ctx).Model(&models.User{})
	if q = strings.TrimSpace(q); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		tx = tx.Where("LOWER(username) LIKE ? OR LOWER(name) LIKE ? OR LOWER(email) LIKE ?", like, like, like)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, apperr.Dependency("count users", err)
	}

	var users []models.User
	if err := tx.Order("created_at DESC").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return nil, 0, apperr.Dependency("list users", err)
	}
	return users, total, nil
}

func (r *Repo) DeleteUser(ctx context.Context, id string) error {
	if !validID(id) {
		return apperr.NotFound("user", id)
	}
	res := r.DB.WithContext(ctx).Where("id = ?", id).Delete(&models.User{})
	if res.Error != nil {
		return apperr.Dependency("delete user", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("user", id)
	}
	return nil
}

func (r *Repo) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := r.DB.WithContext(ctx).Model(&models.User{}).Count(&n).Error; err != nil {
		return 0, apperr.Dependency("count users", err)
	}
	return n, nil
}
