package models

import (
	"time"

	"github.com/lib/pq"
)

const UserTable = "lending_users"

// Role 闭合枚举，字符串本身就是稳定标识
type Role string

const (
	RoleUser  Role = "ROLE_USER"
	RoleAdmin Role = "ROLE_ADMIN"
)

// User owns zero or more orders; the orders are found by user_id, never embedded.
type User struct {
	ID           string         `gorm:"primaryKey;type:uuid" json:"id"`
	Username     string         `gorm:"uniqueIndex;size:20;not null" json:"username"`
	Name         string         `gorm:"size:255;not null" json:"name"`
	Email        string         `gorm:"uniqueIndex;size:50;not null" json:"email"`
	PasswordHash string         `gorm:"size:120;not null" json:"-"`
	Roles        pq.StringArray `gorm:"type:text[];not null" json:"roles"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (User) TableName() string {
	return UserTable
}

func (u *User) HasRole(r Role) bool {
	for _, have := range u.Roles {
		if have == string(r) {
			return true
		}
	}
	return false
}
