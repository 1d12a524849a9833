// models/order.go
package models

import (
	"time"

	"github.com/lib/pq"
)

const OrderTable = "lending_orders"

type OrderStatus string

const (
	StatusBorrowed OrderStatus = "BORROWED"
	StatusOverdue  OrderStatus = "OVERDUE"
	StatusReturned OrderStatus = "RETURNED"
)

// Order 一次借阅：一个用户、一本或多本书
// Users and books are referenced by ID only; look them up through the stores.
type Order struct {
	ID         string         `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     string         `gorm:"type:uuid;index;not null" json:"userId"`
	BookIDs    pq.StringArray `gorm:"type:text[];not null" json:"bookIds"`
	Status     OrderStatus    `gorm:"size:20;index;not null" json:"status"`
	BorrowedAt time.Time      `gorm:"not null" json:"borrowedAt"`
	DueDate    time.Time      `gorm:"index;not null" json:"dueDate"`
	ReturnedAt *time.Time     `json:"returnedAt,omitempty"`
	PickedUp   bool           `gorm:"not null;default:false" json:"pickedUp"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Order) TableName() string { return OrderTable }

// HasBook reports whether bookID is part of the order.
func (o *Order) HasBook(bookID string) bool {
	for _, id := range o.BookIDs {
		if id == bookID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy; stores hand out clones so callers never share a record.
func (o *Order) Clone() *Order {
	c := *o
	c.BookIDs = append(pq.StringArray(nil), o.BookIDs...)
	if o.ReturnedAt != nil {
		t := *o.ReturnedAt
		c.ReturnedAt = &t
	}
	return &c
}
