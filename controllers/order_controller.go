// controllers/order_controller.go
package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"library_lending/app"
	"library_lending/models"
	"library_lending/service"
)

type OrderController struct{ *Srv }

func NewOrderController(s *Srv) *OrderController { return &OrderController{Srv: s} }

// POST /order  借书；userId 不填就是自己
func (oc *OrderController) CreateOrder(c *gin.Context) {
	var in struct {
		UserID  string   `json:"userId"`
		BookIDs []string `json:"bookIds"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	id := app.IdentityFrom(c)
	if in.UserID == "" && id != nil {
		in.UserID = id.UserID
	}
	o, err := oc.Orders.CreateOrder(c.Request.Context(), id, in.UserID, in.BookIDs)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

// GET /orders  管理员看全部
func (oc *OrderController) ListOrders(c *gin.Context) {
	list, err := oc.Orders.ListAllOrders(c.Request.Context(), app.IdentityFrom(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"orders": orEmpty(list)})
}

// GET /user/:userId/orders
func (oc *OrderController) ListUserOrders(c *gin.Context) {
	list, err := oc.Orders.ListOrdersForUser(c.Request.Context(), app.IdentityFrom(c), c.Param("userId"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"orders": orEmpty(list)})
}

// GET /order/:id
func (oc *OrderController) GetOrder(c *gin.Context) {
	oc.respond(c, http.StatusOK)(oc.Orders.GetOrder(c.Request.Context(), app.IdentityFrom(c), c.Param("id")))
}

// GET /order/:id/user  订单的借阅人
func (oc *OrderController) GetOrderOwner(c *gin.Context) {
	u, err := oc.Orders.GetOrderOwner(c.Request.Context(), app.IdentityFrom(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// PUT /order/:id  管理员改单
func (oc *OrderController) UpdateOrder(c *gin.Context) {
	var in struct {
		UserID   *string    `json:"userId"`
		BookIDs  []string   `json:"bookIds"`
		DueDate  *time.Time `json:"dueDate"`
		PickedUp *bool      `json:"pickedUp"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	patch := service.OrderPatch{UserID: in.UserID, BookIDs: in.BookIDs, DueDate: in.DueDate, PickedUp: in.PickedUp}
	oc.respond(c, http.StatusOK)(oc.Orders.UpdateOrder(c.Request.Context(), app.IdentityFrom(c), c.Param("id"), patch))
}

// PUT /order/:id/renew
func (oc *OrderController) RenewOrder(c *gin.Context) {
	oc.respond(c, http.StatusOK)(oc.Orders.RenewOrder(c.Request.Context(), app.IdentityFrom(c), c.Param("id")))
}

// POST /order/:id/renew-books  只续其中几本，生成新订单
func (oc *OrderController) RenewBooks(c *gin.Context) {
	var in struct {
		BookIDs []string `json:"bookIds" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	oc.respond(c, http.StatusCreated)(oc.Orders.RenewBooks(c.Request.Context(), app.IdentityFrom(c), c.Param("id"), in.BookIDs))
}

// PUT /order/:id/return
func (oc *OrderController) ReturnOrder(c *gin.Context) {
	oc.respond(c, http.StatusOK)(oc.Orders.ReturnOrder(c.Request.Context(), app.IdentityFrom(c), c.Param("id")))
}

// PUT /order/:id/pickup
func (oc *OrderController) PickupOrder(c *gin.Context) {
	oc.respond(c, http.StatusOK)(oc.Orders.PickupOrder(c.Request.Context(), app.IdentityFrom(c), c.Param("id")))
}

// PUT /order/:id/overdue
func (oc *OrderController) MarkOverdue(c *gin.Context) {
	oc.respond(c, http.StatusOK)(oc.Orders.MarkOrderOverdue(c.Request.Context(), app.IdentityFrom(c), c.Param("id")))
}

// DELETE /order/:id
func (oc *OrderController) DeleteOrder(c *gin.Context) {
	if err := oc.Orders.DeleteOrder(c.Request.Context(), app.IdentityFrom(c), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (oc *OrderController) respond(c *gin.Context, status int) func(*models.Order, error) {
	return func(o *models.Order, err error) {
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(status, o)
	}
}

func orEmpty(list []models.Order) []models.Order {
	if list == nil {
		return []models.Order{}
	}
	return list
}
