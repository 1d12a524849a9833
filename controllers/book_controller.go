// controllers/book_controller.go
package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"library_lending/app"
	"library_lending/service"
)

type BookController struct{ *Srv }

func NewBookController(s *Srv) *BookController { return &BookController{Srv: s} }

// GET /books
func (bc *BookController) ListBooks(c *gin.Context) {
	books, err := bc.Books.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"books": books})
}

// GET /books/:id
func (bc *BookController) GetBook(c *gin.Context) {
	b, err := bc.Books.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// GET /books/:id/image  封面图存在外部，直接跳转
func (bc *BookController) BookImage(c *gin.Context) {
	b, err := bc.Books.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if b.ImageURL == "" {
		c.JSON(http.StatusNotFound, app.H{"error": "book has no image"})
		return
	}
	c.Redirect(http.StatusFound, b.ImageURL)
}

type bookBody struct {
	Title       string `json:"title" binding:"required"`
	Author      string `json:"author" binding:"required"`
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl"`
}

func (in bookBody) book() service.NewBook {
	return service.NewBook{Title: in.Title, Author: in.Author, Description: in.Description, ImageURL: in.ImageURL}
}

// POST /books  管理员
func (bc *BookController) CreateBook(c *gin.Context) {
	var in bookBody
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	b, err := bc.Books.Create(c.Request.Context(), app.IdentityFrom(c), in.book())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

// PUT /books/:id  管理员，整体替换可编辑字段
func (bc *BookController) UpdateBook(c *gin.Context) {
	var in bookBody
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	b, err := bc.Books.Update(c.Request.Context(), app.IdentityFrom(c), c.Param("id"), in.book())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// DELETE /books/:id  管理员；借出中的书不能删
func (bc *BookController) DeleteBook(c *gin.Context) {
	if err := bc.Books.Delete(c.Request.Context(), app.IdentityFrom(c), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
