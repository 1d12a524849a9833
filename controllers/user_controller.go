package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"library_lending/app"
	"library_lending/service"
)

type UserController struct{ *Srv }

func GetUserController(s *Srv) *UserController { return &UserController{Srv: s} }

// POST /api/auth/signup
// roles 里带 "admin" 需要管理员 token，或者库里还没有任何账号
func (uc *UserController) Signup(c *gin.Context) {
	var in struct {
		Username string   `json:"username" binding:"required"`
		Name     string   `json:"name"`
		Email    string   `json:"email" binding:"required"`
		Password string   `json:"password" binding:"required"`
		Roles    []string `json:"roles"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	u, err := uc.Accounts.Signup(c.Request.Context(), app.IdentityFrom(c), service.SignupRequest{
		Username: in.Username,
		Name:     in.Name,
		Email:    in.Email,
		Password: in.Password,
		Roles:    in.Roles,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, app.H{"message": "User registered successfully!", "user": u})
}

// POST /api/auth/signin
func (uc *UserController) Signin(c *gin.Context) {
	var in struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	sess, err := uc.Accounts.Signin(c.Request.Context(), in.Username, in.Password)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// GET /api/auth/me
func (uc *UserController) Me(c *gin.Context) {
	u, err := uc.Accounts.Me(c.Request.Context(), app.IdentityFrom(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// GET /api/users?q=&page=&size=  管理员查看账号
func (uc *UserController) ListUsers(c *gin.Context) {
	q := c.Query("q")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	res, err := uc.Accounts.ListUsers(c.Request.Context(), app.IdentityFrom(c), q, page, size)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /api/users/:id
func (uc *UserController) GetUser(c *gin.Context) {
	u, err := uc.Accounts.GetUser(c.Request.Context(), app.IdentityFrom(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// DELETE /api/users/:id
// 不允许删除自己，管理员受保护，还有未归还订单的账号不能删
func (uc *UserController) DeleteUser(c *gin.Context) {
	if err := uc.Accounts.DeleteUser(c.Request.Context(), app.IdentityFrom(c), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
