package routes

import (
	"github.com/gin-gonic/gin"

	"library_lending/app"
	"library_lending/controllers"
	"library_lending/metrics"
)

func RegisterRoutes(r *gin.Engine, a *app.App) {
	// 控制器与依赖
	s := controllers.GetSrv(a)
	uc := controllers.GetUserController(s)
	bookCtl := controllers.NewBookController(s)
	orderCtl := controllers.NewOrderController(s)

	// 复用的中间件
	authMW := app.AuthRequired(a.Accounts)
	adminMW := app.AdminOnly()

	r.GET("/healthz", s.Health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// ------------------------------
	// 账号（公开 + 受保护）
	// ------------------------------
	api := r.Group("/api/auth")
	{
		api.POST("/signup", app.OptionalAuth(a.Accounts), uc.Signup)
		api.POST("/signin", a.Signin.Handler(), uc.Signin)
		api.GET("/me", authMW, uc.Me)
	}

	// ------------------------------
	// 用户管理（仅管理员）
	// ------------------------------
	users := r.Group("/api/users", authMW, adminMW)
	{
		users.GET("", uc.ListUsers)
		users.GET("/:id", uc.GetUser)
		users.DELETE("/:id", uc.DeleteUser)
	}

	// ------------------------------
	// 书目：浏览公开，维护仅管理员
	// ------------------------------
	r.GET("/books", bookCtl.ListBooks)
	r.GET("/books/:id", bookCtl.GetBook)
	r.GET("/books/:id/image", bookCtl.BookImage)
	r.POST("/books", authMW, adminMW, bookCtl.CreateBook)
	r.PUT("/books/:id", authMW, adminMW, bookCtl.UpdateBook)
	r.DELETE("/books/:id", authMW, adminMW, bookCtl.DeleteBook)

	// ------------------------------
	// 借阅：本人或管理员
	// ------------------------------
	orders := r.Group("", authMW)
	{
		orders.POST("/order", orderCtl.CreateOrder)
		orders.GET("/order/:id", orderCtl.GetOrder)
		orders.GET("/order/:id/user", orderCtl.GetOrderOwner)
		orders.GET("/user/:userId/orders", orderCtl.ListUserOrders)
		orders.PUT("/order/:id/renew", orderCtl.RenewOrder)
		orders.POST("/order/:id/renew-books", orderCtl.RenewBooks)
	}

	// ------------------------------
	// 借还管理（仅管理员）
	// ------------------------------
	admin := r.Group("", authMW, adminMW)
	{
		admin.GET("/orders", orderCtl.ListOrders)
		admin.PUT("/order/:id", orderCtl.UpdateOrder)
		admin.PUT("/order/:id/return", orderCtl.ReturnOrder)
		admin.PUT("/order/:id/pickup", orderCtl.PickupOrder)
		admin.PUT("/order/:id/overdue", orderCtl.MarkOverdue)
		admin.DELETE("/order/:id", orderCtl.DeleteOrder)
	}
}
