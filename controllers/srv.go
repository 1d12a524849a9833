// controllers/srv.go
package controllers

import (
	"context"

	"library_lending/app"
	"library_lending/service"
)

// Srv 聚合 handler 需要的服务
type Srv struct {
	Accounts *service.Accounts
	Orders   *service.Orders
	Books    *service.Books

	ping func(ctx context.Context) error
}

func GetSrv(a *app.App) *Srv {
	return &Srv{
		Accounts: a.Accounts,
		Orders:   a.Orders,
		Books:    a.Books,
		ping:     a.Ping,
	}
}
