// app/bootstrap.go
package app

import (
	"context"
	"errors"

	"library_lending/apperr"
	"library_lending/service"
)

// BootstrapFirstAdmin 库里还没有任何账号时，用 BOOTSTRAP_ADMIN_* 创建第一个管理员
func BootstrapFirstAdmin(ctx context.Context, a *App) {
	cfg := a.Config
	if cfg.BootstrapUsername == "" || cfg.BootstrapPassword == "" {
		return
	}
	n, err := a.Store.CountUsers(ctx)
	if err != nil {
		a.Log.WithError(err).Warn("[BOOTSTRAP] count users failed")
		return
	}
	if n > 0 {
		return // 已经有账号，跳过
	}

	u, err := a.Accounts.Signup(ctx, nil, service.SignupRequest{
		Username: cfg.BootstrapUsername,
		Email:    cfg.BootstrapEmail,
		Password: cfg.BootstrapPassword,
		Roles:    []string{"admin"},
	})
	switch {
	case err == nil:
		a.Log.WithField("user_id", u.ID).Infof("[BOOTSTRAP] created first admin %q", u.Username)
	case errors.Is(err, apperr.ErrConflict):
		// 并发启动的另一个实例先建好了
	default:
		a.Log.WithError(err).Error("[BOOTSTRAP] create first admin failed")
	}
}
