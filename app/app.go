package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"library_lending/auth"
	"library_lending/config"
	"library_lending/db"
	"library_lending/ledger"
	"library_lending/metrics"
	"library_lending/notify"
	"library_lending/scheduler"
	"library_lending/service"
)

// 简化别名，便于 handlers 调用
type Ctx = gin.Context
type H = gin.H

// Ledger is the reminder ledger plus a health check.
type Ledger interface {
	scheduler.ReminderLedger
	Ping(ctx context.Context) error
}

// App 聚合各依赖
type App struct {
	Router *gin.Engine
	Log    *logrus.Logger
	Config config.Config

	DB     *gorm.DB      // nil with STORE=memory
	RDB    *redis.Client // nil with REDIS_DISABLED
	Store  db.Store
	Ledger Ledger
	Guard  auth.Guard

	Accounts  *service.Accounts
	Orders    *service.Orders
	Books     *service.Books
	Scheduler *scheduler.Scheduler
	Signin    *RateLimiter
}

func MustNew(cfg config.Config) *App {
	a, err := New(cfg)
	if err != nil {
		log.Fatalf("startup: %v", err)
	}
	return a
}

func New(cfg config.Config) (*App, error) {
	logger, err := NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	a := &App{Log: logger, Config: cfg}

	// --- Store: Postgres 或内存 ---
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("STORE=memory, data is lost on restart")
		a.Store = db.NewMemoryStore()
	default:
		gdb, err := db.Connect(cfg.DSN(), logger)
		if err != nil {
			return nil, err
		}
		a.DB = gdb
		a.Store = db.NewRepo(gdb)
	}

	// --- Redis: 提醒去重账本 ---
	if cfg.RedisDisabled {
		logger.Warn("REDIS_DISABLED, reminder ledger kept in process memory")
		a.Ledger = ledger.NewMemory(ledger.DefaultTTL)
	} else {
		a.RDB = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: 0})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := a.RDB.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.Ledger = ledger.NewRedis(a.RDB, ledger.DefaultTTL)
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		a.Close()
		return nil, err
	}

	mail := notify.NewDispatcher(notify.New(cfg.SMTP(), logger), cfg.NotifyTimeout, logger)
	mail.Observe = metrics.RecordNotification

	a.Guard = auth.Guard{Observe: func(r auth.Resource, d auth.Decision) {
		metrics.RecordDecision(r.Action, d.String())
	}}

	a.Accounts = service.NewAccounts(a.Store, tokens, mail, logger, cfg.StoreTimeout)
	a.Accounts.Guard = a.Guard
	a.Orders = service.NewOrders(a.Store, mail, a.Guard, cfg.Policy(), logger, cfg.StoreTimeout)
	a.Books = service.NewBooks(a.Store, a.Guard, logger, cfg.StoreTimeout)

	loc, err := cfg.Location()
	if err != nil {
		a.Close()
		return nil, err
	}
	sweeper := scheduler.NewSweeper(a.Store, a.Ledger, mail, logger, cfg.StoreTimeout)
	a.Scheduler, err = scheduler.New(sweeper, cfg.SweepSchedule, loc, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Signin = NewRateLimiter(cfg.SigninRate, cfg.SigninBurst, logger)

	// --- Gin ---
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(logger), metrics.Middleware())
	useCORS(r, cfg.WebOrigin)
	a.Router = r
	return a, nil
}

// Ping checks the store and the reminder ledger.
func (a *App) Ping(ctx context.Context) error {
	if err := a.Store.Ping(ctx); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := a.Ledger.Ping(ctx); err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	return nil
}

func (a *App) Close() {
	if a.RDB != nil {
		_ = a.RDB.Close()
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT (text|json).
func NewLogger(level, format string) (*logrus.Logger, error) {
	l := logrus.New()
	lv, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	l.SetLevel(lv)
	switch format {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("LOG_FORMAT must be text or json, got %q", format)
	}
	return l, nil
}
