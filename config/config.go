// Package config reads process settings from the environment (and an optional .env file).
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	"library_lending/lending"
	"library_lending/notify"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config 从环境变量读取
type Config struct {
	Port string `env:"PORT,default=3001"`

	Store       string `env:"STORE,default=postgres"`
	DatabaseURL string `env:"DATABASE_URL"`
	DBHost      string `env:"DB_HOST,default=127.0.0.1"`
	DBUser      string `env:"DB_USER,default=postgres"`
	DBPassword  string `env:"DB_PASSWORD"`
	DBName      string `env:"DB_NAME,default=library"`
	DBPort      string `env:"DB_PORT,default=5432"`

	RedisAddr     string `env:"REDIS_ADDR,default=127.0.0.1:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDisabled bool   `env:"REDIS_DISABLED,default=false"`

	WebOrigin string `env:"WEB_ORIGIN,default=http://localhost:5173"`

	JWTSecret string        `env:"JWT_SECRET"`
	JWTTTL    time.Duration `env:"JWT_TTL,default=24h"`

	LoanPeriod            time.Duration `env:"LOAN_PERIOD,default=168h"`
	RenewalExtension      time.Duration `env:"RENEWAL_EXTENSION,default=120h"`
	RenewWindowDays       int           `env:"RENEW_WINDOW_DAYS,default=2"`
	AllowRenewAfterReturn bool          `env:"ALLOW_RENEW_AFTER_RETURN,default=false"`
	AllowRepeatReturn     bool          `env:"ALLOW_REPEAT_RETURN,default=false"`

	// 秒 分 时 日 月 周
	SweepSchedule string `env:"SWEEP_SCHEDULE,default=0 0 0 * * *"`
	SweepTimezone string `env:"SWEEP_TIMEZONE,default=UTC"`

	NotifyTimeout time.Duration `env:"NOTIFY_TIMEOUT,default=5s"`
	StoreTimeout  time.Duration `env:"STORE_TIMEOUT,default=3s"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     string `env:"SMTP_PORT,default=587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM"`
	AppName      string `env:"APP_NAME,default=Library Lending"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=text"`

	SigninRate  float64 `env:"SIGNIN_RATE,default=1"`
	SigninBurst int     `env:"SIGNIN_BURST,default=5"`

	// 首个管理员：库里还没有账号时用这组凭据创建
	BootstrapUsername string `env:"BOOTSTRAP_ADMIN_USERNAME"`
	BootstrapEmail    string `env:"BOOTSTRAP_ADMIN_EMAIL"`
	BootstrapPassword string `env:"BOOTSTRAP_ADMIN_PASSWORD"`
}

// LoadEnv loads .env when present; a missing file is fine.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using process environment")
	}
}

func Load() (Config, error) {
	var c Config
	if err := envdecode.Decode(&c); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode env: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	switch c.Store {
	case StorePostgres, StoreMemory:
	default:
		return fmt.Errorf("STORE must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store)
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.JWTTTL <= 0 {
		return errors.New("JWT_TTL must be positive")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("SWEEP_TIMEZONE: %w", err)
	}
	if c.SigninRate <= 0 || c.SigninBurst <= 0 {
		return errors.New("SIGNIN_RATE and SIGNIN_BURST must be positive")
	}
	return nil
}

// DSN prefers DATABASE_URL and otherwise assembles one from DB_*.
func (c Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort,
	)
}

func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.SweepTimezone)
}

func (c Config) Policy() lending.Policy {
	return lending.Policy{
		LoanPeriod:            c.LoanPeriod,
		RenewalExtension:      c.RenewalExtension,
		RenewWindowDays:       c.RenewWindowDays,
		AllowRenewAfterReturn: c.AllowRenewAfterReturn,
		AllowRepeatReturn:     c.AllowRepeatReturn,
	}
}

func (c Config) SMTP() notify.SMTPConfig {
	return notify.SMTPConfig{
		Host:     strings.TrimSpace(c.SMTPHost),
		Port:     c.SMTPPort,
		Username: strings.TrimSpace(c.SMTPUsername),
		Password: c.SMTPPassword,
		From:     strings.TrimSpace(c.SMTPFrom),
		AppName:  c.AppName,
	}
}
