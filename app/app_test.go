package app

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library_lending/apperr"
	"library_lending/auth"
	"library_lending/config"
	"library_lending/db"
	"library_lending/models"
	"library_lending/notify"
	"library_lending/service"
)

func init() { gin.SetMode(gin.TestMode) }

func memoryConfig() config.Config {
	return config.Config{
		Store:         config.StoreMemory,
		RedisDisabled: true,
		JWTSecret:     base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef")),
		JWTTTL:        time.Hour,
		SweepTimezone: "UTC",
		LogLevel:      "error",
		LogFormat:     "json",
		SigninRate:    1,
		SigninBurst:   1,
	}
}

func TestNewMemoryApp(t *testing.T) {
	a, err := New(memoryConfig())
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.DB)
	assert.Nil(t, a.RDB)
	assert.NoError(t, a.Ping(context.Background()))
	assert.Equal(t, logrus.ErrorLevel, a.Log.GetLevel())
}

func TestNewRejectsBadSettings(t *testing.T) {
	cfg := memoryConfig()
	cfg.LogFormat = "xml"
	_, err := New(cfg)
	assert.Error(t, err)

	cfg = memoryConfig()
	cfg.JWTSecret = "c2hvcnQ="
	_, err = New(cfg)
	assert.Error(t, err)

	cfg = memoryConfig()
	cfg.SweepSchedule = "every day"
	_, err = New(cfg)
	assert.Error(t, err)
}

func serve(h ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	h = append(h, func(c *gin.Context) {
		id := IdentityFrom(c)
		if id == nil {
			c.JSON(http.StatusOK, H{"user": ""})
			return
		}
		c.JSON(http.StatusOK, H{"user": id.Username})
	})
	r.GET("/", h...)
	return r
}

func get(r http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	a, err := New(memoryConfig())
	require.NoError(t, err)
	_, err = a.Accounts.Signup(context.Background(), nil, signup("alice"))
	require.NoError(t, err)
	sess, err := a.Accounts.Signin(context.Background(), "alice", "s3cret!")
	require.NoError(t, err)

	required := serve(AuthRequired(a.Accounts))
	assert.Equal(t, http.StatusUnauthorized, get(required, "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(required, "Basic abc").Code)
	assert.Equal(t, http.StatusUnauthorized, get(required, "Bearer nope").Code)
	w := get(required, "Bearer "+sess.Token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"alice"}`, w.Body.String())

	optional := serve(OptionalAuth(a.Accounts))
	assert.JSONEq(t, `{"user":""}`, get(optional, "").Body.String())
	assert.JSONEq(t, `{"user":"alice"}`, get(optional, "bearer "+sess.Token).Body.String())
	assert.Equal(t, http.StatusUnauthorized, get(optional, "Bearer nope").Code)

	admin := serve(AuthRequired(a.Accounts), AdminOnly())
	assert.Equal(t, http.StatusForbidden, get(admin, "Bearer "+sess.Token).Code)
}

// unreachableUsers answers every username lookup with a store failure.
type unreachableUsers struct{ *db.MemoryStore }

func (unreachableUsers) FindUserByUsername(context.Context, string) (*models.User, error) {
	return nil, apperr.Dependency("find user", errors.New("connection refused"))
}

func TestAuthStoreOutageIsNotUnauthorized(t *testing.T) {
	log, _ := test.NewNullLogger()
	cfg := memoryConfig()
	tokens, err := auth.NewTokenService(cfg.JWTSecret, time.Hour)
	require.NoError(t, err)
	mail := notify.NewDispatcher(notify.New(notify.SMTPConfig{}, log), time.Second, log)
	accounts := service.NewAccounts(unreachableUsers{db.NewMemoryStore()}, tokens, mail, log, time.Second)

	tok, _, err := tokens.Issue("alice")
	require.NoError(t, err)

	for name, mw := range map[string]gin.HandlerFunc{"required": AuthRequired(accounts), "optional": OptionalAuth(accounts)} {
		w := get(serve(mw), "Bearer "+tok)
		assert.Equal(t, http.StatusBadGateway, w.Code, name)
		assert.JSONEq(t, `{"error":"Bad Gateway"}`, w.Body.String(), name)

		assert.Equal(t, http.StatusUnauthorized, get(serve(mw), "Bearer nope").Code, name)
	}
}

func TestAdminOnlyWithoutIdentity(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, get(serve(AdminOnly()), "").Code)

	asAdmin := func(c *gin.Context) {
		c.Set(identityKey, &auth.Identity{UserID: "u1", Username: "root", Roles: []models.Role{models.RoleAdmin}})
	}
	assert.Equal(t, http.StatusOK, get(serve(asAdmin, AdminOnly()), "").Code)
}

func TestRateLimiterPerIP(t *testing.T) {
	log, _ := test.NewNullLogger()
	rl := NewRateLimiter(1, 2, log)
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("10.0.0.1"))
	assert.True(t, rl.allow("10.0.0.1"))
	assert.False(t, rl.allow("10.0.0.1"))
	assert.True(t, rl.allow("10.0.0.2"), "buckets are per key")

	now = now.Add(time.Second)
	assert.True(t, rl.allow("10.0.0.1"), "one token refilled")

	now = now.Add(limiterIdle + time.Minute)
	rl.allow("10.0.0.3")
	assert.Len(t, rl.visitors, 1, "idle buckets are swept")
}

func TestRateLimiterHandler(t *testing.T) {
	log, _ := test.NewNullLogger()
	r := serve(NewRateLimiter(0.5, 1, log).Handler())

	assert.Equal(t, http.StatusOK, get(r, "").Code)
	w := get(r, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "3", w.Header().Get("Retry-After"))
}

func TestRequestLogger(t *testing.T) {
	log, hook := test.NewNullLogger()
	r := gin.New()
	r.Use(RequestLogger(log))
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	get404 := httptest.NewRequest(http.MethodGet, "/missing", nil)
	r.ServeHTTP(httptest.NewRecorder(), get404)

	require.Len(t, hook.Entries, 1)
	e := hook.LastEntry()
	assert.Equal(t, logrus.WarnLevel, e.Level)
	assert.Equal(t, http.StatusNotFound, e.Data["status"])
	assert.Equal(t, "/missing", e.Data["path"])
}

func TestBootstrapFirstAdmin(t *testing.T) {
	cfg := memoryConfig()
	cfg.BootstrapUsername = "root"
	cfg.BootstrapEmail = "root@example.com"
	cfg.BootstrapPassword = "s3cret!"
	a, err := New(cfg)
	require.NoError(t, err)

	BootstrapFirstAdmin(context.Background(), a)
	BootstrapFirstAdmin(context.Background(), a)

	n, err := a.Store.CountUsers(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	u, err := a.Store.FindUserByUsername(context.Background(), "root")
	require.NoError(t, err)
	assert.True(t, u.HasRole(models.RoleAdmin))
}

func signup(username string) service.SignupRequest {
	return service.SignupRequest{Username: username, Email: username + "@example.com", Password: "s3cret!"}
}
