package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY=")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "3001", c.Port)
	assert.Equal(t, StorePostgres, c.Store)
	assert.Equal(t, 24*time.Hour, c.JWTTTL)
	assert.Equal(t, "0 0 0 * * *", c.SweepSchedule)
	assert.Equal(t, 5*time.Second, c.NotifyTimeout)
	assert.Equal(t, 3*time.Second, c.StoreTimeout)

	p := c.Policy()
	assert.Equal(t, 7*24*time.Hour, p.LoanPeriod)
	assert.Equal(t, 5*24*time.Hour, p.RenewalExtension)
	assert.Equal(t, 2, p.RenewWindowDays)
	assert.False(t, p.AllowRepeatReturn)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY=")
	t.Setenv("STORE", "memory")
	t.Setenv("RENEW_WINDOW_DAYS", "-1")
	t.Setenv("ALLOW_REPEAT_RETURN", "true")
	t.Setenv("SWEEP_TIMEZONE", "Asia/Manila")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/lib")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, c.Store)
	assert.Equal(t, -1, c.Policy().RenewWindowDays)
	assert.True(t, c.Policy().AllowRepeatReturn)
	assert.Equal(t, "postgres://u:p@db:5432/lib", c.DSN())

	loc, err := c.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Manila", loc.String())
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := Config{Store: StorePostgres, JWTSecret: "x", JWTTTL: time.Hour, SweepTimezone: "UTC", SigninRate: 1, SigninBurst: 1}
	require.NoError(t, base.Validate())

	bad := base
	bad.Store = "mysql"
	assert.Error(t, bad.Validate())

	bad = base
	bad.SweepTimezone = "Nowhere/Atlantis"
	assert.Error(t, bad.Validate())
}

func TestDSNFromParts(t *testing.T) {
	c := Config{DBHost: "h", DBUser: "u", DBPassword: "p", DBName: "n", DBPort: "5432"}
	assert.Equal(t, "host=h user=u password=p dbname=n port=5432 sslmode=disable", c.DSN())
}

func TestSMTPTrims(t *testing.T) {
	c := Config{SMTPHost: " smtp.example.com ", SMTPPort: "25", AppName: "Lib"}
	s := c.SMTP()
	assert.Equal(t, "smtp.example.com", s.Host)
	assert.Equal(t, "Lib", s.AppName)
}
