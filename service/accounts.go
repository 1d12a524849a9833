package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"library_lending/apperr"
	"library_lending/auth"
	"library_lending/db"
	"library_lending/models"
	"library_lending/notify"
)

// AccountStore is the user store plus the one order question account deletion asks.
type AccountStore interface {
	db.UserStore
	UserHasActiveOrders(ctx context.Context, userID string) (bool, error)
}

// Accounts covers signup, signin and turning a bearer token back into an identity.
type Accounts struct {
	// Guard decides the admin-only account operations; the zero Guard works.
	Guard auth.Guard

	users   AccountStore
	tokens  *auth.TokenService
	mail    *notify.Dispatcher
	log     logrus.FieldLogger
	timeout time.Duration

	// serialises the "no users yet" check with the insert, so one process hands out
	// at most one bootstrap admin
	bootstrapMu sync.Mutex
}

func NewAccounts(users AccountStore, tokens *auth.TokenService, mail *notify.Dispatcher, log logrus.FieldLogger, storeTimeout time.Duration) *Accounts {
	if storeTimeout <= 0 {
		storeTimeout = DefaultStoreTimeout
	}
	return &Accounts{users: users, tokens: tokens, mail: mail, log: log, timeout: storeTimeout}
}

type SignupRequest struct {
	Username string
	Name     string
	Email    string
	Password string
	Roles    []string
}

func (r *SignupRequest) validate() error {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.TrimSpace(r.Email)
	r.Name = strings.TrimSpace(r.Name)
	switch {
	case len(r.Username) < 3 || len(r.Username) > 20:
		return apperr.Invalid("username must be 3 to 20 characters")
	case r.Email == "" || len(r.Email) > 50:
		return apperr.Invalid("email must be at most 50 characters")
	case len(r.Password) < 6 || len(r.Password) > 40:
		return apperr.Invalid("password must be 6 to 40 characters")
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return apperr.Invalid("email is not a valid address")
	}
	if r.Name == "" {
		r.Name = r.Username
	}
	return nil
}

// Session is what a successful signin hands back.
type Session struct {
	Token     string       `json:"token"`
	Type      string       `json:"type"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *models.User `json:"user"`
}

// Signup creates a user. Asking for the admin role only takes effect when the caller is
// already an admin, or when this is the very first account (bootstrap).
func (s *Accounts) Signup(ctx context.Context, caller *auth.Identity, req SignupRequest) (*models.User, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if wantsAdmin(req.Roles) && !caller.IsAdmin() {
		s.bootstrapMu.Lock()
		defer s.bootstrapMu.Unlock()
	}

	if taken, err := s.users.UsernameExists(ctx, req.Username); err != nil {
		return nil, err
	} else if taken {
		return nil, apperr.Conflict("username is already taken")
	}
	if taken, err := s.users.EmailExists(ctx, req.Email); err != nil {
		return nil, err
	} else if taken {
		return nil, apperr.Conflict("email is already in use")
	}

	roles, err := s.grantRoles(ctx, caller, req.Roles)
	if err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &models.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		Roles:        roles,
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"user_id": u.ID, "roles": roles}).Info("user registered")

	s.mail.Send(ctx, "welcome", u.Email, notify.SubjectWelcome, notify.WelcomeBody(u.Username), u.Name)
	return u, nil
}

func wantsAdmin(requested []string) bool {
	for _, r := range requested {
		switch strings.ToLower(strings.TrimSpace(r)) {
		case "admin", strings.ToLower(string(models.RoleAdmin)):
			return true
		}
	}
	return false
}

func (s *Accounts) grantRoles(ctx context.Context, caller *auth.Identity, requested []string) ([]string, error) {
	roles := []string{string(models.RoleUser)}
	if !wantsAdmin(requested) {
		return roles, nil
	}
	if caller.IsAdmin() {
		return append(roles, string(models.RoleAdmin)), nil
	}
	n, err := s.users.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		s.log.Info("[BOOTSTRAP] first account gets the admin role")
		return append(roles, string(models.RoleAdmin)), nil
	}
	return nil, fmt.Errorf("only an admin can create admin accounts: %w", apperr.ErrForbidden)
}

// Signin checks the password and issues a bearer token. Unknown user and wrong password
// look the same to the caller.
func (s *Accounts) Signin(ctx context.Context, username, password string) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	u, err := s.users.FindUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("bad credentials: %w", apperr.ErrUnauthenticated)
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return nil, fmt.Errorf("bad credentials: %w", apperr.ErrUnauthenticated)
	}

	token, exp, err := s.tokens.Issue(u.Username)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	s.log.WithField("user_id", u.ID).Info("user signed in")
	return &Session{Token: token, Type: "Bearer", ExpiresAt: exp, User: u}, nil
}

// Resolve validates raw and loads the user it names. A token for a deleted user is
// Unauthenticated.
func (s *Accounts) Resolve(ctx context.Context, raw string) (*auth.Identity, error) {
	claims, err := s.tokens.Parse(raw)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	u, err := s.users.FindUserByUsername(ctx, claims.Subject)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("token subject %q: %w", claims.Subject, apperr.ErrUnauthenticated)
	}
	if err != nil {
		return nil, err
	}
	return auth.IdentityOf(u), nil
}

// Me returns the stored user behind an identity.
func (s *Accounts) Me(ctx context.Context, id *auth.Identity) (*models.User, error) {
	if id == nil {
		return nil, fmt.Errorf("no identity: %w", apperr.ErrUnauthenticated)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.users.FindUserByID(ctx, id.UserID)
}

// UserPage is one page of ListUsers.
type UserPage struct {
	Users []models.User `json:"users"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Size  int           `json:"size"`
}

// ListUsers is the librarian's view of the accounts, optionally filtered by q.
// page starts at 1; size defaults to 20 and is capped at 100.
func (s *Accounts) ListUsers(ctx context.Context, id *auth.Identity, q string, page, size int) (*UserPage, error) {
	if err := authorize(s.Guard, id, auth.AdminAction("list users")); err != nil {
		return nil, err
	}
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	users, total, err := s.users.ListUsers(ctx, q, (page-1)*size, size)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []models.User{}
	}
	return &UserPage{Users: users, Total: total, Page: page, Size: size}, nil
}

func (s *Accounts) GetUser(ctx context.Context, id *auth.Identity, userID string) (*models.User, error) {
	if err := authorize(s.Guard, id, auth.AdminAction("get user")); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.users.FindUserByID(ctx, userID)
}

// DeleteUser 删除账号：不能删自己，不能删管理员，有未归还的订单也不行
func (s *Accounts) DeleteUser(ctx context.Context, id *auth.Identity, userID string) error {
	if err := authorize(s.Guard, id, auth.AdminAction("delete user")); err != nil {
		return err
	}
	if userID == id.UserID {
		return apperr.Invalid("cannot delete yourself")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	u, err := s.users.FindUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.HasRole(models.RoleAdmin) {
		return fmt.Errorf("cannot delete an admin account: %w", apperr.ErrForbidden)
	}
	active, err := s.users.UserHasActiveOrders(ctx, userID)
	if err != nil {
		return err
	}
	if active {
		return apperr.Conflict("user still has orders that are not returned")
	}
	if err := s.users.DeleteUser(ctx, userID); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "by": id.UserID}).Info("user deleted")
	return nil
}
