package auth

import (
	"fmt"

	"library_lending/apperr"
	"library_lending/models"
)

// Identity is the resolved caller. Handlers resolve it once per request and pass it
// down explicitly.
type Identity struct {
	UserID   string
	Username string
	Email    string
	Roles    []models.Role
}

// IdentityOf builds an Identity from a stored user.
func IdentityOf(u *models.User) *Identity {
	id := &Identity{UserID: u.ID, Username: u.Username, Email: u.Email}
	for _, r := range u.Roles {
		id.Roles = append(id.Roles, models.Role(r))
	}
	return id
}

func (i *Identity) IsAdmin() bool {
	if i == nil {
		return false
	}
	for _, r := range i.Roles {
		if r == models.RoleAdmin {
			return true
		}
	}
	return false
}

// Resource is what a request wants to touch.
type Resource struct {
	OwnerID   string
	AdminOnly bool
	Action    string
}

// OwnedBy is an order (or order collection) owned by userID.
func OwnedBy(userID string) Resource {
	return Resource{OwnerID: userID, Action: "owned"}
}

// AdminAction is a collection-level operation only librarians may run.
func AdminAction(action string) Resource {
	return Resource{AdminOnly: true, Action: action}
}

type Decision int

const (
	Deny Decision = iota
	Permit
)

func (d Decision) String() string {
	if d == Permit {
		return "permit"
	}
	return "deny"
}

// Err turns a Deny into apperr.ErrForbidden.
func (d Decision) Err(r Resource) error {
	if d == Permit {
		return nil
	}
	return fmt.Errorf("access to %s denied: %w", r.Action, apperr.ErrForbidden)
}

// Guard applies the ownership rule: the owner or any admin.
type Guard struct {
	// Observe, when set, sees every decision (metrics).
	Observe func(r Resource, d Decision)
}

func (g Guard) Authorize(id *Identity, r Resource) Decision {
	d := decide(id, r)
	if g.Observe != nil {
		g.Observe(r, d)
	}
	return d
}

func decide(id *Identity, r Resource) Decision {
	if id == nil || id.UserID == "" {
		return Deny
	}
	if id.IsAdmin() {
		return Permit
	}
	if r.AdminOnly {
		return Deny
	}
	if r.OwnerID != "" && r.OwnerID == id.UserID {
		return Permit
	}
	return Deny
}
