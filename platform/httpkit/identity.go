package httpkit

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const identityKey = "httpkit.identity"

// Identity is the authenticated caller. The zero value is anonymous.
type Identity struct {
	userID uuid.UUID
	email  string
	roles  []string
	groups []string
}

func (i *Identity) UserID() uuid.UUID { return i.userID }
func (i *Identity) Email() string     { return i.email }
func (i *Identity) Roles() []string   { return i.roles }

func (i *Identity) IsAuthenticated() bool { return i.userID != uuid.Nil }

// HasRole matches case-insensitively.
func (i *Identity) HasRole(role string) bool { return containsFold(i.roles, role) }

// InGroup matches case-insensitively.
func (i *Identity) InGroup(group string) bool { return containsFold(i.groups, group) }

func containsFold(values []string, want string) bool {
	return slices.ContainsFunc(values, func(v string) bool { return strings.EqualFold(v, want) })
}

// GetIdentity returns the caller set by AuthRequired, or an anonymous
// identity on public routes.
func GetIdentity(c *gin.Context) *Identity {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(*Identity); ok {
			return id
		}
	}
	return &Identity{}
}

// MustGetIdentity aborts with 401 and returns nil for anonymous callers.
func MustGetIdentity(c *gin.Context) *Identity {
	id := GetIdentity(c)
	if !id.IsAuthenticated() {
		deny(c, http.StatusUnauthorized, "unauthorized")
		return nil
	}
	return id
}
