package httpkit

import (
	"net/http"
	"strings"

	"bbys_backend/platform/config"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// RoleAdmin marks operators allowed to edit anything and to call the CRM
// sync endpoints.
const RoleAdmin = "admin"

const tokenTypeAccess = "access"

// Claims are the fields the back office reads from an access token. The
// identity provider signs them with the shared HMAC secret.
type Claims struct {
	jwt.RegisteredClaims
	Type   string   `json:"type"`
	Email  string   `json:"email,omitempty"`
	Roles  []string `json:"roles,omitempty"`
	Groups []string `json:"groups,omitempty"`
}

func (c *Claims) identity() (*Identity, bool) {
	if c.Type != tokenTypeAccess {
		return nil, false
	}
	userID, err := uuid.Parse(c.Subject)
	if err != nil {
		return nil, false
	}
	return &Identity{
		userID: userID,
		email:  strings.ToLower(strings.TrimSpace(c.Email)),
		roles:  c.Roles,
		groups: c.Groups,
	}, true
}

// AuthRequired rejects requests without a valid bearer access token and
// stores the caller's Identity for the handlers.
func AuthRequired(cfg config.JWTConfig) gin.HandlerFunc {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{
		jwt.SigningMethodHS256.Alg(),
		jwt.SigningMethodHS384.Alg(),
		jwt.SigningMethodHS512.Alg(),
	}))
	keyFunc := func(*jwt.Token) (interface{}, error) {
		return []byte(cfg.GetJWTAccessSecret()), nil
	}

	return func(c *gin.Context) {
		raw, ok := bearer(c.GetHeader("Authorization"))
		if !ok {
			deny(c, http.StatusUnauthorized, "missing token")
			return
		}

		claims := &Claims{}
		if _, err := parser.ParseWithClaims(raw, claims, keyFunc); err != nil {
			deny(c, http.StatusUnauthorized, "invalid token")
			return
		}
		id, ok := claims.identity()
		if !ok {
			deny(c, http.StatusUnauthorized, "invalid token")
			return
		}

		c.Set(identityKey, id)
		c.Next()
	}
}

// RequireRole lets through callers holding role.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !GetIdentity(c).HasRole(role) {
			deny(c, http.StatusForbidden, "forbidden")
			return
		}
		c.Next()
	}
}

// RequireGroup lets through members of group. Admins pass every group check.
func RequireGroup(group string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := GetIdentity(c)
		if !id.InGroup(group) && !id.HasRole(RoleAdmin) {
			deny(c, http.StatusForbidden, "forbidden")
			return
		}
		c.Next()
	}
}

func bearer(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func deny(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: message})
}
