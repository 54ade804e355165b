// Package httpkit provides HTTP utilities including identity abstraction.
package httpkit

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Identity is the caller resolved by AuthRequired. A nil *Identity is an
// anonymous caller and holds no roles.
type Identity struct {
	userID uuid.UUID
	roles  []string
}

func (i *Identity) UserID() uuid.UUID {
	if i == nil {
		return uuid.Nil
	}
	return i.userID
}

func (i *Identity) HasRole(role string) bool {
	return i != nil && slices.Contains(i.roles, role)
}

// IsAdmin reports whether the caller may create, assign and sweep referrals
// and see every lead.
func (i *Identity) IsAdmin() bool {
	return i.HasRole(RoleAdmin)
}

// IsBroker reports whether the caller has a referral inbox.
func (i *Identity) IsBroker() bool {
	return i.HasRole(RoleBroker)
}

// GetIdentity returns the caller stored on c, or nil when the request carries
// no valid user ID.
func GetIdentity(c *gin.Context) *Identity {
	raw, ok := c.Get(ContextUserIDKey)
	if !ok {
		return nil
	}
	userID, ok := raw.(uuid.UUID)
	if !ok || userID == uuid.Nil {
		return nil
	}

	id := &Identity{userID: userID}
	if roles, ok := c.Get(ContextRolesKey); ok {
		id.roles, _ = roles.([]string)
	}
	return id
}

// MustGetIdentity aborts with 401 and returns nil for anonymous callers.
func MustGetIdentity(c *gin.Context) *Identity {
	id := GetIdentity(c)
	if id == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil
	}
	return id
}
