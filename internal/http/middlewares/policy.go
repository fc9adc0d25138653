package middlewares

import (
	"net/http"

	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/gin-gonic/gin"
)

// Policy is one row of the declarative authorization table. Routes are
// registered with the roles allowed to call them plus an optional
// ownership rule: when OwnerParam is set, a non-admin caller may only act
// on the record whose route param matches their own token subject.
type Policy struct {
	Roles      []string
	OwnerParam string
}

func (p Policy) allows(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Require evaluates a Policy after RequireAuth has attached the claims.
func (m *AuthMiddleware) Require(p Policy) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := RoleFromContext(c)

		if !ok || role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "unauthorized",
					"message": "Missing identity context",
				},
			})
			return
		}

		if !p.allows(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": gin.H{
					"code":    "forbidden",
					"message": "Insufficient role",
				},
			})
			return
		}

		if p.OwnerParam != "" && role != user.RoleAdmin {
			userID, _ := UserIDFromContext(c)

			if c.Param(p.OwnerParam) != userID {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"error": gin.H{
						"code":    "forbidden",
						"message": "You can only modify your own record",
					},
				})
				return
			}
		}

		c.Next()
	}
}
