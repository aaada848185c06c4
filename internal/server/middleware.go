package server

import (
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/clinicbilling/internal/orgcontext"
)

const (
	HeaderOrg        = "X-Org-ID"
	HeaderSuperAdmin = "X-Super-Admin"
	HeaderActor      = "X-Actor-ID"
)

// TenantContext builds the tenant context from request headers. The ops
// surface sits behind the deployment's network boundary and does not
// authenticate callers itself.
func TenantContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, err := snowflake.ParseString(strings.TrimSpace(c.GetHeader(HeaderOrg)))
		if err != nil || orgID <= 0 {
			AbortWithError(c, ErrMissingOrg)
			return
		}
		superAdmin, _ := strconv.ParseBool(strings.TrimSpace(c.GetHeader(HeaderSuperAdmin)))

		ctx := orgcontext.WithTenant(c.Request.Context(), orgcontext.Tenant{
			OrgID:      orgID,
			SuperAdmin: superAdmin,
		})
		if actor := strings.TrimSpace(c.GetHeader(HeaderActor)); actor != "" {
			ctx = orgcontext.WithActor(ctx, actor)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
