package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/clinicbilling/internal/resource"
)

type resourceResponse struct {
	Kind  resource.Kind     `json:"kind"`
	OrgID string            `json:"org_id"`
	Data  resource.Resource `json:"data"`
}

// GetResource returns a subscription, invoice or payment read model. A
// super-admin may pass org_id to read another tenant's record.
func (s *Server) GetResource(c *gin.Context) {
	kind, err := resource.ParseKind(c.Param("kind"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil || id <= 0 {
		AbortWithError(c, ErrInvalidID)
		return
	}
	ref := resource.Ref{Kind: kind, ID: id}
	if raw := strings.TrimSpace(c.Query("org_id")); raw != "" {
		orgID, err := snowflake.ParseString(raw)
		if err != nil || orgID <= 0 {
			AbortWithError(c, ErrMissingOrg)
			return
		}
		ref.OrgID = orgID
	}

	found, err := s.resources.Lookup(c.Request.Context(), ref)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resourceResponse{
		Kind:  found.Kind(),
		OrgID: found.OrgID().String(),
		Data:  found,
	})
}
