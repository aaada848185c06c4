package orgcontext

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// OrgContextKey is the request context key for the active organization ID.
type OrgContextKey struct{}

type tenantKey struct{}

type actorKey struct{}

// Tenant is the clinic the caller acts on behalf of.
type Tenant struct {
	OrgID              snowflake.ID
	SuperAdmin         bool
	FunctionalCurrency string
}

// WithOrgID stores the org ID in the context.
func WithOrgID(ctx context.Context, orgID int64) context.Context {
	return context.WithValue(ctx, OrgContextKey{}, orgID)
}

// WithTenant stores the full tenant context, including the org ID.
func WithTenant(ctx context.Context, tenant Tenant) context.Context {
	tenant.FunctionalCurrency = strings.ToUpper(strings.TrimSpace(tenant.FunctionalCurrency))
	ctx = context.WithValue(ctx, OrgContextKey{}, tenant.OrgID)
	return context.WithValue(ctx, tenantKey{}, tenant)
}

// TenantFromContext returns the tenant context. When only an org ID was set,
// the returned tenant carries that ID and no other attributes.
func TenantFromContext(ctx context.Context) (Tenant, bool) {
	if ctx == nil {
		return Tenant{}, false
	}
	orgID, ok := OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return Tenant{}, false
	}
	if tenant, ok := ctx.Value(tenantKey{}).(Tenant); ok && tenant.OrgID == orgID {
		return tenant, true
	}
	return Tenant{OrgID: orgID}, true
}

// IsSuperAdmin reports whether the caller may read across tenants.
func IsSuperAdmin(ctx context.Context) bool {
	tenant, ok := TenantFromContext(ctx)
	return ok && tenant.SuperAdmin
}

// WithActor stores the acting user ID used for audit stamps.
func WithActor(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, actorKey{}, strings.TrimSpace(userID))
}

// ActorFromContext returns the acting user ID, if set.
func ActorFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	actor, ok := ctx.Value(actorKey{}).(string)
	if !ok || actor == "" {
		return "", false
	}
	return actor, true
}

// OrgIDFromContext returns the org ID from context, if set.
func OrgIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	if ctx == nil {
		return 0, false
	}

	value := ctx.Value(OrgContextKey{})
	if value == nil {
		return 0, false
	}
	switch typed := value.(type) {
	case int64:
		return snowflake.ID(typed), true
	case snowflake.ID:
		return typed, true
	case string:
		parsed, err := snowflake.ParseString(strings.TrimSpace(typed))
		if err == nil {
			return parsed, true
		}
	}
	return 0, false
}
