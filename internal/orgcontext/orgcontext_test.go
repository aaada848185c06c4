package orgcontext

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
)

func TestTenantRoundTrip(t *testing.T) {
	ctx := WithTenant(context.Background(), Tenant{OrgID: 42, SuperAdmin: true, FunctionalCurrency: " idr "})

	orgID, ok := OrgIDFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, snowflake.ID(42), orgID)

	tenant, ok := TenantFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "IDR", tenant.FunctionalCurrency)
	require.True(t, IsSuperAdmin(ctx))
}

func TestTenantFromOrgIDOnly(t *testing.T) {
	ctx := WithOrgID(context.Background(), 7)

	tenant, ok := TenantFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, snowflake.ID(7), tenant.OrgID)
	require.False(t, tenant.SuperAdmin)
	require.Empty(t, tenant.FunctionalCurrency)
}

func TestOverridingOrgDropsStaleTenant(t *testing.T) {
	ctx := WithTenant(context.Background(), Tenant{OrgID: 1, SuperAdmin: true})
	ctx = WithOrgID(ctx, 2)

	tenant, ok := TenantFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, snowflake.ID(2), tenant.OrgID)
	require.False(t, tenant.SuperAdmin)
}

func TestActor(t *testing.T) {
	_, ok := ActorFromContext(context.Background())
	require.False(t, ok)

	actor, ok := ActorFromContext(WithActor(context.Background(), "user-9"))
	require.True(t, ok)
	require.Equal(t, "user-9", actor)
}
