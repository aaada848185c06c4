package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/clinicbilling/internal/audit"
	"github.com/smallbiznis/clinicbilling/internal/clock"
	"github.com/smallbiznis/clinicbilling/internal/config"
	"github.com/smallbiznis/clinicbilling/internal/currency"
	"github.com/smallbiznis/clinicbilling/internal/invoice"
	"github.com/smallbiznis/clinicbilling/internal/migration"
	"github.com/smallbiznis/clinicbilling/internal/observability"
	"github.com/smallbiznis/clinicbilling/internal/payment"
	"github.com/smallbiznis/clinicbilling/internal/plan"
	"github.com/smallbiznis/clinicbilling/internal/resource"
	"github.com/smallbiznis/clinicbilling/internal/scheduler"
	"github.com/smallbiznis/clinicbilling/internal/server"
	"github.com/smallbiznis/clinicbilling/internal/subscription"
	"github.com/smallbiznis/clinicbilling/internal/tenant"
	"github.com/smallbiznis/clinicbilling/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Billing domains
		plan.Module,
		tenant.Module,
		audit.Module,
		currency.Module,
		invoice.Module,
		subscription.Module,
		payment.Module,
		resource.Module,

		// Background jobs and the ops surface
		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
