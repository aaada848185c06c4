package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/smallbiznis/clinicbilling/internal/audit/domain"
	currencydomain "github.com/smallbiznis/clinicbilling/internal/currency/domain"
	invoicedomain "github.com/smallbiznis/clinicbilling/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/clinicbilling/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/clinicbilling/internal/subscription/domain"
	tenantdomain "github.com/smallbiznis/clinicbilling/internal/tenant/domain"
	"gorm.io/gorm"
)

// Models lists every persisted billing model in dependency order.
func Models() []any {
	return []any{
		&tenantdomain.BillingProfile{},
		&currencydomain.ExchangeRate{},
		&subscriptiondomain.Subscription{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceItem{},
		&paymentdomain.Payment{},
		&paymentdomain.ChequeDetail{},
		&paymentdomain.PaymentAllocation{},
		&auditdomain.AuditLog{},
	}
}

// RunMigrations applies the embedded postgres schema. All core billing
// tables are created on startup.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// AutoMigrate builds the schema from the gorm models. Used for the mysql
// and sqlite dialects, which the embedded SQL does not target.
func AutoMigrate(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
