package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	ierr "github.com/smallbiznis/clinicbilling/internal/errors"
	"gorm.io/gorm"
)

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: SchedulerJobReasonDeadlineExceeded},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: SchedulerJobReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: SchedulerJobReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: SchedulerJobReasonUniqueViolation},
		{name: "conflict", err: fmt.Errorf("renew: %w", ierr.Sentinel("already_renewed", ierr.ErrConflict)), want: SchedulerJobReasonConflict},
		{name: "rate", err: ierr.Sentinel("rate_missing", ierr.ErrRateNotFound), want: SchedulerJobReasonRateNotFound},
		{name: "unknown", err: errors.New("boom"), want: SchedulerJobReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySchedulerJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestAddBatchProcessed(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewSchedulerMetricsForTest(registry)

	metrics.AddBatchProcessed("auto_renewals", "subscriptions", 3)
	metrics.AddBatchProcessed("auto_renewals", "subscriptions", 0)

	got := testutil.ToFloat64(metrics.batchProcessed.WithLabelValues("auto_renewals", "subscriptions"))
	if got != 3 {
		t.Fatalf("expected processed count 3, got %v", got)
	}
}

func TestIncJobErrorUsesReasonLabel(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewSchedulerMetricsForTest(registry)

	metrics.IncJobError("expirations", context.DeadlineExceeded)
	metrics.IncJobError("expirations", nil)

	got := testutil.ToFloat64(metrics.jobErrors.WithLabelValues("expirations", SchedulerJobReasonDeadlineExceeded))
	if got != 1 {
		t.Fatalf("expected one timeout error, got %v", got)
	}
}
