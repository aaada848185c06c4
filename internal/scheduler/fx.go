package scheduler

import (
	"context"

	"github.com/smallbiznis/clinicbilling/internal/config"
	invoicedomain "github.com/smallbiznis/clinicbilling/internal/invoice/domain"
	subscriptiondomain "github.com/smallbiznis/clinicbilling/internal/subscription/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(NewRedisClient),
	fx.Provide(NewLease),
	fx.Provide(func(svc subscriptiondomain.Service) SubscriptionJobs { return svc }),
	fx.Provide(func(svc invoicedomain.Service) InvoiceJobs { return svc }),
	fx.Provide(New),
	fx.Invoke(NewScheduler),
)

func NewScheduler(lc fx.Lifecycle, cfg config.Config, sched *Scheduler) {
	if !cfg.SchedulerEnabled {
		return
	}

	var stop func()
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var err error
			stop, err = sched.Start(ctx)
			return err
		},
		OnStop: func(context.Context) error {
			cancel()
			if stop != nil {
				stop()
			}
			return nil
		},
	})
}
