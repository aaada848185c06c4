package currency

import (
	"github.com/smallbiznis/clinicbilling/internal/cache"
	"github.com/smallbiznis/clinicbilling/internal/currency/repository"
	"github.com/smallbiznis/clinicbilling/internal/currency/service"
	"go.uber.org/fx"
)

var Module = fx.Module("currency.service",
	fx.Provide(cache.NewRateCache),
	fx.Provide(repository.Provide),
	fx.Provide(service.NewResolver),
)
