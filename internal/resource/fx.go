package resource

import "go.uber.org/fx"

var Module = fx.Module("resource.registry",
	fx.Provide(NewRegistry),
)
