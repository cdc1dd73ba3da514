package metrics

import "go.uber.org/fx"

var Module = fx.Provide(
	newMetricsProvider,
	newMetricsHandler,
)
