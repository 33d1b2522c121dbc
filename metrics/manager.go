package metrics

import (
	"sync"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-request-cache/types"
)

var customMetricsCreators = sync.Map{}

func RegisterMetricsManager(metricsManagerName string, creator types.MetricsManagerCreator) {
	customMetricsCreators.Store(metricsManagerName, creator)
}

// NewManager returns the metrics backend selected by config. A disabled or
// missing config yields a no-op manager so callers never nil-check.
func NewManager(logger types.Logger, config *types.MetricsConfig) (types.MetricsManager, error) {
	if config == nil {
		return NewNopMetrics(), nil
	}
	if !config.Enabled {
		if config.Listen != "" {
			return nil, types.Errorf(types.ErrMetricsIsDisabled, "listen %s requires metrics.enabled", config.Listen)
		}
		return NewNopMetrics(), nil
	}

	var (
		manager types.MetricsManager
		err     error
	)

	switch config.Type {
	case "prometheus":
		manager, err = NewPrometheusMetrics(logger, config)
	case "nop":
		manager = NewNopMetrics()
	default:
		creator, exists := customMetricsCreators.Load(config.Type)
		if !exists {
			return nil, types.Errorf(types.ErrMetricsTypeUnknown, "type: %s", config.Type)
		}
		manager, err = creator.(types.MetricsManagerCreator)(config.Config)
	}

	if err != nil {
		return nil, types.WrapError(err, "failed to initialize metrics manager")
	}

	logger.Info("Metrics manager initialized", zap.String("type", config.Type))
	return manager, nil
}
