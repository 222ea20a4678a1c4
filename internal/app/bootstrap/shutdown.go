// internal/app/bootstrap/shutdown.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Shutdown stops the background sweeps and the link workers, flushes
// traces, and disconnects from MongoDB.
func Shutdown(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if svc := deps.Services; svc != nil {
		if svc.Tasks != nil {
			svc.Tasks.Stop()
		}
		if svc.Links != nil {
			svc.Links.Stop()
		}
		if svc.Joins != nil {
			svc.Joins.Stop()
		}
		if svc.stopTracing != nil {
			if err := svc.stopTracing(ctx); err != nil {
				logger.Warn("trace flush failed", zap.Error(err))
			}
		}
	}

	if deps.MongoClient != nil {
		logger.Info("disconnecting MongoDB client")
		if err := deps.MongoClient.Disconnect(ctx); err != nil {
			logger.Error("MongoDB disconnect failed", zap.Error(err))
			return err
		}
	}
	return nil
}
