// Package systemcfg manages the operator-settable routing mode.
package systemcfg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/educore/tutor/internal/models"
	"github.com/educore/tutor/internal/storage"
)

// routingModeKey is the system_config row holding the active routing mode.
const routingModeKey = "ai_model_type"

// ConfigError reports a rejected configuration write. The prior value is
// retained.
type ConfigError struct {
	Value  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config value %q: %s", e.Value, e.Reason)
}

// IsConfigError reports whether err is a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// Service reads and writes the routing mode. It is a thin layer over storage:
// last-writer-wins, no caching, so every read reflects the latest committed
// write.
type Service struct {
	store  storage.Storage
	logger *zap.Logger
}

// NewService creates the routing-mode service.
func NewService(store storage.Storage, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Get returns the current routing configuration. A missing row means the mode
// was never set; HYBRID is the default.
func (s *Service) Get(ctx context.Context) (*models.RoutingConfig, error) {
	value, updatedBy, updatedAt, err := s.store.GetSystemConfig(ctx, routingModeKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &models.RoutingConfig{Mode: models.ModeHybrid}, nil
		}
		return nil, fmt.Errorf("read routing mode: %w", err)
	}
	mode := models.RoutingMode(value)
	if !models.ValidRoutingMode(mode) {
		// A corrupt row must not take the pipeline down.
		s.logger.Warn("stored routing mode invalid, using HYBRID", zap.String("value", value))
		mode = models.ModeHybrid
	}
	return &models.RoutingConfig{Mode: mode, UpdatedAt: updatedAt, UpdatedBy: updatedBy}, nil
}

// Set validates and persists a new routing mode. Invalid values are rejected
// with ConfigError and the prior mode is retained.
func (s *Service) Set(ctx context.Context, mode models.RoutingMode, updatedBy string) (*models.RoutingConfig, error) {
	if !models.ValidRoutingMode(mode) {
		return nil, &ConfigError{Value: string(mode), Reason: "mode must be HYBRID, LOCAL_ONLY, or CLOUD_ONLY"}
	}
	if err := s.store.SetSystemConfig(ctx, routingModeKey, string(mode), updatedBy); err != nil {
		return nil, fmt.Errorf("write routing mode: %w", err)
	}
	s.logger.Info("routing mode updated",
		zap.String("mode", string(mode)),
		zap.String("updated_by", updatedBy),
	)
	return &models.RoutingConfig{Mode: mode, UpdatedAt: time.Now().UTC(), UpdatedBy: updatedBy}, nil
}
