package config

import (
	"github.com/layer-3/certify/core"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// NewLogger builds a zap logger: JSON in production, console in development.
func (c LogConfig) NewLogger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.Level)
	if err != nil {
		return nil, errors.Wrapf(core.ErrInvalidArgument, "log.level: %v", err)
	}

	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}
