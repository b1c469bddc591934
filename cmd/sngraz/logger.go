package main

import (
	"github.com/septivank/sngraz/internal/config"
	"github.com/septivank/sngraz/internal/logging"
	"go.uber.org/zap"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(cfg.ServiceName, cfg.LogLevel)
}
