package server

import "go.uber.org/zap"

// NewLogger returns a development logger unless env is "production".
func NewLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
