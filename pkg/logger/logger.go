package logger

import (
	"go.uber.org/zap"
)

type Sugared = *zap.SugaredLogger

// New builds the service logger; env "prod" selects the JSON production encoder.
func New(env, service string) Sugared {
	var z *zap.Logger
	if env == "prod" {
		z, _ = zap.NewProduction()
	} else {
		z, _ = zap.NewDevelopment()
	}
	return z.Sugar().With("service", service)
}

// Nop returns a logger that discards everything (tests, optional collaborators).
func Nop() Sugared { return zap.NewNop().Sugar() }
