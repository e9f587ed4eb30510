package app

import (
	"context"
)

//go:generate mockgen -source=interfaces.go -destination=./app_mock.go -package=app

type Runner interface {
	Run(ctx context.Context) error
}

// Drainer finishes outstanding work once every runner has stopped.
type Drainer interface {
	Shutdown(ctx context.Context) error
}
