package server

import (
	"github.com/raysh454/browserfetch/internal/app"
	"github.com/raysh454/browserfetch/internal/logging"
)

type Config struct {
	// ListenAddr is the HTTP listen address for the API server.
	ListenAddr string

	// Sessions serves every session route. Required.
	Sessions *app.Manager

	Logger logging.Logger
}
