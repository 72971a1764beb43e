package main

import (
	"net/http"

	"go.uber.org/zap"

	"ordersync/internal/config"
	"ordersync/internal/httpapi"
	"ordersync/internal/httpx"
	"ordersync/internal/logging"
)

// Serves the one-time marketplace consent callback. Run it only during
// initial setup; sync runs never need it.
func main() {
	logger := logging.New()
	defer logger.Sync()

	cfg, err := config.Load("")
	if err != nil {
		logger.Fatal("config load failed", zap.Error(err))
	}
	if cfg.Server.Addr == "" {
		logger.Fatal("server.addr is required")
	}

	handler := &httpapi.Handler{
		Config: cfg,
		Client: httpx.New(httpx.DefaultBaseDelay),
		Log:    logger,
	}
	srv := httpapi.NewServer(handler)

	logger.Info("auth server listening", zap.String("addr", cfg.Server.Addr))
	if err := http.ListenAndServe(cfg.Server.Addr, srv.Router); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}
