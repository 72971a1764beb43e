package main

import (
	"context"
	"os"

	"go.uber.org/zap"

	"ordersync/internal/config"
	"ordersync/internal/creds"
	"ordersync/internal/db"
	"ordersync/internal/httpx"
	"ordersync/internal/logging"
	"ordersync/internal/platform"
	"ordersync/internal/sign"
	"ordersync/internal/store"
	"ordersync/internal/worker"
)

// One sync run per invocation; scheduling is left to cron or whatever calls
// this binary.
func main() {
	logger := logging.New()
	defer logger.Sync()

	cfg, err := config.Load("")
	if err != nil {
		logger.Fatal("config load failed", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	defer pool.Close()

	client := httpx.New(httpx.DefaultBaseDelay)
	tokens := creds.NewStore(cfg, client)

	var sources []platform.Source
	if cfg.Ebay.APIURL != "" {
		sources = append(sources, &platform.EbayFetcher{
			APIURL: cfg.Ebay.APIURL,
			Tokens: tokens,
			Client: client,
		})
	}
	if cfg.Amazon.APIURL != "" {
		sources = append(sources, &platform.AmazonFetcher{
			APIURL:        cfg.Amazon.APIURL,
			MarketplaceID: cfg.Amazon.MarketplaceID,
			Signer: sign.V4Signer{
				AccessKey: cfg.Amazon.SigningKey,
				SecretKey: cfg.Amazon.SigningSecret,
				Region:    cfg.Amazon.Region,
				Service:   cfg.Amazon.Service,
			},
			Tokens:      tokens,
			Client:      client,
			OrdersAfter: cfg.Amazon.OrdersAfter,
		})
	}
	if cfg.Woo.URL != "" {
		sources = append(sources, &platform.WooFetcher{
			URL:            cfg.Woo.URL,
			ConsumerKey:    cfg.Woo.ConsumerKey,
			ConsumerSecret: cfg.Woo.ConsumerSecret,
			PageSize:       cfg.Woo.PageSize,
			Client:         client,
		})
	}
	if len(sources) == 0 {
		logger.Fatal("no platforms configured")
	}

	w := &worker.Worker{
		Loader:  store.New(pool),
		Sources: sources,
		Config:  cfg,
		Log:     logger,
	}
	if err := w.SyncOnce(ctx); err != nil {
		logger.Error("sync run failed", zap.Error(err))
		os.Exit(1)
	}
}
