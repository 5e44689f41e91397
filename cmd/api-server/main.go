package main

import (
	"context"

	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	shop "github.com/xenking/storefront/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := shop.LoadConfig()
		if err != nil {
			return err
		}
		return shop.Run(ctx, lg, m, cfg)
	})
}
