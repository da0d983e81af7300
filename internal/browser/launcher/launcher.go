// Package launcher picks the browser driver named in configuration.
package launcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/singlish-check/internal/browser"
	"github.com/xkilldash9x/singlish-check/internal/browser/cdp"
	"github.com/xkilldash9x/singlish-check/internal/browser/pwpage"
	"github.com/xkilldash9x/singlish-check/internal/browser/rodpage"
	"github.com/xkilldash9x/singlish-check/internal/config"
)

// New starts the configured driver.
func New(ctx context.Context, logger *zap.Logger, cfg config.BrowserConfig) (browser.Manager, error) {
	logger.Info("Starting browser driver.", zap.String("driver", cfg.Driver), zap.Bool("headless", cfg.Headless))
	switch cfg.Driver {
	case config.DriverChromedp, "":
		m, err := cdp.NewManager(ctx, logger, cfg)
		if err != nil {
			return nil, err
		}
		return m, nil
	case config.DriverRod:
		m, err := rodpage.NewManager(ctx, logger, cfg)
		if err != nil {
			return nil, err
		}
		return m, nil
	case config.DriverPlaywright:
		return pwpage.NewManager(logger, cfg), nil
	default:
		return nil, fmt.Errorf("unknown browser driver %q", cfg.Driver)
	}
}
