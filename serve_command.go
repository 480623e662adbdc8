package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/binge-hub/binge-hub/internal/logging"
	"github.com/binge-hub/binge-hub/internal/server"
	"github.com/binge-hub/binge-hub/internal/server/routes"
	"github.com/binge-hub/binge-hub/internal/version"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.logger(nil)
			if err != nil {
				return err
			}
			rt, err := ctx.buildRuntime(logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			store, err := ctx.openRatings()
			if err != nil {
				return err
			}

			cfg := rt.cfg
			fields := logging.BaseFields("startup", ctx.configPath)
			fields["lists"] = len(cfg.Catalog.ListIDs)
			fields["listen_port"] = cfg.Global.ListenPort
			fields["auth"] = cfg.Catalog.AuthMode()
			fields["cache_dir"] = cfg.Global.CacheDir
			fields["version"] = version.Full()
			logger.WithFields(fields).Info("配置加载完成")

			app, err := server.NewApp(server.AppOptions{
				Logger:         logger,
				Images:         rt.images,
				Catalog:        rt.metadata,
				Ratings:        store,
				ListIDs:        cfg.Catalog.ListIDs,
				RequestTimeout: cfg.Global.RequestTimeout.DurationValue(),
			})
			if err != nil {
				return err
			}
			routes.RegisterDiagnosticsRoutes(app, rt.inspectors(), rt.registry)

			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			sigCtx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return listen(sigCtx, app, cfg.Global.ListenPort, logger)
		},
	}
}

// listen 启动 Fiber 并在 ctx 结束时优雅关闭。
func listen(ctx context.Context, app *fiber.App, port int, logger *logrus.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"action": "listen",
			"port":   port,
		}).Info("Fiber 服务启动")
		errCh <- app.Listen(fmt.Sprintf(":%d", port), fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.WithField("action", "shutdown").Info("收到退出信号，停止接受新请求")
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			return fmt.Errorf("关闭 HTTP 服务失败: %w", err)
		}
		return nil
	}
}
