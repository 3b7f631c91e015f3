package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"tryonapi/config"
	"tryonapi/controllers"
	"tryonapi/services"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the try-on HTTP API",
		Example: `  # Start on $PORT (default 8080)
  tryonapi serve

  # Start on a custom port
  tryonapi serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if port != "" {
				cfg.Port = port
			}
			if !cfg.HasCredential() {
				return services.NewMissingCredentialError(config.AccessTokenKey)
			}

			if cfg.SentryDSN != "" {
				err := sentry.Init(sentry.ClientOptions{
					Dsn:              cfg.SentryDSN,
					Environment:      cfg.Env,
					Release:          "tryonapi@" + version,
					TracesSampleRate: 1.0,
				})
				if err != nil {
					return fmt.Errorf("sentry.Init: %w", err)
				}
				defer sentry.Flush(2 * time.Second)
			}

			assets, err := newAssetStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			hosts, err := services.NewSpaceHostCache(&http.Client{Timeout: 30 * time.Second}, cfg.HuggingFaceAPIURL, cfg.HFAccessToken)
			if err != nil {
				return err
			}
			gateway := services.NewGradioGateway(cfg, hosts)
			resolver := services.NewImageResolver(assets)

			e := controllers.SetupServer(cfg, gateway, resolver)
			e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(3)))
			e.Use(middleware.Logger())
			e.Use(middleware.Recover())
			e.Use(sentryecho.New(sentryecho.Options{Repanic: true}))

			log.Printf("[boot] Space=%s AssetRoot=%s Timeout=%s", cfg.Space, cfg.AssetRoot, cfg.GenerationTimeout)

			serverErr := make(chan error, 1)
			go func() {
				if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			select {
			case <-cmd.Context().Done():
				log.Println("Shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return e.Shutdown(shutdownCtx)
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "Port to listen on (overrides $PORT)")

	return cmd
}

// newAssetStore serves local image references from R2 when a bucket is
// configured and from the asset directory otherwise.
func newAssetStore(ctx context.Context, cfg *config.Config) (services.AssetStore, error) {
	if !cfg.AssetBucket.Enabled() {
		return services.FSAssetStore{Root: cfg.AssetRoot}, nil
	}
	awsService := &services.AWSService{}
	if err := awsService.InitPresignClient(ctx, cfg.AssetBucket); err != nil {
		return nil, fmt.Errorf("failed to initialize R2 asset store: %w", err)
	}
	log.Printf("[boot] Local images are read from bucket %s/%s", cfg.AssetBucket.Bucket, cfg.AssetBucket.Prefix)
	return &services.R2AssetStore{
		AWS:        awsService,
		Bucket:     cfg.AssetBucket.Bucket,
		Prefix:     cfg.AssetBucket.Prefix,
		HTTPClient: &http.Client{},
	}, nil
}
