// Command storefront-lambda serves the storefront from AWS Lambda behind an
// API Gateway HTTP API (payload format 2.0).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"

	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/config"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logging.New("storefront-lambda", cfg.Log.Level, cfg.Log.Format)

	// The execution environment is reused across invocations, so the
	// application is built once per cold start.
	ctx := context.Background()
	application, err := app.New(ctx, cfg, log, app.Options{Serverless: true})
	if err != nil {
		log.WithError(err).Fatal("configure storefront")
	}
	if err := application.Start(ctx); err != nil {
		log.WithError(err).Fatal("start storefront")
	}

	lambda.Start(httpadapter.NewV2(application.Handler).ProxyWithContext)
}
