package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// setupMetrics installs a global meter provider that dumps the engine
// counters to stderr on exit when --metrics is set.
func setupMetrics(cmd *cobra.Command) (func(), error) {
	enabled, err := cmd.Root().PersistentFlags().GetBool("metrics")
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics flag: %w", err)
	}
	if !enabled {
		return func() {}, nil
	}
	exporter, err := stdoutmetric.New(
		stdoutmetric.WithPrettyPrint(),
		stdoutmetric.WithWriter(cmd.ErrOrStderr()),
	)
	if err != nil {
		return nil, fmt.Errorf("create stdout metric exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
	)
	otel.SetMeterProvider(provider)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "metrics: shutdown error: %v\n", err)
		}
	}, nil
}
