package commands

import (
	"fmt"

	"github.com/eventfold/eventfold"
	"github.com/eventfold/eventfold/cli/styles"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// NewRecoverCommand creates the recover command, which republishes every
// event that was saved but never marked as published.
func NewRecoverCommand() *cobra.Command {
	var trace bool

	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Republish events missed by a crash between save and publish",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if trace {
				exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
				if err != nil {
					return fmt.Errorf("failed to create trace exporter: %w", err)
				}
				tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
				otel.SetTracerProvider(tp)
				defer func() { _ = tp.Shutdown(ctx) }()
			}

			cfg, err := loadConfig(configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			codec, err := newCodec(cfg)
			if err != nil {
				return err
			}

			eventBus, err := newBus(cfg.EventBus)
			if err != nil {
				return fmt.Errorf("event bus: %w", err)
			}
			flowBus, err := newBus(cfg.FlowBus)
			if err != nil {
				return fmt.Errorf("flow bus: %w", err)
			}

			publisher := eventfold.NewEventPublisher(eventBus, store,
				eventfold.WithFlowBus(flowBus),
				eventfold.WithPublisherCodec(codec),
			)
			defer func() { _ = publisher.Close() }()

			if err := publisher.RecoverUnpublished(ctx); err != nil {
				return fmt.Errorf("recovery failed: %w", err)
			}

			fmt.Println(styles.FormatSuccess("unpublished events republished"))
			return nil
		},
	}

	cmd.Flags().BoolVar(&trace, "trace", false, "Print OpenTelemetry spans to stdout")

	return cmd
}
