package cli

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/KafClaw/taskclaw/internal/agent"
	"github.com/KafClaw/taskclaw/internal/api"
	"github.com/KafClaw/taskclaw/internal/bus"
	"github.com/KafClaw/taskclaw/internal/channels"
	"github.com/KafClaw/taskclaw/internal/relay"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP command API plus the Slack and Kafka channels",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if !verbose {
		logLevel.Set(slog.LevelInfo)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	msgBus := bus.NewMessageBus()
	loop := agent.NewLoop(agent.LoopOptions{
		Bus:      msgBus,
		Pipeline: rt.pipeline,
		Timeout:  cfg.Model.Timeout,
		Workers:  cfg.Pipeline.Workers,
	})

	var started []channels.Channel
	if cfg.Channels.Slack.Enabled {
		slack, err := channels.NewSlackChannel(cfg.Channels.Slack, msgBus, nil)
		if err != nil {
			return fmt.Errorf("slack channel: %w", err)
		}
		if err := slack.Start(ctx); err != nil {
			return fmt.Errorf("start slack channel: %w", err)
		}
		started = append(started, slack)
	}
	defer func() {
		for _, ch := range started {
			ch.Stop()
		}
	}()

	errCh := make(chan error, 4)
	if cfg.Kafka.Enabled {
		producer := relay.NewKafkaProducer(cfg.Kafka.Brokers)
		defer producer.Close()
		r := relay.New(relay.Options{
			Bus:         msgBus,
			Consumer:    relay.NewKafkaConsumer(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, []string{cfg.Kafka.CommandTopic}),
			Producer:    producer,
			ResultTopic: cfg.Kafka.ResultTopic,
		})
		go func() { errCh <- r.Run(ctx) }()
	}

	go msgBus.DispatchOutbound(ctx)
	go func() { errCh <- loop.Run(ctx) }()

	addr := net.JoinHostPort(cfg.Gateway.Host, strconv.Itoa(cfg.Gateway.Port))
	server := api.NewServer(api.Options{
		Addr:           addr,
		AuthToken:      cfg.Gateway.AuthToken,
		Processor:      rt.pipeline,
		Timeline:       rt.timeline,
		CommandTimeout: cfg.Model.Timeout,
	})
	go func() { errCh <- server.ListenAndServe(ctx) }()

	out := cmd.OutOrStdout()
	printHeader(out, "taskclaw serve")
	fmt.Fprintf(out, "API:     http://%s/api/v1/commands\n", addr)
	fmt.Fprintf(out, "Model:   %s (ready: %v)\n", cfg.Model.Name, rt.generator.Ready())
	fmt.Fprintf(out, "Backend: %s\n", cfg.Backend.Kind)
	fmt.Fprintf(out, "Slack:   %v\n", cfg.Channels.Slack.Enabled)
	fmt.Fprintf(out, "Kafka:   %v\n", cfg.Kafka.Enabled)

	select {
	case <-ctx.Done():
		slog.Info("Serve: shutting down")
		return nil
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	}
}
