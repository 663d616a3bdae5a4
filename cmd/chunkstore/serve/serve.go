// Package servecmder provides the serve command running the chunkstore API.
package servecmder

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chunkstore/api"
	"github.com/papercomputeco/chunkstore/cmd/chunkstore/vectorstore"
	"github.com/papercomputeco/chunkstore/pkg/config"
	"github.com/papercomputeco/chunkstore/pkg/eventstream"
	"github.com/papercomputeco/chunkstore/pkg/eventstream/kafka"
	"github.com/papercomputeco/chunkstore/pkg/eventstream/nop"
	"github.com/papercomputeco/chunkstore/pkg/logger"
)

type serveCommander struct {
	listen      string
	kafka       string
	kafkaTopic  string
	logFile     string
	logLevel    string
	disableMCP  bool
	noInit      bool
	debug       bool
	flags       vectorstore.Flags
	logger      *slog.Logger
	closeLogger func() error
}

const serveLongDesc string = `Run the chunkstore API server.

The server exposes the configured vector store over HTTP:
  GET    /ping                 Health check
  POST   /v1/collection/init   Ensure the collection exists
  POST   /v1/chunks            Store chunks
  POST   /v1/query             Query similar chunks
  POST   /v1/chunks/get        Fetch chunks by document and number
  DELETE /v1/documents/:id     Delete every chunk of a document
  /mcp                         MCP tools (query_similar, get_chunks)

The collection is initialized before the server starts listening unless
--no-init is given.

With --kafka-brokers (or events.kafka_brokers in config.toml) every store
and delete also publishes a JSON change event to the configured topic.

Examples:
  chunkstore serve
  chunkstore serve --provider qdrant --listen :9000
  chunkstore serve --log-file chunkstore.log --log-level warn
  chunkstore serve --kafka-brokers localhost:9092`

const serveShortDesc string = "Run the chunkstore API server"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.run(cmd)
		},
	}

	config.AddStringFlag(cmd, config.StoreFlags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, config.StoreFlags, config.FlagKafka, &cmder.kafka)
	config.AddStringFlag(cmd, config.StoreFlags, config.FlagKafkaTopic, &cmder.kafkaTopic)
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also write JSON logs to this file")
	cmd.Flags().StringVar(&cmder.logLevel, "log-level", "info", "Minimum log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&cmder.disableMCP, "disable-mcp", false, "Do not mount the MCP server at /mcp")
	cmd.Flags().BoolVar(&cmder.noInit, "no-init", false, "Skip collection initialization on startup")
	vectorstore.AddFlags(cmd, &cmder.flags)

	return cmd
}

func (c *serveCommander) run(cmd *cobra.Command) error {
	if err := c.setupLogger(); err != nil {
		return err
	}
	defer func() { _ = c.closeLogger() }()

	cfg, err := vectorstore.LoadConfig(cmd, config.FlagListen, config.FlagKafka, config.FlagKafkaTopic)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	configDir, _ := cmd.Flags().GetString("config-dir")
	driver, err := vectorstore.Open(cmd.Context(), cfg, configDir, c.logger)
	if err != nil {
		return err
	}
	defer driver.Close()

	if !c.noInit {
		if err := driver.Initialize(cmd.Context()); err != nil {
			return err
		}
	}

	publisher, err := c.newPublisher(cfg.Events)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			c.logger.Warn("failed to close event publisher", "error", err)
		}
	}()

	server, err := api.NewServer(api.Config{
		ListenAddr: cfg.API.Listen,
		DisableMCP: c.disableMCP,
		Collection: cfg.VectorStore.Collection,
		Publisher:  publisher,
	}, driver, c.logger)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
		return server.Shutdown()
	}
}

// newPublisher returns a Kafka publisher when brokers are configured and a
// no-op publisher otherwise.
func (c *serveCommander) newPublisher(events config.EventsConfig) (eventstream.Publisher, error) {
	brokers := events.Brokers()
	if len(brokers) == 0 {
		return nop.NewPublisher(), nil
	}

	p, err := kafka.NewPublisher(kafka.Config{
		Brokers: brokers,
		Topic:   events.KafkaTopic,
	}, c.logger)
	if err != nil {
		return nil, fmt.Errorf("creating kafka publisher: %w", err)
	}
	c.logger.Info("publishing change events", "brokers", brokers, "topic", events.KafkaTopic)
	return p, nil
}

// setupLogger writes pretty logs to stderr and, with --log-file, JSON logs to
// the file as well. --debug overrides --log-level.
func (c *serveCommander) setupLogger() error {
	level, err := logger.ParseLevel(c.logLevel)
	if err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}

	pretty := logger.New(
		logger.WithLevel(level),
		logger.WithDebug(c.debug),
		logger.WithPretty(true),
		logger.WithWriter(os.Stderr),
	)

	if c.logFile == "" {
		c.logger = pretty
		c.closeLogger = func() error { return nil }
		return nil
	}

	f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}

	c.logger = logger.Multi(pretty, logger.New(
		logger.WithLevel(level),
		logger.WithDebug(c.debug),
		logger.WithJSON(true),
		logger.WithWriter(f),
		logger.WithAttrs("pid", os.Getpid()),
	))
	c.closeLogger = f.Close
	return nil
}
