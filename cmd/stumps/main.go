// stumps CLI - runs mocked proxy hosts from persisted state and a boot config.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Pankaj-chhatani/stumps/internal/ports"
	"github.com/Pankaj-chhatani/stumps/pkg/cliconfig"
	"github.com/Pankaj-chhatani/stumps/pkg/host"
	"github.com/Pankaj-chhatani/stumps/pkg/logging"
	"github.com/Pankaj-chhatani/stumps/pkg/store"
)

// Build-time variables set via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "stumps",
		Short:         "Programmable HTTP mocking and recording proxy",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the stumps version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "stumps %s (%s)\n", version, commit)
		},
	}
}

func newServeCmd() *cobra.Command {
	var (
		configPath string
		dataFile   string
		logLevel   string
		logFormat  string
		logFile    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load persisted proxy hosts and serve until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := cliconfig.Default()
			if configPath != "" {
				loaded, err := cliconfig.Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}

			// Flags override the config file.
			if dataFile != "" {
				cfg.DataFile = dataFile
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}
			if logFormat != "" {
				cfg.Logging.Format = logFormat
			}
			if logFile != "" {
				cfg.Logging.File = logFile
			}

			return runServe(cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a stumps.yaml boot config")
	cmd.Flags().StringVar(&dataFile, "data", "", "SQLite database path (default: in-memory only)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&logFormat, "log-format", "", "log format (text, json)")
	cmd.Flags().StringVar(&logFile, "log-file", "", "rotating log file path")
	return cmd
}

func runServe(cfg *cliconfig.Config) error {
	logCfg := logging.Config{
		Level:  logging.ParseLevel(cfg.Logging.Level),
		Format: logging.ParseFormat(cfg.Logging.Format),
	}
	if cfg.Logging.File != "" {
		logCfg.File = &logging.FileConfig{Path: cfg.Logging.File, MaxSizeMB: 50, MaxBackups: 3}
	}
	log := logging.New(logCfg)

	var da store.DataAccess = store.NewMemory()
	if cfg.DataFile != "" {
		sqlite, err := store.OpenSQLite(cfg.DataFile)
		if err != nil {
			return err
		}
		da = sqlite
		log.Info("using sqlite store", "path", cfg.DataFile)
	}

	registry := host.NewRegistry(da, host.WithLogger(log))
	if err := registry.Load(); err != nil {
		return err
	}

	// Ensure hosts declared in the boot config exist.
	for _, h := range cfg.Hosts {
		if hostExists(registry, h.ExternalHostName) {
			continue
		}
		port := h.Port
		if port == 0 {
			port = ports.FindRandomOpen()
			if port == -1 {
				log.Error("no open port available", "host", h.ExternalHostName)
				continue
			}
		}
		created, err := registry.Create(h.ExternalHostName, port, h.UseSecureTransport, h.AutoStart)
		if err != nil {
			log.Error("failed to create host", "host", h.ExternalHostName, "error", err)
			continue
		}
		log.Info("host created", "host", h.ExternalHostName, "port", created.ListeningPort)
	}

	registry.StartAll()
	for _, inst := range registry.FindAll() {
		if inst.IsRunning() {
			log.Info("serving", "instance", inst.ID(),
				"port", inst.ListeningPort(), "upstream", inst.ExternalHostName())
		}
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	registry.StopAll()
	return nil
}

// hostExists reports whether any registered instance already fronts the
// given upstream host.
func hostExists(registry *host.Registry, externalHostName string) bool {
	for _, inst := range registry.FindAll() {
		if inst.ExternalHostName() == externalHostName {
			return true
		}
	}
	return false
}
