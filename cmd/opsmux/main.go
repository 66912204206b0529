package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/joho/godotenv"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/opsmux/opsmux/pkg/adapter"
	"github.com/opsmux/opsmux/pkg/clients"
	"github.com/opsmux/opsmux/pkg/config"
	"github.com/opsmux/opsmux/pkg/connector"
	"github.com/opsmux/opsmux/pkg/credentials"
	"github.com/opsmux/opsmux/pkg/depgraph"
	"github.com/opsmux/opsmux/pkg/executor"
	"github.com/opsmux/opsmux/pkg/jsonx"
	"github.com/opsmux/opsmux/pkg/logger"
	"github.com/opsmux/opsmux/pkg/metasync"
	"github.com/opsmux/opsmux/pkg/task"

	// Import all adapters to register them
	_ "github.com/opsmux/opsmux/pkg/adapters"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "opsmux",
		Short: "opsmux - unified task dispatch for operational systems",
		Long: `opsmux dispatches typed tasks (queries, log searches, messages,
commands) against configured external systems through a single adapter
registry, and keeps a central metadata registry refreshed by crawling
each system's entities.`,
	}

	root.AddCommand(versionCmd())
	root.AddCommand(adaptersCmd())
	root.AddCommand(runCmd())
	root.AddCommand(syncCmd())
	root.AddCommand(graphCmd())
	root.AddCommand(statusCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("opsmux v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func adaptersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "adapters",
		Short: "List registered adapters, their tasks and required keys",
		Run: func(cmd *cobra.Command, args []string) {
			systems := adapter.List()
			sort.Slice(systems, func(i, j int) bool { return systems[i] < systems[j] })

			for _, system := range systems {
				a, err := adapter.Get(system)
				if err != nil {
					continue
				}

				fmt.Printf("%s\n", system)

				taskTypes := make([]string, 0, len(a.Tasks))
				for t := range a.Tasks {
					taskTypes = append(taskTypes, string(t))
				}
				sort.Strings(taskTypes)
				for _, t := range taskTypes {
					fmt.Printf("  task: %s (%s)\n", t, a.Tasks[task.Type(t)].Shape)
				}

				for _, set := range a.RequiredKeySets {
					keys := make([]string, 0, len(set))
					for k := range set {
						keys = append(keys, string(k))
					}
					sort.Strings(keys)
					fmt.Printf("  keys: %v\n", keys)
				}
			}
		},
	}
}

func runCmd() *cobra.Command {
	var configFile, connectorName, payloadFile string
	var timeGEq, timeLt int64

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one task against a configured connector",
		Long: `Execute one task against a configured connector. The payload file
is a JSON document with a "type" field selecting the task and exactly
one variant object (query, logs, message or command).

Example:
  opsmux run --config opsmux.yaml --connector prod-pg --payload query.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, conn, err := loadConnector(configFile, connectorName)
			if err != nil {
				return err
			}

			data, err := os.ReadFile(payloadFile)
			if err != nil {
				return fmt.Errorf("failed to read payload file %s: %w", payloadFile, err)
			}
			var payload task.Payload
			if err := jsonx.Unmarshal(data, &payload); err != nil {
				return fmt.Errorf("failed to parse payload file %s: %w", payloadFile, err)
			}

			tr := task.TimeRange{GEq: timeGEq, Lt: timeLt}
			if tr.GEq == 0 && tr.Lt == 0 {
				now := time.Now().Unix()
				tr = task.TimeRange{GEq: now - 3600, Lt: now}
			}

			exec := executor.New(adapter.GetRegistry())
			result, err := exec.Execute(cmd.Context(), conn.System, payload.Type, tr, &payload, conn)
			if err != nil {
				return err
			}

			encoded, err := jsonx.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(encoded))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "opsmux.yaml", "Path to configuration YAML file")
	cmd.Flags().StringVar(&connectorName, "connector", "", "Name of the configured connector (required)")
	cmd.Flags().StringVarP(&payloadFile, "payload", "p", "", "Path to task payload JSON file (required)")
	cmd.Flags().Int64Var(&timeGEq, "time-geq", 0, "Inclusive lower bound, epoch seconds (default: one hour ago)")
	cmd.Flags().Int64Var(&timeLt, "time-lt", 0, "Exclusive upper bound, epoch seconds (default: now)")
	_ = cmd.MarkFlagRequired("connector")
	_ = cmd.MarkFlagRequired("payload")

	return cmd
}

func syncCmd() *cobra.Command {
	var configFile, connectorName string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Crawl a connector's entities and publish them to the metadata registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, conn, err := loadConnector(configFile, connectorName)
			if err != nil {
				return err
			}
			if cfg.Registry.Endpoint == "" {
				return fmt.Errorf("no registry endpoint configured")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			return syncConnector(ctx, cfg, conn)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "opsmux.yaml", "Path to configuration YAML file")
	cmd.Flags().StringVar(&connectorName, "connector", "", "Name of the configured connector (required)")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "Sync timeout")
	_ = cmd.MarkFlagRequired("connector")

	return cmd
}

func syncConnector(ctx context.Context, cfg *config.Config, conn *connector.Connector) error {
	a, err := adapter.Get(conn.System)
	if err != nil {
		return err
	}
	if a.Listers == nil {
		return fmt.Errorf("system %s has no entity crawlers", conn.System)
	}
	if !adapter.IsUsable(conn, a) {
		return fmt.Errorf("connector %s does not satisfy any required key set for system %s", conn.Name, conn.System)
	}

	params, err := credentials.Resolve(conn)
	if err != nil {
		return err
	}

	client, err := a.NewClient(ctx, params)
	if err != nil {
		return err
	}
	if closer, ok := client.(interface{ Close() error }); ok {
		defer closer.Close() //nolint:errcheck
	}

	listers := a.Listers(client)
	if len(listers) == 0 {
		return fmt.Errorf("system %s has no entity crawlers", conn.System)
	}

	log := logger.Get().With(
		zap.String("component", "opsmux-cli"),
		zap.String("connector", conn.Name),
		zap.String("system", string(conn.System)))

	log.Info("starting metadata sync", zap.Int("categories", len(listers)))
	start := time.Now()

	httpClient := clients.NewHTTPClient(clients.DefaultHTTPConfig(), logger.Get())
	defer httpClient.Close() //nolint:errcheck

	publisher := metasync.NewRegistryPublisher(httpClient, cfg.Registry.Endpoint, cfg.Registry.Token)
	pipeline := metasync.NewPipeline(publisher)

	if err := pipeline.Sync(ctx, conn, listers); err != nil {
		return err
	}

	log.Info("metadata sync completed", zap.Duration("duration", time.Since(start)))
	return nil
}

func graphCmd() *cobra.Command {
	var intentsFile string

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Build a bidirectional dependency graph from intent declarations",
		Long: `Build a bidirectional dependency graph from a YAML file of intent
declarations. Each intent names a source workload, its namespace and
the workloads or services it talks to; the output graph carries both
upstream and downstream adjacency per node.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(intentsFile)
			if err != nil {
				return fmt.Errorf("failed to read intents file %s: %w", intentsFile, err)
			}

			var doc struct {
				Intents []depgraph.Intent `yaml:"intents"`
			}
			if err := yaml.Unmarshal(data, &doc); err != nil {
				return fmt.Errorf("failed to parse intents file %s: %w", intentsFile, err)
			}

			graph := depgraph.Build(doc.Intents)
			encoded, err := jsonx.MarshalIndent(graph, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(encoded))
			return nil
		},
	}

	cmd.Flags().StringVarP(&intentsFile, "intents", "i", "", "Path to intents YAML file (required)")
	_ = cmd.MarkFlagRequired("intents")

	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show host resource usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := host.Info()
			if err != nil {
				return err
			}
			fmt.Printf("Host: %s (%s %s)\n", info.Hostname, info.Platform, info.PlatformVersion)
			fmt.Printf("Uptime: %s\n", time.Duration(info.Uptime)*time.Second)

			if percents, err := cpu.Percent(time.Second, false); err == nil && len(percents) > 0 {
				fmt.Printf("CPU: %.1f%% of %d cores\n", percents[0], runtime.NumCPU())
			}

			if vm, err := mem.VirtualMemory(); err == nil {
				fmt.Printf("Memory: %.1f%% of %d MiB\n", vm.UsedPercent, vm.Total/1024/1024)
			}
			return nil
		},
	}
}

// loadConnector loads the configuration, initializes the logger from it
// and returns the named connector.
func loadConnector(configFile, connectorName string) (*config.Config, *connector.Connector, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("configuration error: %w", err)
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		Encoding:    cfg.Logging.Encoding,
	}); err != nil {
		return nil, nil, err
	}

	conn := cfg.FindConnector(connectorName)
	if conn == nil {
		return nil, nil, fmt.Errorf("connector %s not found in %s", connectorName, configFile)
	}
	return cfg, conn, nil
}
