// Package main provides meshctl, the operator CLI for a mesh node.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/crisisnet/meshcore/internal/command"
	"github.com/crisisnet/meshcore/internal/config"
	"github.com/crisisnet/meshcore/internal/domain/mesh"
	"github.com/crisisnet/meshcore/internal/infrastructure/redpanda"
	"github.com/crisisnet/meshcore/internal/observability/logging"
	"github.com/crisisnet/meshcore/internal/platform"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "meshctl",
		Short:        "Operate a crisis mesh node",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(stateCmd())
	rootCmd.AddCommand(alertCmd())
	rootCmd.AddCommand(sendCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(topicsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// env loads configuration and a console logger for one CLI invocation
func env() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Development: true, Service: "meshctl"})
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func openStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*platform.Storage, error) {
	return platform.OpenStore(ctx, cfg, logger, nil)
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Write the default hospital network into an empty store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := env()
			if err != nil {
				return err
			}
			defer logger.Sync()

			storage, err := openStorage(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer storage.Close()

			cfg.SeedOnEmpty = true
			return platform.Seed(cmd.Context(), storage.Store, cfg, logger)
		},
	}
}

func stateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Print the current snapshot as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := env()
			if err != nil {
				return err
			}
			defer logger.Sync()

			storage, err := openStorage(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer storage.Close()

			snap, err := storage.Store.Load(cmd.Context())
			if err != nil {
				return err
			}

			section, _ := cmd.Flags().GetString("section")
			var out interface{} = snap
			switch section {
			case "":
			case "hospitals":
				out = snap.Hospitals
			case "supply":
				out = snap.SupplyRequests
			case "transfers":
				out = snap.TransferRequests
			case "transports":
				out = snap.TransportRequests
			case "alerts":
				out = snap.Alerts
			case "staff":
				out = snap.Staff
			case "patients":
				out = snap.Patients
			default:
				return fmt.Errorf("unknown section %q", section)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().String("section", "", "Print one collection: hospitals, supply, transfers, transports, alerts, staff or patients")
	return cmd
}

func alertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alert",
		Short: "Broadcast an emergency alert from this node",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := env()
			if err != nil {
				return err
			}
			defer logger.Sync()

			message, _ := cmd.Flags().GetString("message")
			severity, _ := cmd.Flags().GetString("severity")
			sender, _ := cmd.Flags().GetString("sender")

			storage, err := openStorage(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer storage.Close()

			engines := platform.NewEngines(storage.Store, nil, logger, nil)
			a, err := engines.Alert.Broadcast(cmd.Context(), message, mesh.AlertSeverity(severity), sender)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "alert %s broadcast\n", a.ID)
			return nil
		},
	}
	cmd.Flags().String("message", "", "Alert text")
	cmd.Flags().String("severity", string(mesh.AlertInfo), "info, warning or critical")
	cmd.Flags().String("sender", "", "Display name of the sender")
	_ = cmd.MarkFlagRequired("message")
	_ = cmd.MarkFlagRequired("sender")
	return cmd
}

func sendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <type> <payload-json>",
		Short: "Publish a command to the command topic",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := env()
			if err != nil {
				return err
			}
			defer logger.Sync()

			node, _ := cmd.Flags().GetString("node")
			id, _ := cmd.Flags().GetString("id")
			if id == "" {
				id = uuid.NewString()
			}
			if !json.Valid([]byte(args[1])) {
				return fmt.Errorf("payload is not valid JSON")
			}

			c := command.Command{
				ID:      id,
				Type:    command.Type(args[0]),
				NodeID:  node,
				Payload: json.RawMessage(args[1]),
			}
			data, err := json.Marshal(c)
			if err != nil {
				return err
			}
			// Round-trip through the worker's decoder so bad envelopes fail here
			if _, err := command.Decode(data); err != nil {
				return err
			}

			producerCfg := redpanda.DefaultProducerConfig()
			producerCfg.Brokers = cfg.KafkaBrokers
			producer, err := redpanda.NewProducer(producerCfg, logger)
			if err != nil {
				return err
			}
			defer producer.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			if err := producer.Publish(ctx, cfg.CommandTopic, node, data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "command %s sent to %s\n", id, cfg.CommandTopic)
			return nil
		},
	}
	cmd.Flags().String("node", "", "Originating node identifier")
	cmd.Flags().String("id", "", "Command identifier; a UUID is generated when empty")
	_ = cmd.MarkFlagRequired("node")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create store tables and broker topics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := env()
			if err != nil {
				return err
			}
			defer logger.Sync()

			// Opening the store applies the driver's schema
			storage, err := openStorage(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			storage.Close()
			logger.Info("store schema applied", zap.String("driver", cfg.StoreDriver))

			if skip, _ := cmd.Flags().GetBool("skip-topics"); skip {
				return nil
			}
			admin, err := redpanda.NewAdmin(cfg.KafkaBrokers, logger)
			if err != nil {
				return err
			}
			defer admin.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			return admin.EnsureTopics(ctx)
		},
	}
	cmd.Flags().Bool("skip-topics", false, "Only apply the store schema")
	return cmd
}

func topicsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topics",
		Short: "List broker topics and the command worker's lag",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List topics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := env()
			if err != nil {
				return err
			}
			defer logger.Sync()

			admin, err := redpanda.NewAdmin(cfg.KafkaBrokers, logger)
			if err != nil {
				return err
			}
			defer admin.Close()

			topics, err := admin.ListTopics(cmd.Context())
			if err != nil {
				return err
			}
			sort.Strings(topics)
			for _, t := range topics {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			return nil
		},
	})

	lagCmd := &cobra.Command{
		Use:   "lag",
		Short: "Show per-partition lag for a consumer group",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := env()
			if err != nil {
				return err
			}
			defer logger.Sync()

			group, _ := cmd.Flags().GetString("group")
			if group == "" {
				group = cfg.ConsumerGroup
			}

			admin, err := redpanda.NewAdmin(cfg.KafkaBrokers, logger)
			if err != nil {
				return err
			}
			defer admin.Close()

			lag, err := admin.ConsumerLag(cmd.Context(), group)
			if err != nil {
				return err
			}
			for topic, partitions := range lag {
				for p, n := range partitions {
					fmt.Fprintf(cmd.OutOrStdout(), "%s[%d]\t%d\n", topic, p, n)
				}
			}
			return nil
		},
	}
	lagCmd.Flags().String("group", "", "Consumer group; defaults to CONSUMER_GROUP")
	cmd.AddCommand(lagCmd)

	return cmd
}
