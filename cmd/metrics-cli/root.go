package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/cloud-platform/team-metrics/internal/metrics-service/app"
	"github.com/cloud-platform/team-metrics/shared/config"
)

var (
	configFile string
	jsonOutput bool
	noColor    bool
	verbose    bool

	rootCtx = context.Background()

	// components 在 PersistentPreRunE 中初始化
	components *app.App
)

var rootCmd = &cobra.Command{
	Use:           "metrics-cli",
	Short:         "Inspect team metrics, reports and alerts.",
	Long:          `metrics-cli reads the same sources as the metrics service and prints velocity, quality, workload, reports and alerts.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if noColor {
			color.NoColor = true
		}
		return setup()
	},
	PersistentPostRunE: func(*cobra.Command, []string) error {
		if components != nil {
			return components.Close()
		}
		return nil
	},
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ./configs/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print raw JSON instead of tables")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr")
}

func setup() error {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	cfg, err := config.LoadWith(v)
	if err != nil {
		return err
	}

	// stdout 保留给输出与MCP协议
	log := zap.NewNop()
	if verbose {
		if log, err = zap.NewDevelopment(); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
	}

	components, err = app.New(rootCtx, cfg, log)
	return err
}
