// -- cmd/root.go --
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/wjleong/zxgkquery/internal/config"
	"github.com/wjleong/zxgkquery/internal/observability"
)

// appConfig is the validated configuration, populated by the root command's
// PersistentPreRunE before any subcommand runs.
var appConfig *config.Config

// NewRootCommand builds the command tree. A fresh tree per invocation keeps
// flag state from leaking between runs.
func NewRootCommand() *cobra.Command {
	var cfgFile string
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:     "zxgkquery",
		Short:   "Batch court-enforcement record queries through a driven browser.",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.SetDefaults(v)
			if err := config.InitViper(v, cfgFile); err != nil {
				return err
			}
			if err := v.BindPFlag("browser.headless", cmd.Root().PersistentFlags().Lookup("headless")); err != nil {
				return err
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				// A fallback logger so the error itself is visible somewhere.
				observability.InitializeLogger(config.LoggerConfig{
					Level: "info", Format: "console", ServiceName: "zxgkquery",
				})
				return fmt.Errorf("loading configuration: %w", err)
			}
			appConfig = cfg

			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Info("Starting zxgkquery.", zap.String("version", Version))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml or ~/.zxgkquery/config.yaml)")
	rootCmd.PersistentFlags().Bool("headless", false, "run the browser headless")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the command tree under a signal-aware context.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		observability.GetLogger().Error("Command execution failed.", zap.Error(err))
		return err
	}
	return nil
}
