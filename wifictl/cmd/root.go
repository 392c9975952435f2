// Package cmd provides the command-line interface of wifictl.
package cmd

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sarchlab/wifictl/logging"
)

// envPrefix prefixes the environment variables that provide flag defaults.
const envPrefix = "WIFICTL_"

var logger = logging.Noop()

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "wifictl",
	Short: "Closed-loop AP transmit-power control over a simulated WiFi network.",
	Long: `wifictl runs a discrete-event WiFi simulation that reports per-station ` +
		`telemetry to a control process through shared memory and applies the ` +
		`transmit power the control process answers with.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("env-file", ".env", "File with WIFICTL_* variables to load")
	pf.String("log-level", "info", "Log level: debug, info, warn or error")
	pf.String("log-format", "text", "Log format: text or json")
	pf.String("log-file", "", "Write logs to a size-rotated file")
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		stop()
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, _ []string) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := loadEnvFile(envFile); err != nil {
		return err
	}

	if err := applyEnv(cmd.Flags()); err != nil {
		return err
	}

	level, _ := cmd.Flags().GetString("log-level")
	format, _ := cmd.Flags().GetString("log-format")
	file, _ := cmd.Flags().GetString("log-file")

	logger = logging.New(logging.Config{
		Level:  level,
		Format: format,
		File:   file,
	})

	return nil
}

// loadEnvFile loads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}

	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return err
}

// applyEnv sets every flag the user left untouched from its WIFICTL_
// variable, if any. --exchange-timeout reads WIFICTL_EXCHANGE_TIMEOUT.
func applyEnv(flags *pflag.FlagSet) error {
	var err error

	flags.VisitAll(func(f *pflag.Flag) {
		if err != nil || f.Changed {
			return
		}

		value, ok := os.LookupEnv(envName(f.Name))
		if !ok {
			return
		}

		err = flags.Set(f.Name, value)
	})

	return err
}

func envName(flag string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}
