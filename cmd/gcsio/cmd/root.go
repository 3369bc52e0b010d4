// Package cmd implements the gcsio command line: small operational tools
// over the read accelerator (stat, cat, vectored range reads).
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/javi11/gcsio"
	"github.com/javi11/gcsio/config"
)

var (
	configFile   string
	configPrefix string
	logFile      string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "gcsio",
	Short: "Read accelerator tools for Cloud Storage analytics workloads",
	Long: `gcsio reads objects through the analytics read accelerator:
vectored range reads coalesced into parallel GETs, footer prefetch and
small-object caching.`,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "properties file with analytics-core.* options")
	rootCmd.PersistentFlags().StringVar(&configPrefix, "prefix", "", "prefix stripped from option keys")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "log to a rotating file instead of stderr")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if logFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    100, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		slog.SetDefault(slog.New(slog.NewJSONHandler(rotator, opts)))
		return nil
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
	return nil
}

// loadOptions builds read options from the --config properties file, if any.
func loadOptions() (*config.Options, error) {
	if configFile == "" {
		return config.Default(), nil
	}

	v := viper.New()
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", configFile, err)
	}

	props := make(map[string]string)
	for _, key := range v.AllKeys() {
		props[key] = v.GetString(key)
	}
	return config.FromMap(configPrefix, props)
}

func newFileSystem(ctx context.Context) (*gcsio.FileSystem, error) {
	opts, err := loadOptions()
	if err != nil {
		return nil, err
	}
	return gcsio.New(ctx, opts)
}
