// Command teammesh serves agent teams over HTTP and routes single messages
// from the command line.
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hupe1980/teammesh/config"
	"github.com/hupe1980/teammesh/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "teammesh",
	Short:         "Route messages between teams of LLM agents",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("TEAMMESH_CONFIG"), "path to the TOML config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

// newLogger builds the process logger. json and console go through zerolog,
// text through slog.
func newLogger(cfg config.Log, out io.Writer) logging.Logger {
	level := logging.ParseLevel(cfg.Level)

	switch cfg.Format {
	case "text":
		return logging.NewLogger(&logging.LoggerConfig{Level: level, Format: "text", Output: out})
	case "console":
		zl := zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}).
			Level(logging.ZerologLevel(level)).With().Timestamp().Logger()
		return logging.NewZerologAdapter(zl)
	default:
		zl := zerolog.New(out).Level(logging.ZerologLevel(level)).With().Timestamp().Logger()
		return logging.NewZerologAdapter(zl)
	}
}
