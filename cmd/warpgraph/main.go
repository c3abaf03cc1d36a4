package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rohankatakam/warpgraph/internal/config"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	cfgFile    string
	verbose    bool
	writersCSV string
	logger     *logrus.Logger
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "warpgraph",
	Short: "warpgraph - a content-addressed, CRDT-backed property graph engine",
	Long: `warpgraph stores a property graph as a content-addressed log of
per-writer patches and materializes it into a bitmap-indexed view for fast
queries, converging regardless of patch delivery order.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = logrus.New()
		if verbose {
			logger.SetLevel(logrus.DebugLevel)
		} else {
			logger.SetLevel(logrus.InfoLevel)
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			logger.WithError(err).Warn("Failed to load config, using defaults")
			cfg = config.Default()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .warpgraph/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&writersCSV, "writers", "", "comma-separated writer ids to load (default: this process's writer.id only)")

	rootCmd.SetVersionTemplate(`warpgraph {{.Version}}
Build time: ` + BuildTime + `
Git commit: ` + GitCommit + `
`)

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(commitCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(verifyCmd)
}

// knownWriters returns the writer ids a commit/sync/verify should replay,
// from --writers if set, else the configured writer.id alone.
func knownWriters() ([]string, error) {
	if writersCSV != "" {
		var out []string
		for _, w := range strings.Split(writersCSV, ",") {
			w = strings.TrimSpace(w)
			if w != "" {
				out = append(out, w)
			}
		}
		return out, nil
	}
	if cfg.Writer.ID == "" {
		return nil, fmt.Errorf("no writer ids to load: set --writers or writer.id (WARPGRAPH_WRITER_ID)")
	}
	return []string{cfg.Writer.ID}, nil
}
