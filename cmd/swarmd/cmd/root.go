// Package cmd wires swarmd's three subcommands (tracker, seed, download)
// with spf13/cobra, binding flags through spf13/viper's layered
// precedence (flags > env > file), replacing the teacher's single
// flag.FlagSet main.go per spec.md §6's "concrete rather than
// illustrative" CLI surface.
package cmd

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mccartykim/swarmd/internal/config"
)

var v = config.New()

var rootCmd = &cobra.Command{
	Use:          "swarmd",
	Short:        "swarmd runs a tracker or a seeding/downloading client in a block-swarm file distribution network",
	SilenceUsage: true,
}

// Execute runs the root command; main calls this and nothing else.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("data-dir", ".", "directory for downloaded/seeded file content")
	rootCmd.PersistentFlags().Duration("io-timeout", config.DefaultIOTimeout, "per-request network timeout (loaded into the config only; network code uses its built-in timeouts)")
	_ = v.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	_ = v.BindPFlag("io_timeout", rootCmd.PersistentFlags().Lookup("io-timeout"))

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if lvl, err := log.ParseLevel(v.GetString("log_level")); err == nil {
			log.SetLevel(lvl)
		}
	}

	rootCmd.AddCommand(trackerCmd, seedCmd, downloadCmd)
}
