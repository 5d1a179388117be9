// Package cli implements the lorafhss command.
package cli

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/headblockhead/lorafhss/internal/config"
)

var (
	// Global flags
	cfgFile string
	debug   bool
	nodeID  int

	// Shared state set during PersistentPreRun
	cfg *config.Config
	log = logrus.New()
)

// rootCmd is the base command for lorafhss.
var rootCmd = &cobra.Command{
	Use:   "lorafhss",
	Short: "Frequency-hopping LoRa link on an SX1276 module",
	Long: `lorafhss runs one node of a frequency-hopping LoRa link. Every node on
the link must share the same frequency table.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = config.DefaultPath()
		}
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return errors.Wrap(err, "load config")
		}
		if nodeID >= 0 {
			cfg.NodeID = uint16(nodeID)
		}
		log.SetOutput(cmd.ErrOrStderr())
		if debug || cfg.Debug {
			log.SetLevel(logrus.DebugLevel)
		} else {
			log.SetLevel(logrus.InfoLevel)
		}
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:"), err)
		os.Exit(1)
	}
}

// RootCmd returns the root cobra.Command for testing purposes.
func RootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.lorafhss/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log at debug level")
	rootCmd.PersistentFlags().IntVar(&nodeID, "id", -1, "node ID, overriding the config file")
}
