package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "deckctl",
	Short: "Deckctl is a command line tool for interacting with the decksmith platform",
	Long: `deckctl is the command-line interface for the Decksmith slide deck generation platform.

Decksmith generates complete slide decks asynchronously: submit a topic, poll the
task while it moves through the pipeline (outline, per-slide content, images,
compilation), then download the finished archive.

Common workflows:

  Submit a new deck:
    deckctl submit --topic "Kubernetes networking" --pages 8

  Check task status:
    deckctl status <task-id>

  Fetch the download link for a finished deck:
    deckctl artifact <task-id>

  Inspect and requeue permanently failed tasks:
    deckctl dlq list
    deckctl dlq retry <task-id>

Configuration:
  Set the API endpoint via environment variables or a config file:
    DECKSMITH_URL    API endpoint (default: http://localhost:7070)

For more information, visit: https://github.com/decksmith/decksmith`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".deckctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".deckctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "DECKSMITH_VARNAME"
	viper.SetEnvPrefix("DECKSMITH")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.deckctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:7070", "Decksmith Controller URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))
}
