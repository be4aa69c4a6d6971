package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"spinwish/internal/config"
	"spinwish/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "spinwish",
	Short: "Paid song requests and tips for live DJ sessions",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Init()
	},
	SilenceUsage: true,
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// @title SpinWish API
// @version 1.0
// @description Paid song requests and tips for live DJ sessions.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
