package main

import (
	"fmt"
	"os"

	"idportal/internal/config"
	"idportal/internal/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const app = "idportal"

var (
	v       = viper.New()
	envFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "idportal serves the ID card application portal API",
		// serve is the default so a bare binary in a container starts the API
		RunE:         runServe,
		SilenceUsage: true,
	}
)

// @title           ID Portal API
// @version         1.0
// @description     ID card applications from invite to printed card.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "configs/.env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	_ = v.BindPFlag("LOG_DEBUG", rootCmd.PersistentFlags().Lookup("debug"))
	_ = v.BindPFlag("LOG_JSON", rootCmd.PersistentFlags().Lookup("json"))

	rootCmd.AddCommand(serveCmd, migrateCmd, createAdminCmd)
}

// setup resolves configuration and builds the process logger.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(v, envFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.LogJSON, cfg.LogDebug)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	return cfg, log, nil
}
