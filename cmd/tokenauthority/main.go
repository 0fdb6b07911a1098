package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dropDatabas3/tokenauthority/internal/config"
	"github.com/dropDatabas3/tokenauthority/internal/observability/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath = envOr("CONFIG_PATH", "")
		envFile    = ".env"
		cfg        *config.Config
	)

	root := &cobra.Command{
		Use:           "tokenauthority",
		Short:         "Token authority multi-cliente (emisión y verificación de tokens)",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .env es opcional
			if envFile != "" {
				_ = godotenv.Load(envFile)
			}
			c, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			cfg = c
			logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level, ServiceName: "tokenauthority"})
			cmd.SetContext(logger.ToContext(cmd.Context(), logger.L()))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", configPath, "Ruta al config.yaml (env CONFIG_PATH; vacío = sólo env)")
	root.PersistentFlags().StringVar(&envFile, "env-file", envFile, "Ruta a .env (si existe, se carga)")

	cfgFn := func() *config.Config { return cfg }
	root.AddCommand(
		sealSecretCmd(cfgFn),
		migrateCmd(cfgFn),
		clientsCmd(cfgFn),
		loginCmd(cfgFn),
		refreshCmd(cfgFn),
		checkCmd(cfgFn),
		revokeCmd(cfgFn),
		authreqCmd(cfgFn),
		serveCmd(cfgFn),
	)
	return root
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
