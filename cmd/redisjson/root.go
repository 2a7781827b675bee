package main

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/bootjp/redisjson/client"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "redisjson",
	Short: "Run redis commands with JSON encoded arguments and decoded replies",
	Long: `redisjson sends commands through the JSON layer: object and array
arguments are stored as JSON text and JSON replies are printed decoded.

Every flag can also be set through the environment with the REDISJSON_
prefix, e.g. REDISJSON_ADDR=localhost:6380. .env and .env.local in the
working directory are read first.`,
	SilenceUsage:      true,
	PersistentPreRunE: bindFlags,
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("addr", "localhost:6379", "server address")
	flags.String("password", "", "AUTH password")
	flags.Int("db", 0, "database number")
	flags.Duration("timeout", 5*time.Second, "deadline for the whole invocation")
	flags.String("log-level", "warn", "debug, info, warn or error")

	rootCmd.AddCommand(doCmd, txCmd, commandsCmd)
}

func initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("redisjson")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func bindFlags(cmd *cobra.Command, _ []string) error {
	return errors.WithStack(viper.BindPFlags(cmd.Flags()))
}

func newLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		level = slog.LevelWarn
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// connect returns a client for the configured server and a context bounded
// by --timeout. The returned func releases both.
func connect(parent context.Context) (*client.Client, context.Context, func()) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     viper.GetString("addr"),
		Password: viper.GetString("password"),
		DB:       viper.GetInt("db"),
	})
	ctx, cancel := context.WithTimeout(parent, viper.GetDuration("timeout"))
	c := client.New(rdb, client.WithLogger(newLogger()))
	return c, ctx, func() {
		cancel()
		_ = rdb.Close()
	}
}
