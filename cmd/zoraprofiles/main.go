// Command zoraprofiles runs the profile aggregation service or performs a
// single aggregation from the command line.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Keksclan/zoraprofiles/internal/settings"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := settings.New()

	root := &cobra.Command{
		Use:   "zoraprofiles",
		Short: "Batch lookup of Zora creator profiles and their latest coins",
		Long: `zoraprofiles aggregates Zora creator profiles and created coins for a
batch of handles or addresses, with an in-memory cache, request coalescing,
bounded concurrency and retries against the upstream API.

Configuration comes from the environment (ZORA_API_KEY, CONCURRENCY,
TIMEOUT_MS, ...); flags override it.`,
		Version:      version,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.String("api-key", "", "Zora API key (env ZORA_API_KEY)")
	pf.String("base-url", "", "Zora API base URL (env ZORA_API_BASE_URL)")
	pf.Int("concurrency", 0, "identifiers looked up in parallel (env CONCURRENCY)")
	pf.Int("retries", 0, "retries after the first upstream attempt (env RETRIES)")
	pf.Int("timeout-ms", 0, "per-attempt upstream timeout in milliseconds (env TIMEOUT_MS)")
	pf.Int("coins", 0, "created coins fetched per identifier (env COINS_COUNT)")
	pf.String("log-level", "", "debug, info, warn or error (env LOG_LEVEL)")
	pf.Bool("otel-stdout", false, "print trace spans to stderr (env OTEL_STDOUT)")
	bindFlags(v, pf, map[string]string{
		"api-key":     settings.KeyAPIKey,
		"base-url":    settings.KeyBaseURL,
		"concurrency": settings.KeyConcurrency,
		"retries":     settings.KeyRetries,
		"timeout-ms":  settings.KeyTimeoutMs,
		"coins":       settings.KeyCoinsCount,
		"log-level":   settings.KeyLogLevel,
		"otel-stdout": settings.KeyOTelStdout,
	})

	root.AddCommand(newServeCmd(v))
	root.AddCommand(newFetchCmd(v))
	return root
}

// bindFlags makes flags override the environment, but only when they are
// set explicitly so that flag zero values never hide env values.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) {
	for name, key := range keys {
		f := fs.Lookup(name)
		if f == nil {
			panic(fmt.Sprintf("unknown flag %q", name))
		}
		_ = v.BindPFlag(key, f)
	}
}
