package config

import (
	"flag"
	"os"
	"time"

	"github.com/akuznecov/whisperkit/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-w string   websocket URL of the relay
//	-a string   base URL of the backend REST API
//	-d string   path to the local database
//	-i int      outbox retry interval in seconds
//	-r int      per-message retry ceiling
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-w", "-a", "-d", "-i", "-r"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.RelayWSURL, "w", cfg.RelayWSURL, "websocket URL of the relay")
	fs.StringVar(&cfg.APIBaseURL, "a", cfg.APIBaseURL, "base URL of the backend REST API")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "path to the local database")
	retryInterval := fs.Int("i", int(cfg.RetryInterval.Seconds()), "outbox retry interval (in seconds)")
	fs.IntVar(&cfg.MaxRetries, "r", cfg.MaxRetries, "per-message retry ceiling")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.RetryInterval = time.Duration(*retryInterval) * time.Second
}
