package config

import (
	"flag"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {

	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{name: "Test1 OK", args: []string{"cmd", "-w", "ws://relay:9090/v1/ws", "-a", "http://api:9090", "-d", "local.db", "-i", "10", "-r", "7"}, expectPanic: false,
			expected: &Config{RelayWSURL: "ws://relay:9090/v1/ws", APIBaseURL: "http://api:9090", DatabaseDSN: "local.db", RetryInterval: 10 * time.Second, MaxRetries: 7}},
		{name: "Test2 incorrect retry interval", args: []string{"cmd", "-i", "abc"}, expectPanic: true, expected: &Config{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.PanicOnError)

			os.Args = tt.args

			config := &Config{}

			if !tt.expectPanic {
				require.NotPanics(t, func() { parseFlags(config) })
				assert.Equal(t, tt.expected, config)
			} else {
				require.Panics(t, func() { parseFlags(config) })
			}
		})
	}
}
