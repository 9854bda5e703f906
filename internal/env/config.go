package env

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	LogLevel  string `env:"RESPKV_LOG_LEVEL,default=info"`
	DebugHTTP bool   `env:"RESPKV_DEBUG_HTTP"`

	// Shards is the number of store shards, rounded up to a power of two
	Shards int `env:"RESPKV_SHARDS,default=64"`

	// MaxBufferSize bounds the unparsed bytes buffered per connection
	MaxBufferSize int `env:"RESPKV_MAX_BUFFER_SIZE,default=67108864"`

	// MaxDepth bounds how deeply a request may nest arrays
	MaxDepth int `env:"RESPKV_MAX_DEPTH,default=32"`

	CommandTimeout time.Duration `env:"RESPKV_COMMAND_TIMEOUT,default=3s"`

	Trace bool `env:"RESPKV_TRACE"`
}

// LoadConfig reads the environment, after loading any values from .env.local.
// Variables already set in the environment win over the file.
func LoadConfig(ctx context.Context) (*Config, error) {
	return loadConfig(ctx, envconfig.OsLookuper())
}

func loadConfig(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	config := Config{}

	if err := godotenv.Load(".env.local"); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	if err := envconfig.ProcessWith(ctx, &config, lookuper); err != nil {
		return nil, err
	}

	return &config, nil
}
