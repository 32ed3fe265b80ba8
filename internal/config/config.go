// Package config reads process configuration from the environment. A .env
// file in the working directory is loaded first when present; CLI flags
// override anything read here.
package config

import (
	"errors"
	"fmt"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

var ErrConfig = errors.New("invalid configuration")

type Config struct {
	StoreDir     string `env:"WAMEDIA_STORE_DIR,default=./store" validate:"required"`
	LogLevel     string `env:"WAMEDIA_LOG_LEVEL,default=warn" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Concurrency  int    `env:"WAMEDIA_CONCURRENCY,default=4" validate:"min=1"`
	DownloadRoot string `env:"WAMEDIA_DOWNLOAD_ROOT,default=." validate:"required"`
}

// Load reads .env (if any) and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return cfg, cfg.Validate()
}

// FromEnvSet parses and validates cfg from an explicit variable set.
func FromEnvSet(es env.EnvSet) (Config, error) {
	var cfg Config
	if err := env.Unmarshal(es, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return nil
}
