package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// parseEnv overlays environment variables onto config. A .env file in the
// working directory is loaded first when present; variables already set in
// the process environment win over it. Unset variables leave the current
// value untouched.
func parseEnv(config *Config) {
	_ = godotenv.Load()

	if err := env.Parse(config); err != nil {
		panic(err)
	}
}
