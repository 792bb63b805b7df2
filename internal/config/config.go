// Package config reads the nalsource command settings from the environment.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Config holds the settings shared by all subcommands. Command-line flags
// override the values loaded here.
type Config struct {
	Debug      bool
	Backend    string
	Parallel   int
	StartCodes bool
}

// Load reads DEBUG, NALSOURCE_BACKEND, NALSOURCE_PARALLEL and
// NALSOURCE_START_CODES.
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	cfg := Config{
		Debug:   getenv("DEBUG") != "",
		Backend: strings.ToLower(envOr(getenv, "NALSOURCE_BACKEND", "auto")),
	}

	var err error
	cfg.Parallel, err = strconv.Atoi(envOr(getenv, "NALSOURCE_PARALLEL", strconv.Itoa(runtime.GOMAXPROCS(0))))
	if err != nil || cfg.Parallel < 1 {
		return Config{}, fmt.Errorf("NALSOURCE_PARALLEL: want a positive integer, got %q", getenv("NALSOURCE_PARALLEL"))
	}

	cfg.StartCodes, err = strconv.ParseBool(envOr(getenv, "NALSOURCE_START_CODES", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("NALSOURCE_START_CODES: %w", err)
	}
	return cfg, nil
}

func envOr(getenv func(string) string, key, fallback string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return fallback
}
