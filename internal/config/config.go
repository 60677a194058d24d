// Package config resolves runtime settings from the environment.
//
// Settings are read at call time by the surfaces that need them; the core
// engines never cache them beyond a single call.
package config

import (
	"os"
	"strconv"
)

const (
	// DefaultTopK is the number of memories injected when the caller does
	// not choose a K.
	DefaultTopK = 5

	EnvDBPath          = "MEMVAULT_DB"
	EnvTopK            = "MEMVAULT_TOP_K"
	EnvActiveRetrieval = "MEMVAULT_ACTIVE_RETRIEVAL"
)

// Settings holds the resolved retrieval configuration.
type Settings struct {
	// TopK caps similarity results; <= 0 means "inject everything".
	TopK int
	// ActiveRetrieval exposes retrieval as a callable tool so the agent
	// picks K and the matching mode per query, instead of automatic
	// injection.
	ActiveRetrieval bool
}

// FromEnv reads settings from environment variables, applying defaults.
func FromEnv() Settings {
	s := Settings{TopK: DefaultTopK}
	if v := os.Getenv(EnvTopK); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.TopK = n
		}
	}
	if v := os.Getenv(EnvActiveRetrieval); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			s.ActiveRetrieval = b
		}
	}
	return s
}
