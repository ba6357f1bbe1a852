package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// TokenEnv is the environment variable consulted when neither a token nor a
// token file is given on the command line. LegacyTokenEnv is read when
// TokenEnv is unset.
const (
	TokenEnv       = "THREADSCHED_TOKEN"
	LegacyTokenEnv = "DISCORD_THREAD_SCHEDULER_TOKEN"
)

func lookupToken(get func(string) string) string {
	for _, k := range [...]string{TokenEnv, LegacyTokenEnv} {
		if tok := strings.TrimSpace(get(k)); tok != "" {
			return tok
		}
	}
	return ""
}

// TokenSource collects the places a bot token may come from.
type TokenSource struct {
	Token     string // --token
	TokenFile string // --token-file, relative to the working directory
	// EnvFile is an optional dotenv file. When empty, ./.env is read if present.
	EnvFile string

	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

// ResolveToken returns the token from the flag, then the token file, then the
// environment (real variables win over the dotenv file).
func ResolveToken(src TokenSource) (string, error) {
	flag := strings.TrimSpace(src.Token)
	file := strings.TrimSpace(src.TokenFile)
	if flag != "" && file != "" {
		return "", ErrTokenAndTokenFile
	}
	if flag != "" {
		return flag, nil
	}
	if file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return "", fmt.Errorf("%w: %s", ErrTokenFileNotFound, file)
			}
			return "", fmt.Errorf("read token file %s: %w", file, err)
		}
		tok := strings.TrimSpace(string(b))
		if tok == "" {
			return "", fmt.Errorf("%w: %s", ErrTokenFileEmpty, file)
		}
		return tok, nil
	}

	getenv := src.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if tok := lookupToken(getenv); tok != "" {
		return tok, nil
	}

	envFile := strings.TrimSpace(src.EnvFile)
	explicit := envFile != ""
	if !explicit {
		envFile = ".env"
	}
	vars, err := godotenv.Read(envFile)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("read env file %s: %w", envFile, err)
	}
	if tok := lookupToken(func(k string) string { return vars[k] }); tok != "" {
		return tok, nil
	}
	return "", ErrNoToken
}
