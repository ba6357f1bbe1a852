package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestResolveToken(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
		return p
	}
	tokenFile := write("token.txt", "  file-token\n")
	blankFile := write("blank.txt", " \n\t")
	envFile := write("app.env", TokenEnv+"=dotenv-token\n")
	otherEnv := write("other.env", "UNRELATED=1\n")
	legacyEnvFile := write("legacy.env", LegacyTokenEnv+"=legacy-dotenv\n")

	noEnv := func(string) string { return "" }
	withEnv := func(k string) string {
		if k == TokenEnv {
			return "env-token"
		}
		return ""
	}
	legacyOnly := func(k string) string {
		if k == LegacyTokenEnv {
			return "legacy-token"
		}
		return ""
	}
	both := func(k string) string {
		switch k {
		case TokenEnv:
			return "env-token"
		case LegacyTokenEnv:
			return "legacy-token"
		}
		return ""
	}

	tests := []struct {
		name    string
		src     TokenSource
		want    string
		wantErr error
	}{
		{"flag", TokenSource{Token: " flag-token ", Getenv: withEnv}, "flag-token", nil},
		{"both set", TokenSource{Token: "a", TokenFile: tokenFile}, "", ErrTokenAndTokenFile},
		{"file", TokenSource{TokenFile: tokenFile, Getenv: withEnv}, "file-token", nil},
		{"file missing", TokenSource{TokenFile: filepath.Join(dir, "nope")}, "", ErrTokenFileNotFound},
		{"file blank", TokenSource{TokenFile: blankFile}, "", ErrTokenFileEmpty},
		{"env wins over dotenv", TokenSource{EnvFile: envFile, Getenv: withEnv}, "env-token", nil},
		{"dotenv", TokenSource{EnvFile: envFile, Getenv: noEnv}, "dotenv-token", nil},
		{"legacy env", TokenSource{EnvFile: otherEnv, Getenv: legacyOnly}, "legacy-token", nil},
		{"current env wins over legacy", TokenSource{Getenv: both}, "env-token", nil},
		{"legacy env wins over dotenv", TokenSource{EnvFile: envFile, Getenv: legacyOnly}, "legacy-token", nil},
		{"legacy dotenv", TokenSource{EnvFile: legacyEnvFile, Getenv: noEnv}, "legacy-dotenv", nil},
		{"dotenv without key", TokenSource{EnvFile: otherEnv, Getenv: noEnv}, "", ErrNoToken},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ResolveToken(tt.src)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ResolveToken error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveToken: %v", err)
			}
			if got != tt.want {
				t.Fatalf("ResolveToken = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveTokenMissingExplicitEnvFile(t *testing.T) {
	t.Parallel()

	_, err := ResolveToken(TokenSource{
		EnvFile: filepath.Join(t.TempDir(), "missing.env"),
		Getenv:  func(string) string { return "" },
	})
	if err == nil || errors.Is(err, ErrNoToken) {
		t.Fatalf("ResolveToken error = %v, want read error", err)
	}
}
