// Package auth provides the bearer credential used for the REST resources and
// the live stream.
//
// The credential lives outside the process (a session file written by the
// login flow, or an environment variable) and is read again on every use so
// that rotation is picked up without a restart.
package auth

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// TokenSource yields the current bearer token. An empty token with a nil
// error means "no credential": callers connect anonymously.
type TokenSource interface {
	Token() (string, error)
}

// TokenFunc is a function adapter for TokenSource.
type TokenFunc func() (string, error)

func (f TokenFunc) Token() (string, error) {
	return f()
}

// StaticToken always returns the same token.
type StaticToken string

func (s StaticToken) Token() (string, error) {
	return string(s), nil
}

// FileTokenSource reads the token from a session file on every call.
type FileTokenSource struct {
	Path string
}

// Token reads and trims the session file. A missing file is not an error.
func (f FileTokenSource) Token() (string, error) {
	if f.Path == "" {
		return "", nil
	}

	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read token file: %w", err)
	}

	return parseToken(data), nil
}

// EnvTokenSource reads the token from an environment variable on every call.
type EnvTokenSource struct {
	Var string
}

func (e EnvTokenSource) Token() (string, error) {
	if e.Var == "" {
		return "", nil
	}
	return strings.TrimSpace(os.Getenv(e.Var)), nil
}

// Chain returns the first non-empty token from sources, in order.
// An error from any source aborts the lookup.
func Chain(sources ...TokenSource) TokenSource {
	return TokenFunc(func() (string, error) {
		for _, s := range sources {
			if s == nil {
				continue
			}
			tok, err := s.Token()
			if err != nil {
				return "", err
			}
			if tok != "" {
				return tok, nil
			}
		}
		return "", nil
	})
}

// FromConfig builds the token source for a session file and an environment
// variable. The file wins when both are set.
func FromConfig(tokenFile, tokenEnv string) TokenSource {
	return Chain(FileTokenSource{Path: tokenFile}, EnvTokenSource{Var: tokenEnv})
}

// parseToken accepts either a bare token or a "Bearer <token>" line.
func parseToken(data []byte) string {
	tok := strings.TrimSpace(string(data))
	if i := strings.IndexByte(tok, '\n'); i >= 0 {
		tok = strings.TrimSpace(tok[:i])
	}
	if len(tok) > 7 && strings.EqualFold(tok[:7], "bearer ") {
		tok = strings.TrimSpace(tok[7:])
	}
	return tok
}
