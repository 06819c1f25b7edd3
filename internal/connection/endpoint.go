package connection

import (
	"fmt"
	"net/url"
	"strings"
)

// ResolveStreamURL derives the stream address from the backend origin:
// https becomes wss, http becomes ws, the host is kept and path is resolved
// against the origin. A non-empty token is appended as the tokenParam query
// parameter.
func ResolveStreamURL(origin, path, tokenParam, token string) (string, error) {
	base, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("parse origin: %w", err)
	}
	if base.Host == "" {
		return "", fmt.Errorf("origin %q has no host", origin)
	}

	switch strings.ToLower(base.Scheme) {
	case "https", "wss":
		base.Scheme = "wss"
	case "http", "ws":
		base.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported origin scheme %q", base.Scheme)
	}

	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parse stream path: %w", err)
	}
	if ref.IsAbs() || ref.Host != "" {
		return "", fmt.Errorf("stream path %q must be relative to the origin", path)
	}

	u := base.ResolveReference(ref)
	if token != "" {
		if tokenParam == "" {
			tokenParam = "token"
		}
		q := u.Query()
		q.Set(tokenParam, token)
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

// redactURL strips the query string for logging.
func redactURL(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i] + "?<redacted>"
	}
	return raw
}
