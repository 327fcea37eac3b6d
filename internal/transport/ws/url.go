package ws

import (
	"fmt"
	"net/url"
	"strings"
)

const defaultPath = "/ws"

// BuildURL turns a coordinator address into the websocket endpoint,
// mapping http(s) to ws(s) and adding the agent name to the query.
func BuildURL(baseURL, agentName string) (string, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return "", fmt.Errorf("empty server url")
	}
	if !strings.Contains(baseURL, "://") {
		baseURL = "ws://" + baseURL
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server url has no host")
	}

	if u.Path == "" || u.Path == "/" {
		u.Path = defaultPath
	}

	q := u.Query()
	if agentName != "" {
		q.Set("name", agentName)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}
