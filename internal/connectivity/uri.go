package connectivity

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// IsLocalURI reports whether any host named by uri is a loopback, unspecified
// or unix-socket address. Both URL and keyword/value (DSN) forms are accepted.
func IsLocalURI(uri string) (bool, error) {
	hosts, err := uriHosts(uri)
	if err != nil {
		return false, err
	}
	for _, h := range hosts {
		if isLocalHost(h) {
			return true, nil
		}
	}
	return false, nil
}

func uriHosts(uri string) ([]string, error) {
	if !strings.Contains(uri, "://") {
		cfg, err := pgconn.ParseConfig(uri)
		if err != nil {
			return nil, fmt.Errorf("parse dsn: %w", err)
		}
		return configHosts(cfg), nil
	}

	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parse uri: %w", err)
	}
	hosts := urlHosts(u)
	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
		// pgx resolves query overrides, fallbacks and PGHOST; check what it would dial too.
		if cfg, err := pgconn.ParseConfig(uri); err == nil {
			hosts = append(hosts, configHosts(cfg)...)
		}
	}
	return hosts, nil
}

// urlHosts lists the authority hosts, or the host query parameter when it
// overrides them.
func urlHosts(u *url.URL) []string {
	raw := u.Host
	if q := u.Query()["host"]; len(q) > 0 {
		raw = q[len(q)-1]
	}
	if raw == "" {
		return []string{""}
	}
	var hosts []string
	for _, part := range strings.Split(raw, ",") {
		hosts = append(hosts, stripPort(strings.TrimSpace(part)))
	}
	return hosts
}

func configHosts(cfg *pgconn.Config) []string {
	hosts := []string{cfg.Host}
	for _, fb := range cfg.Fallbacks {
		hosts = append(hosts, fb.Host)
	}
	return hosts
}

func stripPort(hostport string) string {
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}
	return strings.Trim(hostport, "[]")
}

func isLocalHost(host string) bool {
	h := strings.ToLower(strings.TrimSpace(host))
	switch {
	case h == "":
		// libpq falls back to the local socket.
		return true
	case strings.HasPrefix(h, "/"):
		return true
	case h == "localhost", strings.HasSuffix(h, ".localhost"):
		return true
	}
	if ip := net.ParseIP(h); ip != nil {
		return ip.IsLoopback() || ip.IsUnspecified()
	}
	return false
}
