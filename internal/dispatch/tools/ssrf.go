// SSRF guards for outbound tool calls, adapted from the teacher's
// cmd/http-worker/security package (four cooperating validators) into one
// URLGuard exercised by every Composio-style and built-in HTTP tool call
// before the request leaves the process.
package tools

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// URLGuard blocks outbound requests that target loopback/private/link-local
// addresses, non-http(s) schemes, or path-traversal/file-access patterns.
type URLGuard struct {
	blockedHostnames []string
	blockedPathParts []string
}

// NewURLGuard constructs a guard with the default blocklists.
func NewURLGuard() *URLGuard {
	return &URLGuard{
		blockedHostnames: []string{"localhost", "127.0.0.1", "::1", "0.0.0.0", "::"},
		blockedPathParts: []string{"file://", "../", "..\\", "/etc/", "/proc/", "/sys/", "c:/", "c:\\"},
	}
}

// Check validates rawURL end to end: scheme, hostname/IP, and path. Query
// parameters are checked with the same path rules since they're a common
// SSRF/file-access smuggling vector.
func (g *URLGuard) Check(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("scheme %q not allowed, only http/https", u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	for _, blocked := range g.blockedHostnames {
		if host == blocked {
			return fmt.Errorf("host %q is blocked (SSRF protection)", host)
		}
	}
	if ips, err := net.LookupIP(host); err == nil {
		for _, ip := range ips {
			if err := g.checkIP(ip); err != nil {
				return err
			}
		}
	}

	if err := g.checkPath(u.Path); err != nil {
		return err
	}
	for key, values := range u.Query() {
		for _, v := range values {
			if err := g.checkPath(v); err != nil {
				return fmt.Errorf("query parameter %q: %w", key, err)
			}
		}
	}
	return nil
}

func (g *URLGuard) checkIP(ip net.IP) error {
	switch {
	case ip.IsLoopback():
		return fmt.Errorf("ip %s is blocked (loopback)", ip)
	case ip.IsPrivate():
		return fmt.Errorf("ip %s is blocked (private network)", ip)
	case ip.IsLinkLocalUnicast():
		return fmt.Errorf("ip %s is blocked (link-local)", ip)
	case ip.IsMulticast():
		return fmt.Errorf("ip %s is blocked (multicast)", ip)
	case ip.IsUnspecified():
		return fmt.Errorf("ip %s is blocked (unspecified)", ip)
	default:
		return nil
	}
}

func (g *URLGuard) checkPath(p string) error {
	lower := strings.ToLower(p)
	for _, pattern := range g.blockedPathParts {
		if strings.Contains(lower, pattern) {
			return fmt.Errorf("path contains blocked pattern %q", pattern)
		}
	}
	return nil
}
