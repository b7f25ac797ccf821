// Package origin implements browser Origin header checks for the signaling
// WebSocket endpoint.
//
// The signaling server is typically deployed on a different host than the
// frontend, so cross-origin upgrades must be allowed, but only for origins
// the operator configured. With no configured allowlist the policy falls back
// to same-host only.
package origin

import (
	"net/url"
	"strconv"
	"strings"
)

// Normalize validates and normalizes a browser Origin header to the canonical
// scheme://host[:port] form, with default ports elided. The special value
// "null" is returned as-is.
func Normalize(originHeader string) (string, bool) {
	trimmed := strings.TrimSpace(originHeader)
	if trimmed == "" {
		return "", false
	}
	if trimmed == "null" {
		return "null", true
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	if u.User != nil || u.RawQuery != "" || u.Fragment != "" {
		return "", false
	}
	if u.Path != "" && u.Path != "/" {
		return "", false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}

	host, ok := normalizeHostPort(u.Host, scheme)
	if !ok {
		return "", false
	}
	return scheme + "://" + host, true
}

// Allowed reports whether the given Origin header may open a signaling
// connection against requestHost.
//
// A non-empty allowlist is authoritative: each entry is either "*" or a
// normalized origin. With an empty allowlist only same-host origins pass;
// scheme is intentionally not compared because a TLS-terminating proxy may
// present the request as plain HTTP.
func Allowed(originHeader, requestHost string, allowlist []string) bool {
	normalized, ok := Normalize(originHeader)
	if !ok {
		return false
	}

	if len(allowlist) > 0 {
		for _, allowed := range allowlist {
			if allowed == "*" || allowed == normalized {
				return true
			}
		}
		return false
	}

	scheme, rest, found := strings.Cut(normalized, "://")
	if !found {
		// "null" cannot match a host-based request.
		return false
	}
	reqHost, ok := normalizeHostPort(strings.ToLower(strings.TrimSpace(requestHost)), scheme)
	if !ok {
		return false
	}
	return rest == reqHost
}

// normalizeHostPort lowercases the hostname, validates the port and elides it
// when it is the scheme default.
func normalizeHostPort(hostport, scheme string) (string, bool) {
	hostname, rawPort, ok := splitHostPort(hostport)
	if !ok || hostname == "" {
		return "", false
	}
	hostname = strings.ToLower(hostname)

	var port uint64
	if rawPort != "" {
		n, err := strconv.ParseUint(rawPort, 10, 16)
		if err != nil || n == 0 {
			return "", false
		}
		port = n
	}
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		port = 0
	}

	host := hostname
	if strings.Contains(hostname, ":") {
		host = "[" + hostname + "]"
	}
	if port != 0 {
		host += ":" + strconv.FormatUint(port, 10)
	}
	return host, true
}

// splitHostPort splits an authority host[:port] string. IPv6 literals are
// returned without brackets; the port is not validated here.
func splitHostPort(rawHost string) (hostname, port string, ok bool) {
	if rawHost == "" {
		return "", "", false
	}

	if strings.HasPrefix(rawHost, "[") {
		end := strings.IndexByte(rawHost, ']')
		if end < 0 {
			return "", "", false
		}
		hostname = rawHost[1:end]
		rest := rawHost[end+1:]
		if rest == "" {
			return hostname, "", true
		}
		if !strings.HasPrefix(rest, ":") || len(rest) == 1 {
			return "", "", false
		}
		return hostname, rest[1:], true
	}

	switch strings.Count(rawHost, ":") {
	case 0:
		return rawHost, "", true
	case 1:
		h, p, _ := strings.Cut(rawHost, ":")
		if h == "" || p == "" {
			return "", "", false
		}
		return h, p, true
	default:
		// Unbracketed IPv6 literals are not valid authority components.
		return "", "", false
	}
}
