package validation

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

var ErrInvalidURL = errors.New("invalid base URL")

// BaseURLValidator checks the dashboard backend base URL before any
// request is built from it.
type BaseURLValidator struct {
	// AllowLocalhost permits loopback hosts, for development backends.
	AllowLocalhost bool
	// AllowPrivateIPs permits literal private-range addresses.
	AllowPrivateIPs bool
	MaxLength       int
}

// NewBaseURLValidator returns a validator that blocks loopback and private
// addresses unless allowLocal is set.
func NewBaseURLValidator(allowLocal bool) *BaseURLValidator {
	return &BaseURLValidator{
		AllowLocalhost:  allowLocal,
		AllowPrivateIPs: allowLocal,
		MaxLength:       2048,
	}
}

// ValidateAndNormalize returns the base URL without a trailing slash.
// A missing scheme defaults to https.
func (v *BaseURLValidator) ValidateAndNormalize(input string) (string, error) {
	input = strings.TrimSpace(input)

	if input == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	if v.MaxLength > 0 && len(input) > v.MaxLength {
		return "", fmt.Errorf("%w: too long (max %d characters)", ErrInvalidURL, v.MaxLength)
	}
	if strings.ContainsAny(input, "<>\"'` ") {
		return "", fmt.Errorf("%w: contains invalid characters", ErrInvalidURL)
	}

	if !strings.Contains(input, "://") {
		input = "https://" + input
	}

	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	if u.User != nil {
		return "", fmt.Errorf("%w: credentials are not allowed", ErrInvalidURL)
	}
	// Query strings are built per request.
	if u.RawQuery != "" || u.Fragment != "" {
		return "", fmt.Errorf("%w: query or fragment not allowed", ErrInvalidURL)
	}
	if strings.Contains(u.Path, "..") {
		return "", fmt.Errorf("%w: directory traversal in path", ErrInvalidURL)
	}
	if err := v.checkHost(u.Hostname()); err != nil {
		return "", err
	}

	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u.String(), nil
}

func (v *BaseURLValidator) checkHost(hostname string) error {
	if hostname == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	if !v.AllowLocalhost && isLocalhost(hostname) {
		return fmt.Errorf("%w: localhost is not permitted", ErrInvalidURL)
	}
	if !v.AllowPrivateIPs {
		if ip := net.ParseIP(hostname); ip != nil && isPrivateIP(ip) {
			return fmt.Errorf("%w: private addresses are not permitted", ErrInvalidURL)
		}
	}
	if hostname == "0.0.0.0" || hostname == "255.255.255.255" {
		return fmt.Errorf("%w: unroutable host %s", ErrInvalidURL, hostname)
	}
	return nil
}

func isLocalhost(hostname string) bool {
	hostname = strings.ToLower(hostname)
	if hostname == "localhost" || strings.HasSuffix(hostname, ".localhost") {
		return true
	}
	ip := net.ParseIP(hostname)
	return ip != nil && ip.IsLoopback()
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast()
}
