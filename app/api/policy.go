package api

import (
	"errors"
	"net"
	"net/url"
	"strings"
)

const maxTargetURLLength = 4096

var (
	errMissingURL     = errors.New("url parameter is required")
	errURLTooLong     = errors.New("url is too long")
	errBadScheme      = errors.New("only http and https urls can be relayed")
	errUserInfo       = errors.New("urls with credentials cannot be relayed")
	errDisallowedHost = errors.New("host is not allowed")
)

// urlPolicy decides which upstream urls the relay will fetch.
type urlPolicy struct {
	allowPrivate bool
}

func (p urlPolicy) parse(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errMissingURL
	}
	if len(raw) > maxTargetURLLength {
		return nil, errURLTooLong
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if err := p.check(u); err != nil {
		return nil, err
	}
	return u, nil
}

func (p urlPolicy) check(u *url.URL) error {
	if u == nil || (u.Scheme != "http" && u.Scheme != "https") {
		return errBadScheme
	}
	if u.User != nil {
		return errUserInfo
	}
	if u.Hostname() == "" {
		return errDisallowedHost
	}
	if !p.allowPrivate && isDisallowedHost(u.Hostname()) {
		return errDisallowedHost
	}
	return nil
}

func isDisallowedHost(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "localhost" || strings.HasSuffix(host, ".localhost") ||
		strings.HasSuffix(host, ".local") || strings.HasSuffix(host, ".internal") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return isDisallowedIP(ip)
	}
	return false
}

func isDisallowedIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsMulticast()
}
