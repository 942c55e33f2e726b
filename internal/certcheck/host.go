package certcheck

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"regexp"
	"strings"

	"pkt.systems/swissblade/schema"
)

var (
	hostnamePattern = regexp.MustCompile(`^(?:[a-zA-Z0-9-]{1,63}\.)+[a-zA-Z0-9-]{2,63}$`)
	blockedTLDs     = map[string]bool{"local": true, "localhost": true, "localdomain": true, "internal": true, "home": true, "lan": true}
	privatePrefixes = []netip.Prefix{
		netip.MustParsePrefix("0.0.0.0/8"),
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("100.64.0.0/10"),
		netip.MustParsePrefix("127.0.0.0/8"),
		netip.MustParsePrefix("169.254.0.0/16"),
		netip.MustParsePrefix("172.16.0.0/12"),
		netip.MustParsePrefix("192.0.0.0/24"),
		netip.MustParsePrefix("192.168.0.0/16"),
		netip.MustParsePrefix("198.18.0.0/15"),
		netip.MustParsePrefix("224.0.0.0/3"),
		netip.MustParsePrefix("255.0.0.0/8"),
		netip.MustParsePrefix("::/128"),
		netip.MustParsePrefix("::1/128"),
		netip.MustParsePrefix("fc00::/7"),
		netip.MustParsePrefix("fe80::/10"),
		netip.MustParsePrefix("ff00::/8"),
	}
)

// Resolver looks up host addresses.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// HostError is a user-facing host validation failure.
type HostError struct {
	Msg string
}

func (e *HostError) Error() string { return e.Msg }

// Unwrap lets callers match schema.ErrInvalidRequest.
func (e *HostError) Unwrap() error { return schema.ErrInvalidRequest }

// IsPrivateAddress reports whether addr is loopback, private, link-local,
// carrier-grade NAT, benchmark, multicast or otherwise non-public.
func IsPrivateAddress(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range privatePrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// StripBrackets removes IPv6 literal brackets.
func StripBrackets(host string) string {
	host = strings.TrimSpace(host)
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		return host[1 : len(host)-1]
	}
	return host
}

// ValidateHost rejects hosts that are local, private or resolve to private addresses.
func ValidateHost(ctx context.Context, r Resolver, host string) error {
	host = StripBrackets(host)
	if host == "" {
		return &HostError{Msg: "Host is required"}
	}
	if strings.EqualFold(host, "localhost") {
		return &HostError{Msg: "Local addresses are not allowed"}
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		if IsPrivateAddress(addr) {
			return &HostError{Msg: "Private or loopback addresses are not allowed"}
		}
		return nil
	}
	if len(host) > 253 || strings.HasPrefix(host, "-") || !hostnamePattern.MatchString(host) {
		return &HostError{Msg: "Invalid host format"}
	}
	tld := strings.ToLower(host[strings.LastIndexByte(host, '.')+1:])
	if blockedTLDs[tld] {
		return &HostError{Msg: "Local network hostnames are not allowed"}
	}
	if r == nil {
		r = net.DefaultResolver
	}
	addrs, err := r.LookupIPAddr(ctx, host)
	if err != nil {
		return &HostError{Msg: "Unable to resolve host"}
	}
	if len(addrs) == 0 {
		return &HostError{Msg: "Host resolves to a private or local address"}
	}
	for _, a := range addrs {
		ip, ok := netip.AddrFromSlice(a.IP)
		if !ok || IsPrivateAddress(ip) {
			return &HostError{Msg: "Host resolves to a private or local address"}
		}
	}
	return nil
}

// HostMatches reports whether host is covered by one of the candidate names.
// A wildcard covers exactly one extra label.
func HostMatches(host string, candidates []string) bool {
	host = strings.ToLower(host)
	if host == "" {
		return false
	}
	for _, entry := range candidates {
		c := strings.ToLower(strings.TrimSpace(entry))
		if c == "" {
			continue
		}
		if domain, ok := strings.CutPrefix(c, "*."); ok {
			if domain == "" || !strings.HasSuffix(host, "."+domain) {
				continue
			}
			if strings.Count(host, ".") == strings.Count(domain, ".")+1 {
				return true
			}
			continue
		}
		if host == c {
			return true
		}
	}
	return false
}

func portAllowed(port int, allowed []int) error {
	for _, p := range allowed {
		if p == port {
			return nil
		}
	}
	return fmt.Errorf("%w: only ports %s are allowed", schema.ErrInvalidPort, joinPorts(allowed))
}

func joinPorts(ports []int) string {
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = fmt.Sprint(p)
	}
	return strings.Join(parts, " and ")
}
