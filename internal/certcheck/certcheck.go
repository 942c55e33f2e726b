// Package certcheck inspects TLS certificates of remote hosts or PEM input.
package certcheck

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ocsp"

	"pkt.systems/pslog"
	"pkt.systems/swissblade/schema"
)

const (
	// MaxPEMBytes is the largest accepted PEM input.
	MaxPEMBytes = 200000
	// DefaultTimeout bounds the TLS handshake.
	DefaultTimeout = 8 * time.Second
	// ExpiryWarningDays marks a certificate as about to expire.
	ExpiryWarningDays = 14
)

// DefaultPorts are the ports remote checks may use.
var DefaultPorts = []int{443, 8443}

// Checker inspects certificates.
type Checker struct {
	Resolver Resolver
	Timeout  time.Duration
	Ports    []int
	// AllowPrivate skips host validation.
	AllowPrivate bool
	// Roots verifies remote chains; nil means system roots.
	Roots *x509.CertPool
	Now   func() time.Time
}

// New returns a checker with default limits.
func New() *Checker {
	return &Checker{Timeout: DefaultTimeout, Ports: DefaultPorts}
}

func (c *Checker) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Check inspects req.CertPEM when present, otherwise the certificate served by req.Host.
func (c *Checker) Check(ctx context.Context, req schema.CertCheckRequest) (schema.CertificatePayload, error) {
	if len(req.CertPEM) > MaxPEMBytes {
		return schema.CertificatePayload{}, fmt.Errorf("%w: certPem is too large", schema.ErrPayloadTooLarge)
	}
	host := StripBrackets(req.Host)
	if host == "" && req.CertPEM == "" {
		return schema.CertificatePayload{}, fmt.Errorf("%w: either host or certPem is required", schema.ErrInvalidRequest)
	}
	port := req.Port
	if port == 0 {
		port = 443
	}
	if host != "" {
		if !c.AllowPrivate {
			if err := ValidateHost(ctx, c.Resolver, host); err != nil {
				return schema.CertificatePayload{}, err
			}
		}
		ports := c.Ports
		if len(ports) == 0 {
			ports = DefaultPorts
		}
		if err := portAllowed(port, ports); err != nil {
			return schema.CertificatePayload{}, err
		}
	}
	if req.CertPEM != "" {
		return c.parsePEM(req.CertPEM, host)
	}
	return c.fetchRemote(ctx, host, port)
}

func (c *Checker) parsePEM(certPEM, host string) (schema.CertificatePayload, error) {
	block, _ := pem.Decode([]byte(certPEM))
	if block == nil {
		return schema.CertificatePayload{}, fmt.Errorf("%w: no PEM certificate found", schema.ErrInvalidRequest)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return schema.CertificatePayload{}, fmt.Errorf("%w: %v", schema.ErrInvalidRequest, err)
	}
	p := c.describe(cert, "pem")
	if host != "" {
		p.ValidForHost = ptr(HostMatches(host, matchCandidates(cert)))
	}
	p.Warnings = warnings(p)
	return p, nil
}

func (c *Checker) fetchRemote(ctx context.Context, host string, port int) (schema.CertificatePayload, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	log := pslog.Ctx(ctx).With("host", host, "port", port)

	dialer := &tls.Dialer{Config: &tls.Config{ServerName: host, InsecureSkipVerify: true}}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		log.Debug("certcheck dial failed", "err", err)
		if errors.Is(err, context.DeadlineExceeded) {
			return schema.CertificatePayload{}, errors.New("connection to remote host timed out")
		}
		return schema.CertificatePayload{}, fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()
	state := conn.(*tls.Conn).ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return schema.CertificatePayload{}, errors.New("no certificate presented by remote host")
	}
	leaf := state.PeerCertificates[0]
	p := c.describe(leaf, "remote")
	p.ValidForHost = ptr(HostMatches(host, matchCandidates(leaf)))

	intermediates := x509.NewCertPool()
	for _, cert := range state.PeerCertificates[1:] {
		intermediates.AddCert(cert)
	}
	_, verr := leaf.Verify(x509.VerifyOptions{
		Roots:         c.Roots,
		Intermediates: intermediates,
		CurrentTime:   c.now(),
	})
	p.ChainValid = ptr(verr == nil)
	if verr != nil {
		p.AuthorizationError = ptr(verr.Error())
	}
	if len(state.OCSPResponse) > 0 && len(state.PeerCertificates) > 1 {
		p.OCSPStatus = ptr(ocspStatus(state.OCSPResponse, leaf, state.PeerCertificates[1]))
	}
	p.Warnings = warnings(p)
	log.Debug("certcheck remote inspected", "chain_valid", verr == nil, "days_remaining", *p.DaysRemaining)
	return p, nil
}

func ocspStatus(raw []byte, leaf, issuer *x509.Certificate) string {
	resp, err := ocsp.ParseResponseForCert(raw, leaf, issuer)
	if err != nil {
		return "invalid"
	}
	switch resp.Status {
	case ocsp.Good:
		return "good"
	case ocsp.Revoked:
		return "revoked"
	}
	return "unknown"
}

func (c *Checker) describe(cert *x509.Certificate, source string) schema.CertificatePayload {
	now := c.now()
	days := int64(math.Ceil(cert.NotAfter.Sub(now).Hours() / 24))
	expired := cert.NotAfter.Before(now)
	p := schema.CertificatePayload{
		Source:         source,
		SAN:            sanList(cert),
		ValidFrom:      ptr(isoTime(cert.NotBefore)),
		ValidTo:        ptr(isoTime(cert.NotAfter)),
		DaysRemaining:  &days,
		IsExpired:      expired,
		AboutToExpire:  !expired && days <= ExpiryWarningDays,
		RawPEM:         ptr(strings.TrimSpace(string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})))),
		SerialNumber:   ptr(fmt.Sprintf("%X", cert.SerialNumber)),
		Fingerprint256: ptr(fingerprint(cert.Raw)),
		Warnings:       []schema.CertWarning{},
	}
	if s := cert.Subject.String(); s != "" {
		p.Subject = &s
	}
	if cn := cert.Subject.CommonName; cn != "" {
		p.SubjectCN = &cn
	}
	if s := cert.Issuer.String(); s != "" {
		p.Issuer = &s
	}
	if cn := cert.Issuer.CommonName; cn != "" {
		p.IssuerCN = &cn
	}
	return p
}

func sanList(cert *x509.Certificate) []string {
	out := append([]string{}, cert.DNSNames...)
	for _, ip := range cert.IPAddresses {
		out = append(out, ip.String())
	}
	return out
}

func matchCandidates(cert *x509.Certificate) []string {
	if san := sanList(cert); len(san) > 0 {
		return san
	}
	if cert.Subject.CommonName != "" {
		return []string{cert.Subject.CommonName}
	}
	if s := cert.Subject.String(); s != "" {
		return []string{s}
	}
	return nil
}

func warnings(p schema.CertificatePayload) []schema.CertWarning {
	out := []schema.CertWarning{}
	if p.IsExpired {
		out = append(out, schema.CertExpired)
	}
	if !p.IsExpired && p.AboutToExpire {
		out = append(out, schema.CertExpiresSoon)
	}
	if p.ValidForHost != nil && !*p.ValidForHost {
		out = append(out, schema.CertHostnameMismatch)
	}
	if p.ChainValid != nil && !*p.ChainValid {
		out = append(out, schema.CertChainInvalid)
	}
	return out
}

func fingerprint(raw []byte) string {
	sum := sha256.Sum256(raw)
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":")
}

func isoTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

func ptr[T any](v T) *T { return &v }
