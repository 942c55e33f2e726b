package schema

// HTTP relay.

// ProxyRequest describes a request to relay to an arbitrary URL.
type ProxyRequest struct {
	InputURL string            `json:"InputUrl"`
	Method   string            `json:"method,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
	Body     string            `json:"body,omitempty"`
}

// ProxyResponse reports the relayed response.
type ProxyResponse struct {
	Status       int    `json:"status"`
	StatusText   string `json:"statusText"`
	ResponseTime int64  `json:"responseTime"`
	Data         string `json:"data"`
	ContentType  string `json:"contentType"`
}

// Certificate inspection.

// CertWarning names a certificate problem.
type CertWarning string

const (
	// CertExpired means the certificate is past its notAfter date.
	CertExpired CertWarning = "expired"
	// CertExpiresSoon means the certificate expires within the warning window.
	CertExpiresSoon CertWarning = "expiresSoon"
	// CertHostnameMismatch means the certificate does not cover the requested host.
	CertHostnameMismatch CertWarning = "hostnameMismatch"
	// CertChainInvalid means the chain did not verify against system roots.
	CertChainInvalid CertWarning = "chainInvalid"
)

// CertCheckRequest describes a certificate check against a host or a PEM blob.
type CertCheckRequest struct {
	Host    string `json:"host,omitempty"`
	Port    int    `json:"port,omitempty"`
	CertPEM string `json:"certPem,omitempty"`
}

// CertificatePayload reports the inspected certificate.
type CertificatePayload struct {
	Source             string        `json:"source"`
	Subject            *string       `json:"subject"`
	SubjectCN          *string       `json:"subjectCN"`
	Issuer             *string       `json:"issuer"`
	IssuerCN           *string       `json:"issuerCN"`
	SAN                []string      `json:"san"`
	ValidFrom          *string       `json:"validFrom"`
	ValidTo            *string       `json:"validTo"`
	DaysRemaining      *int64        `json:"daysRemaining"`
	IsExpired          bool          `json:"isExpired"`
	AboutToExpire      bool          `json:"aboutToExpire"`
	ChainValid         *bool         `json:"chainValid"`
	AuthorizationError *string       `json:"authorizationError"`
	ValidForHost       *bool         `json:"validForHost"`
	RawPEM             *string       `json:"rawPem"`
	SerialNumber       *string       `json:"serialNumber"`
	Fingerprint256     *string       `json:"fingerprint256"`
	OCSPStatus         *string       `json:"ocspStatus"`
	Warnings           []CertWarning `json:"warnings"`
}

// TCP/UDP whistle.

// WhistleMode selects a whistle operation.
type WhistleMode string

const (
	// WhistleTCPSend connects and sends a payload over TCP.
	WhistleTCPSend WhistleMode = "tcp-send"
	// WhistleUDPSend sends a datagram and waits for one reply.
	WhistleUDPSend WhistleMode = "udp-send"
	// WhistleTCPListen accepts TCP connections for a bounded duration.
	WhistleTCPListen WhistleMode = "tcp-listen"
	// WhistleUDPListen receives datagrams for a bounded duration.
	WhistleUDPListen WhistleMode = "udp-listen"
)

// WhistleRequest describes a raw socket send or listen.
type WhistleRequest struct {
	Mode           WhistleMode `json:"mode"`
	Host           string      `json:"host,omitempty"`
	Port           int         `json:"port"`
	Payload        string      `json:"payload,omitempty"`
	TimeoutMs      int64       `json:"timeoutMs,omitempty"`
	DelayMs        int64       `json:"delayMs,omitempty"`
	ChunkSize      int         `json:"chunkSize,omitempty"`
	DurationMs     int64       `json:"durationMs,omitempty"`
	Malformed      bool        `json:"malformed,omitempty"`
	Echo           bool        `json:"echo,omitempty"`
	EchoPayload    *string     `json:"echoPayload,omitempty"`
	RespondDelayMs int64       `json:"respondDelayMs,omitempty"`
	MaxCapture     int         `json:"maxCapture,omitempty"`
}

// ResponsePreview renders bytes as text and hex.
type ResponsePreview struct {
	Text  string `json:"text"`
	Hex   string `json:"hex"`
	Bytes int    `json:"bytes"`
}

// WhistleSendResponse reports a send operation.
type WhistleSendResponse struct {
	OK            bool            `json:"ok"`
	Mode          WhistleMode     `json:"mode"`
	ElapsedMs     int64           `json:"elapsedMs"`
	BytesSent     int             `json:"bytesSent"`
	BytesReceived int             `json:"bytesReceived"`
	Response      ResponsePreview `json:"response"`
}

// CaptureEntry records one received payload in listen mode.
type CaptureEntry struct {
	At            string `json:"at"`
	RemoteAddress string `json:"remoteAddress,omitempty"`
	RemotePort    int    `json:"remotePort,omitempty"`
	Bytes         int    `json:"bytes"`
	Hex           string `json:"hex"`
	Text          string `json:"text"`
	ElapsedMs     int64  `json:"elapsedMs,omitempty"`
	Note          string `json:"note,omitempty"`
}

// WhistleListenResponse reports a listen operation.
type WhistleListenResponse struct {
	OK         bool           `json:"ok"`
	Mode       WhistleMode    `json:"mode"`
	DurationMs int64          `json:"durationMs"`
	Captures   []CaptureEntry `json:"captures"`
}

// Port detective.

// PortInfo reports listener details for a port.
type PortInfo struct {
	Port        int    `json:"port"`
	InUse       bool   `json:"inUse"`
	PID         int    `json:"pid,omitempty"`
	ProcessName string `json:"processName,omitempty"`
	NeedsAdmin  bool   `json:"needsAdmin"`
}
