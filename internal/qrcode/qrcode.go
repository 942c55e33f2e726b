// Package qrcode builds QR payloads and renders them for terminals.
package qrcode

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mdp/qrterminal/v3"
	"rsc.io/qr"
)

// MaxPayloadBytes is the largest payload rendered.
const MaxPayloadBytes = 2048

var (
	// ErrEmptyData is returned when the payload is blank.
	ErrEmptyData = errors.New("no data to encode")
	// ErrPayloadTooLarge is returned when the payload exceeds MaxPayloadBytes.
	ErrPayloadTooLarge = errors.New("payload too large")
)

// Kind selects how a Request is turned into a payload.
type Kind string

const (
	KindText  Kind = "text"
	KindURL   Kind = "url"
	KindJSON  Kind = "json"
	KindWiFi  Kind = "wifi"
	KindVCard Kind = "vcard"
)

// WiFi describes a network join payload.
type WiFi struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
	Security string `json:"security"`
	Hidden   bool   `json:"hidden"`
}

// VCard describes a contact payload.
type VCard struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
	Org   string `json:"org"`
	URL   string `json:"url"`
}

// Request is a render request.
type Request struct {
	Kind  Kind   `json:"kind"`
	Data  string `json:"input"`
	Level string `json:"level"`
	WiFi  WiFi   `json:"wifi"`
	VCard VCard  `json:"vcard"`
}

// Result carries the encoded payload and its terminal rendering.
type Result struct {
	Payload string `json:"payload"`
	Level   string `json:"level"`
	Art     string `json:"art"`
}

// Payload builds the string that gets encoded.
func Payload(req Request) (string, error) {
	var data string
	switch req.Kind {
	case KindText, KindURL, "":
		data = req.Data
	case KindJSON:
		data = req.Data
		if strings.TrimSpace(data) != "" && !json.Valid([]byte(data)) {
			return "", errors.New("invalid JSON payload")
		}
	case KindWiFi:
		sec := req.WiFi.Security
		switch sec {
		case "":
			sec = "WPA"
		case "WPA", "WEP", "nopass":
		default:
			return "", fmt.Errorf("unsupported wifi security %q", sec)
		}
		data = fmt.Sprintf("WIFI:T:%s;S:%s;P:%s;H:%t;", sec, escapeWiFi(req.WiFi.SSID), escapeWiFi(req.WiFi.Password), req.WiFi.Hidden)
	case KindVCard:
		v := req.VCard
		data = strings.Join([]string{
			"BEGIN:VCARD",
			"VERSION:3.0",
			"FN:" + escapeVCard(v.Name),
			"TEL:" + escapeVCard(v.Phone),
			"EMAIL:" + escapeVCard(v.Email),
			"ORG:" + escapeVCard(v.Org),
			"URL:" + escapeVCard(v.URL),
			"END:VCARD",
		}, "\n")
	default:
		return "", fmt.Errorf("unsupported payload kind %q", req.Kind)
	}
	if strings.TrimSpace(data) == "" {
		return "", ErrEmptyData
	}
	if len(data) > MaxPayloadBytes {
		return "", ErrPayloadTooLarge
	}
	return data, nil
}

// Render encodes the request payload as half-block terminal art.
func Render(req Request) (Result, error) {
	payload, err := Payload(req)
	if err != nil {
		return Result{}, err
	}
	name, level, err := parseLevel(req.Level)
	if err != nil {
		return Result{}, err
	}
	var buf bytes.Buffer
	qrterminal.GenerateHalfBlock(payload, level, &buf)
	return Result{Payload: payload, Level: name, Art: buf.String()}, nil
}

func parseLevel(s string) (string, qr.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "M":
		return "M", qr.M, nil
	case "L":
		return "L", qr.L, nil
	case "Q":
		return "Q", qr.Q, nil
	case "H":
		return "H", qr.H, nil
	}
	return "", qr.M, fmt.Errorf("unsupported error correction level %q", s)
}

var (
	wifiEscaper  = strings.NewReplacer(`\`, `\\`, ";", `\;`, ",", `\,`, ":", `\:`, `"`, `\"`)
	vcardEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, ",", `\,`, ";", `\;`)
)

func escapeWiFi(s string) string  { return wifiEscaper.Replace(s) }
func escapeVCard(s string) string { return vcardEscaper.Replace(s) }
