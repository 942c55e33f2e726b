// Package curlparse turns curl command lines into relay requests.
package curlparse

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/google/shlex"

	"pkt.systems/swissblade/schema"
)

// ErrNotCurl reports input that does not start with the curl command.
var ErrNotCurl = errors.New("input is not a curl command")

// Parsed is the request described by a curl command line.
type Parsed struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body,omitempty"`
}

// ProxyRequest converts the parsed command into a relay request.
func (p Parsed) ProxyRequest() schema.ProxyRequest {
	headers := make(map[string]string, len(p.Headers))
	for k, v := range p.Headers {
		headers[k] = v
	}
	return schema.ProxyRequest{
		InputURL: p.URL,
		Method:   p.Method,
		Headers:  headers,
		Body:     p.Body,
	}
}

// pickURL returns the first http(s) candidate, falling back to the last
// positional argument.
func pickURL(candidates []string) string {
	for _, c := range candidates {
		lower := strings.ToLower(c)
		if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
			return c
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	return candidates[len(candidates)-1]
}

// Parse tokenizes a curl command line and extracts method, URL, headers and body.
func Parse(command string) (Parsed, error) {
	joined := strings.NewReplacer("\\\r\n", " ", "\\\n", " ").Replace(command)
	tokens, err := shlex.Split(strings.TrimSpace(joined))
	if err != nil {
		return Parsed{}, fmt.Errorf("tokenize: %w", err)
	}
	if len(tokens) == 0 || !strings.EqualFold(tokens[0], "curl") {
		return Parsed{}, ErrNotCurl
	}
	out := Parsed{Headers: map[string]string{}}
	var (
		method   string
		data     []string
		getQuery bool
		head     bool
		urls     []string
	)
	next := func(i *int, flag string) (string, error) {
		if *i+1 >= len(tokens) {
			return "", fmt.Errorf("flag %s requires a value", flag)
		}
		*i++
		return tokens[*i], nil
	}
	for i := 1; i < len(tokens); i++ {
		tok := tokens[i]
		flag, inline, hasInline := splitLongFlag(tok)
		value := func() (string, error) {
			if hasInline {
				return inline, nil
			}
			return next(&i, flag)
		}
		switch flag {
		case "-X", "--request":
			v, err := value()
			if err != nil {
				return Parsed{}, err
			}
			method = strings.ToUpper(v)
		case "-H", "--header":
			v, err := value()
			if err != nil {
				return Parsed{}, err
			}
			if key, val, ok := splitHeader(v); ok {
				out.Headers[key] = val
			}
		case "-d", "--data", "--data-raw", "--data-binary", "--data-ascii":
			v, err := value()
			if err != nil {
				return Parsed{}, err
			}
			data = append(data, v)
		case "--data-urlencode":
			v, err := value()
			if err != nil {
				return Parsed{}, err
			}
			data = append(data, urlEncodeData(v))
		case "--json":
			v, err := value()
			if err != nil {
				return Parsed{}, err
			}
			data = append(data, v)
			setDefaultHeader(out.Headers, "Content-Type", "application/json")
			setDefaultHeader(out.Headers, "Accept", "application/json")
		case "-u", "--user":
			v, err := value()
			if err != nil {
				return Parsed{}, err
			}
			out.Headers["Authorization"] = "Basic " + base64.StdEncoding.EncodeToString([]byte(v))
		case "-A", "--user-agent":
			v, err := value()
			if err != nil {
				return Parsed{}, err
			}
			out.Headers["User-Agent"] = v
		case "-b", "--cookie":
			v, err := value()
			if err != nil {
				return Parsed{}, err
			}
			out.Headers["Cookie"] = v
		case "-e", "--referer":
			v, err := value()
			if err != nil {
				return Parsed{}, err
			}
			out.Headers["Referer"] = v
		case "--url":
			v, err := value()
			if err != nil {
				return Parsed{}, err
			}
			urls = append(urls, v)
		case "-I", "--head":
			head = true
		case "-G", "--get":
			getQuery = true
		case "-o", "--output", "-w", "--write-out", "-m", "--max-time", "--connect-timeout",
			"-x", "--proxy", "--cacert", "--cert", "--key", "-T", "--upload-file", "-F", "--form",
			"-c", "--cookie-jar", "-D", "--dump-header", "-E", "-r", "--range", "-U", "--proxy-user",
			"-K", "--config", "-z", "--time-cond", "-y", "--speed-time", "-Y", "--speed-limit",
			"--retry", "--retry-delay", "--retry-max-time", "--max-redirs", "--resolve",
			"--connect-to", "--limit-rate", "--interface", "--unix-socket", "--cert-type",
			"--key-type", "--capath", "--max-filesize", "--keepalive-time":
			if !hasInline {
				if _, err := next(&i, flag); err != nil {
					return Parsed{}, err
				}
			}
		default:
			if strings.HasPrefix(tok, "-") {
				continue
			}
			urls = append(urls, tok)
		}
	}
	out.URL = pickURL(urls)
	body := strings.Join(data, "&")
	switch {
	case getQuery && body != "":
		out.URL = appendQuery(out.URL, body)
		out.Method = "GET"
	case body != "":
		out.Body = body
		out.Method = "POST"
	case head:
		out.Method = "HEAD"
	default:
		out.Method = "GET"
	}
	if method != "" {
		out.Method = method
	}
	return out, nil
}

// Format renders a relay request back into a curl command line.
func Format(req schema.ProxyRequest) string {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = "GET"
	}
	var b strings.Builder
	b.WriteString("curl")
	if method != "GET" {
		b.WriteString(" -X ")
		b.WriteString(method)
	}
	keys := make([]string, 0, len(req.Headers))
	for k := range req.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(" -H ")
		b.WriteString(shellQuote(k + ": " + req.Headers[k]))
	}
	if req.Body != "" && method != "GET" {
		b.WriteString(" --data-raw ")
		b.WriteString(shellQuote(req.Body))
	}
	b.WriteString(" ")
	b.WriteString(shellQuote(req.InputURL))
	return b.String()
}

func splitLongFlag(tok string) (flag, value string, ok bool) {
	if strings.HasPrefix(tok, "--") {
		if idx := strings.IndexByte(tok, '='); idx > 2 {
			return tok[:idx], tok[idx+1:], true
		}
		return tok, "", false
	}
	// Short flags may carry their value attached, e.g. -XPOST.
	if len(tok) > 2 && tok[0] == '-' && strings.ContainsRune("XHdubAeo", rune(tok[1])) {
		return tok[:2], tok[2:], true
	}
	return tok, "", false
}

func splitHeader(raw string) (string, string, bool) {
	key, value, ok := strings.Cut(raw, ":")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", "", false
	}
	return key, strings.TrimSpace(value), true
}

func setDefaultHeader(headers map[string]string, key, value string) {
	for existing := range headers {
		if strings.EqualFold(existing, key) {
			return
		}
	}
	headers[key] = value
}

func urlEncodeData(raw string) string {
	name, value, ok := strings.Cut(raw, "=")
	if !ok {
		return url.QueryEscape(raw)
	}
	if name == "" {
		return url.QueryEscape(value)
	}
	return name + "=" + url.QueryEscape(value)
}

func appendQuery(rawURL, query string) string {
	if strings.Contains(rawURL, "?") {
		return rawURL + "&" + query
	}
	return rawURL + "?" + query
}

func shellQuote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}
