package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"pkt.systems/swissblade"
	"pkt.systems/swissblade/internal/appconfig"
	"pkt.systems/swissblade/internal/asciiart"
	"pkt.systems/swissblade/internal/blame"
	"pkt.systems/swissblade/internal/catalog"
	"pkt.systems/swissblade/internal/crontool"
	"pkt.systems/swissblade/internal/lorem"
	"pkt.systems/swissblade/internal/qrcode"
	"pkt.systems/swissblade/internal/regextest"
	"pkt.systems/swissblade/internal/toolkit"
	"pkt.systems/swissblade/internal/wsfish"
	"pkt.systems/swissblade/schema"
)

// runTool marshals req, dispatches it through a toolkit built from config and prints the result.
func runTool(cmd *cobra.Command, opts *rootOptions, out *outputOptions, id schema.ToolID, req any) error {
	cfg, err := appconfig.Load(opts.configPath)
	if err != nil {
		return err
	}
	tools := swissblade.NewToolkit(cfg)
	defer tools.Close()
	raw, err := json.Marshal(req)
	if err != nil {
		return err
	}
	result, err := tools.Run(cmd.Context(), id, raw)
	if err != nil {
		return err
	}
	return out.emit(cmd, result, toolkit.Text(result))
}

func newToolsCmd() *cobra.Command {
	var out outputOptions
	cmd := &cobra.Command{
		Use:   "tools [query]",
		Short: "List or search the tool catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			tools := catalog.All()
			if len(args) > 0 {
				tools = catalog.Search(strings.Join(args, " "))
			}
			lines := make([]string, 0, len(tools))
			for _, tool := range tools {
				line := fmt.Sprintf("%-20s %-8s %s", tool.ID, tool.Category, tool.Description)
				if !tool.Available {
					line += " (unavailable)"
				}
				lines = append(lines, line)
			}
			return out.emit(cmd, tools, strings.Join(lines, "\n"))
		},
	}
	out.bind(cmd)
	return cmd
}

func newToolCmds(opts *rootOptions) []*cobra.Command {
	return []*cobra.Command{
		newCurlCmd(opts),
		newProxyCmd(opts),
		newConvertCmd(opts),
		newTimestampCmd(opts),
		newCronCmd(opts),
		newRegexCmd(opts),
		newColorCmd(opts),
		newQRCmd(opts),
		newLoremCmd(opts),
		newBlameCmd(opts),
		newPortCmd(opts),
		newCertCmd(opts),
		newWhistleCmd(opts),
		newASCIICmd(opts),
		newWebSocketCmd(opts),
	}
}

func newCurlCmd(opts *rootOptions) *cobra.Command {
	var out outputOptions
	var send bool
	cmd := &cobra.Command{
		Use:   "curl [curl command]",
		Short: "Parse a curl command and optionally send it",
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			return runTool(cmd, opts, &out, "curl-converter", toolkit.CurlRequest{Input: input, Send: send})
		},
	}
	out.bind(cmd)
	cmd.Flags().BoolVar(&send, "send", false, "send the request through the relay")
	return cmd
}

func newProxyCmd(opts *rootOptions) *cobra.Command {
	var out outputOptions
	var method, body string
	var headers []string
	cmd := &cobra.Command{
		Use:   "proxy <url>",
		Short: "Send an HTTP request through the relay",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := schema.ProxyRequest{InputURL: args[0], Method: method, Body: body}
			if len(headers) > 0 {
				req.Headers = make(map[string]string, len(headers))
				for _, h := range headers {
					name, value, ok := strings.Cut(h, ":")
					if !ok {
						return fmt.Errorf("%w: header %q must be name:value", schema.ErrInvalidRequest, h)
					}
					req.Headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
				}
			}
			cfg, err := appconfig.Load(opts.configPath)
			if err != nil {
				return err
			}
			tools := swissblade.NewToolkit(cfg)
			defer tools.Close()
			resp, err := tools.Relay().Do(cmd.Context(), req)
			if err != nil {
				return err
			}
			return out.emit(cmd, resp, toolkit.Text(resp))
		},
	}
	out.bind(cmd)
	cmd.Flags().StringVarP(&method, "method", "X", "GET", "HTTP method")
	cmd.Flags().StringVarP(&body, "data", "d", "", "request body")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "request header (name:value)")
	return cmd
}

func newConvertCmd(opts *rootOptions) *cobra.Command {
	var out outputOptions
	req := toolkit.ConvertRequest{}
	cmd := &cobra.Command{
		Use:   "convert [input]",
		Short: "Convert between JSON, CSV, TSV, YAML, TOML and XML",
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			req.Input = input
			return runTool(cmd, opts, &out, "json-csv", req)
		},
	}
	out.bind(cmd)
	cmd.Flags().StringVar(&req.From, "from", "json", "input format")
	cmd.Flags().StringVar(&req.To, "to", "csv", "output format")
	cmd.Flags().BoolVar(&req.AutoFix, "auto-fix", false, "repair common JSON mistakes")
	cmd.Flags().StringVar(&req.XMLRoot, "xml-root", "", "root element name for XML output")
	return cmd
}

func newTimestampCmd(opts *rootOptions) *cobra.Command {
	var out outputOptions
	var tz string
	cmd := &cobra.Command{
		Use:   "ts [timestamp]",
		Short: "Convert timestamps; no input means now",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := toolkit.TimestampRequest{Timezone: tz}
			if len(args) > 0 {
				req.Input = strings.Join(args, " ")
			}
			return runTool(cmd, opts, &out, "timestamp-converter", req)
		},
	}
	out.bind(cmd)
	cmd.Flags().StringVar(&tz, "tz", "", "IANA timezone for rendering")
	return cmd
}

func newCronCmd(opts *rootOptions) *cobra.Command {
	var out outputOptions
	var count int
	var frequency string
	build := crontool.BuildOptions{}
	cmd := &cobra.Command{
		Use:   "cron [expression]",
		Short: "Explain a cron expression or build one",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := toolkit.CronRequest{Count: count}
			if frequency != "" {
				build.Frequency = crontool.Frequency(frequency)
				req.Build = &build
			} else {
				input, err := readInput(cmd, args)
				if err != nil {
					return err
				}
				req.Expression = input
			}
			return runTool(cmd, opts, &out, "cron-generator", req)
		},
	}
	out.bind(cmd)
	cmd.Flags().IntVarP(&count, "count", "n", 5, "number of upcoming runs to show")
	cmd.Flags().StringVar(&frequency, "build", "", "build from a frequency (daily, weekly, every-n-minutes, ...)")
	cmd.Flags().IntVar(&build.Minute, "minute", 0, "minute for --build")
	cmd.Flags().IntVar(&build.Hour, "hour", 0, "hour for --build")
	cmd.Flags().IntVar(&build.DayOfWeek, "dow", 0, "day of week for --build")
	cmd.Flags().IntVar(&build.DayOfMonth, "dom", 1, "day of month for --build")
	cmd.Flags().IntVar(&build.Month, "month", 1, "month for --build")
	cmd.Flags().IntVar(&build.Interval, "every", 0, "interval for every-n frequencies")
	return cmd
}

func newRegexCmd(opts *rootOptions) *cobra.Command {
	var out outputOptions
	var flags, replace string
	cmd := &cobra.Command{
		Use:   "regex <pattern> [input]",
		Short: "Test a regular expression; input defaults to stdin",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd, args[1:])
			if err != nil {
				return err
			}
			req := regextest.Request{Pattern: args[0], Flags: flags, Input: input}
			if cmd.Flags().Changed("replace") {
				req.Replacement = &replace
			}
			return runTool(cmd, opts, &out, "regex-tester", req)
		},
	}
	out.bind(cmd)
	cmd.Flags().StringVar(&flags, "flags", "g", "flags (g, i, m, s, u)")
	cmd.Flags().StringVar(&replace, "replace", "", "replacement template")
	return cmd
}

func newColorCmd(opts *rootOptions) *cobra.Command {
	var out outputOptions
	cmd := &cobra.Command{
		Use:   "color <color>",
		Short: "Convert a colour between HEX, RGB, HSL, HSV and CMYK",
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			return runTool(cmd, opts, &out, "color-picker", map[string]string{"input": input})
		},
	}
	out.bind(cmd)
	return cmd
}

func newQRCmd(opts *rootOptions) *cobra.Command {
	var out outputOptions
	var kind, level string
	var wifi qrcode.WiFi
	cmd := &cobra.Command{
		Use:   "qr [input]",
		Short: "Render a QR code in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := qrcode.Request{Kind: qrcode.Kind(kind), Level: level}
			if req.Kind == qrcode.KindWiFi {
				req.WiFi = wifi
			} else {
				input, err := readInput(cmd, args)
				if err != nil {
					return err
				}
				req.Data = input
			}
			return runTool(cmd, opts, &out, "qr-code", req)
		},
	}
	out.bind(cmd)
	cmd.Flags().StringVar(&kind, "kind", string(qrcode.KindText), "payload kind (text, url, json, wifi)")
	cmd.Flags().StringVar(&level, "level", "M", "error correction level (L, M, Q, H)")
	cmd.Flags().StringVar(&wifi.SSID, "ssid", "", "wifi network name")
	cmd.Flags().StringVar(&wifi.Password, "password", "", "wifi password")
	cmd.Flags().StringVar(&wifi.Security, "security", "WPA", "wifi security (WPA, WEP, nopass)")
	cmd.Flags().BoolVar(&wifi.Hidden, "hidden", false, "wifi network is hidden")
	return cmd
}

func newLoremCmd(opts *rootOptions) *cobra.Command {
	var out outputOptions
	var length string
	req := toolkit.LoremRequest{}
	cmd := &cobra.Command{
		Use:   "lorem",
		Short: "Generate placeholder text and fake data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Length = lorem.Length(length)
			return runTool(cmd, opts, &out, "lorem-tweezers", req)
		},
	}
	out.bind(cmd)
	cmd.Flags().StringVar(&req.Kind, "kind", "paragraphs", "paragraphs, words, sentence, email, address, card or iban")
	cmd.Flags().IntVarP(&req.Count, "count", "n", 3, "how many paragraphs or words")
	cmd.Flags().StringVar(&length, "length", string(lorem.Medium), "paragraph length (short, medium, long)")
	cmd.Flags().BoolVar(&req.Classic, "classic", false, "start with the classic opening")
	cmd.Flags().StringVar(&req.Brand, "brand", "", "card brand")
	cmd.Flags().StringVar(&req.Country, "country", "", "IBAN country code")
	return cmd
}

func newBlameCmd(opts *rootOptions) *cobra.Command {
	var out outputOptions
	var intern string
	cmd := &cobra.Command{
		Use:   "blame [bug]",
		Short: "Produce a commit history that blames the intern",
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			return runTool(cmd, opts, &out, "blame-intern", blame.Request{Bug: input, Intern: intern})
		},
	}
	out.bind(cmd)
	cmd.Flags().StringVar(&intern, "intern", "", "name of the intern")
	return cmd
}

func newPortCmd(opts *rootOptions) *cobra.Command {
	var out outputOptions
	req := toolkit.PortRequest{}
	cmd := &cobra.Command{
		Use:   "port [port]",
		Short: "Check a port, scan a range or kill the owning process",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				port, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("%w: %q", schema.ErrInvalidPort, args[0])
				}
				req.Port = port
			}
			if req.Port == 0 && req.From == 0 && req.Kill == 0 {
				return fmt.Errorf("%w: give a port, --from/--to or --kill", schema.ErrInvalidRequest)
			}
			return runTool(cmd, opts, &out, "port-detective", req)
		},
	}
	out.bind(cmd)
	cmd.Flags().IntVar(&req.From, "from", 0, "first port of a scan")
	cmd.Flags().IntVar(&req.To, "to", 0, "last port of a scan")
	cmd.Flags().IntVar(&req.Kill, "kill", 0, "terminate this pid")
	return cmd
}

func newCertCmd(opts *rootOptions) *cobra.Command {
	var out outputOptions
	var port int
	var pemPath string
	cmd := &cobra.Command{
		Use:   "cert [host]",
		Short: "Inspect a TLS certificate from a host or PEM file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := schema.CertCheckRequest{Port: port}
			switch {
			case pemPath != "":
				data, err := os.ReadFile(pemPath)
				if err != nil {
					return err
				}
				req.CertPEM = string(data)
			case len(args) == 1:
				req.Host = args[0]
			default:
				return schema.ErrHostRequired
			}
			return runTool(cmd, opts, &out, "ssl-toothbrush", req)
		},
	}
	out.bind(cmd)
	cmd.Flags().IntVarP(&port, "port", "p", 443, "TLS port")
	cmd.Flags().StringVar(&pemPath, "pem", "", "inspect a PEM file instead of a host")
	return cmd
}

func newWhistleCmd(opts *rootOptions) *cobra.Command {
	var out outputOptions
	var mode string
	req := schema.WhistleRequest{}
	cmd := &cobra.Command{
		Use:   "whistle",
		Short: "Send or listen for raw TCP/UDP traffic (requires whistle.enabled)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Mode = schema.WhistleMode(mode)
			return runTool(cmd, opts, &out, "tcp-whistle", req)
		},
	}
	out.bind(cmd)
	cmd.Flags().StringVar(&mode, "mode", string(schema.WhistleTCPSend), "tcp-send, udp-send, tcp-listen or udp-listen")
	cmd.Flags().StringVar(&req.Host, "host", "", "target host for send modes")
	cmd.Flags().IntVarP(&req.Port, "port", "p", 0, "port to send to or listen on")
	cmd.Flags().StringVar(&req.Payload, "payload", "", "payload to send")
	cmd.Flags().Int64Var(&req.TimeoutMs, "timeout-ms", 0, "reply timeout")
	cmd.Flags().Int64Var(&req.DelayMs, "delay-ms", 0, "delay between chunks")
	cmd.Flags().IntVar(&req.ChunkSize, "chunk-size", 0, "send in chunks of this size")
	cmd.Flags().Int64Var(&req.DurationMs, "duration-ms", 0, "listen duration")
	cmd.Flags().BoolVar(&req.Malformed, "malformed", false, "corrupt the payload")
	cmd.Flags().BoolVar(&req.Echo, "echo", false, "echo captured data back when listening")
	return cmd
}

func newASCIICmd(opts *rootOptions) *cobra.Command {
	var out outputOptions
	var font string
	var padding int
	req := asciiart.Request{}
	cmd := &cobra.Command{
		Use:   "ascii [text]",
		Short: "Render banner text with FIGlet fonts",
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			req.Text = input
			req.Font = asciiart.Font(font)
			req.Padding = &padding
			return runTool(cmd, opts, &out, "ascii-cork", req)
		},
	}
	out.bind(cmd)
	cmd.Flags().StringVar(&font, "font", string(asciiart.Standard), "Standard, Slant, Big or Doom")
	cmd.Flags().IntVar(&padding, "padding", 1, "horizontal padding (0, 1, 2 or 4)")
	cmd.Flags().BoolVar(&req.Uppercase, "upper", false, "upper-case the text first")
	cmd.Flags().BoolVar(&req.Frame, "frame", false, "draw a box around the banner")
	return cmd
}

func newWebSocketCmd(opts *rootOptions) *cobra.Command {
	var out outputOptions
	var format, reconnect string
	var payloads []string
	req := wsfish.Request{}
	cmd := &cobra.Command{
		Use:   "ws <url>",
		Short: "Send frames to a websocket endpoint and print the replies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.URL = args[0]
			req.Reconnect = wsfish.Strategy(reconnect)
			for _, p := range payloads {
				req.Messages = append(req.Messages, wsfish.Message{Format: wsfish.Format(format), Payload: p})
			}
			return runTool(cmd, opts, &out, "websocket-fish", req)
		},
	}
	out.bind(cmd)
	cmd.Flags().StringArrayVarP(&payloads, "send", "s", nil, "payload to send (repeatable)")
	cmd.Flags().StringVar(&format, "format", string(wsfish.FormatText), "payload format (text, json, hex)")
	cmd.Flags().StringVar(&reconnect, "reconnect", string(wsfish.ReconnectOff), "connect retry strategy (off, instant, backoff)")
	cmd.Flags().Int64Var(&req.ListenMs, "listen-ms", 0, "how long to wait for replies")
	cmd.Flags().IntVarP(&req.MaxMessages, "max", "n", 0, "stop after this many replies")
	return cmd
}
