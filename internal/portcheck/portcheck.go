// Package portcheck finds which processes listen on local TCP ports.
package portcheck

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"pkt.systems/pslog"
	"pkt.systems/swissblade/schema"
)

// MaxScanRange bounds the number of ports in one scan.
const MaxScanRange = 65535

// RunFunc runs an external command and returns its stdout.
type RunFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// ListenFunc probes a port by binding it.
type ListenFunc func(network, address string) (net.Listener, error)

// Checker inspects local listeners.
type Checker struct {
	Run    RunFunc
	Listen ListenFunc
}

// New returns a checker using ss/netstat and real listen probes.
func New() *Checker {
	return &Checker{Run: runCommand, Listen: net.Listen}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// ValidatePort rejects ports outside 1..65535.
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: %d", schema.ErrInvalidPort, port)
	}
	return nil
}

// Check reports whether port has a TCP listener and who owns it.
func (c *Checker) Check(ctx context.Context, port int) (schema.PortInfo, error) {
	if err := ValidatePort(port); err != nil {
		return schema.PortInfo{}, err
	}
	listeners, err := c.listeners(ctx)
	if err != nil {
		pslog.Ctx(ctx).Debug("portcheck listing unavailable", "err", err)
	}
	for _, info := range listeners {
		if info.Port == port {
			return info, nil
		}
	}
	if c.probeInUse(port) {
		return schema.PortInfo{Port: port, InUse: true, NeedsAdmin: true}, nil
	}
	return schema.PortInfo{Port: port}, nil
}

// Scan lists listeners between from and to inclusive, sorted by port.
func (c *Checker) Scan(ctx context.Context, from, to int) ([]schema.PortInfo, error) {
	if err := ValidatePort(from); err != nil {
		return nil, err
	}
	if err := ValidatePort(to); err != nil {
		return nil, err
	}
	if from > to {
		return nil, fmt.Errorf("%w: range start %d after end %d", schema.ErrInvalidRequest, from, to)
	}
	listeners, err := c.listeners(ctx)
	if err != nil {
		return nil, err
	}
	out := []schema.PortInfo{}
	for _, info := range listeners {
		if info.Port >= from && info.Port <= to {
			out = append(out, info)
		}
	}
	return out, nil
}

func (c *Checker) probeInUse(port int) bool {
	listen := c.Listen
	if listen == nil {
		listen = net.Listen
	}
	ln, err := listen("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		return isAddrInUse(err)
	}
	_ = ln.Close()
	return false
}

func (c *Checker) listeners(ctx context.Context) ([]schema.PortInfo, error) {
	run := c.Run
	if run == nil {
		run = runCommand
	}
	out, err := run(ctx, "ss", "-H", "-ltnp")
	if err == nil {
		return ParseSS(out), nil
	}
	ssErr := err
	out, err = run(ctx, "netstat", "-antp")
	if err == nil || len(out) > 0 {
		return ParseNetstat(out), nil
	}
	return nil, errors.Join(fmt.Errorf("ss: %w", ssErr), fmt.Errorf("netstat: %w", err))
}

var ssProcess = regexp.MustCompile(`\("([^"]+)",pid=(\d+)`)

// ParseSS parses `ss -H -ltnp` output.
func ParseSS(out []byte) []schema.PortInfo {
	var infos []schema.PortInfo
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 || fields[0] != "LISTEN" {
			continue
		}
		port, ok := portOf(fields[3])
		if !ok {
			continue
		}
		info := schema.PortInfo{Port: port, InUse: true, NeedsAdmin: true}
		if m := ssProcess.FindStringSubmatch(sc.Text()); m != nil {
			info.ProcessName = m[1]
			info.PID, _ = strconv.Atoi(m[2])
			info.NeedsAdmin = info.PID == 0
		}
		infos = append(infos, info)
	}
	return dedupe(infos)
}

// ParseNetstat parses `netstat -antp` output.
func ParseNetstat(out []byte) []schema.PortInfo {
	var infos []schema.PortInfo
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 6 || fields[5] != "LISTEN" {
			continue
		}
		port, ok := portOf(fields[3])
		if !ok {
			continue
		}
		info := schema.PortInfo{Port: port, InUse: true, NeedsAdmin: true}
		if len(fields) > 6 {
			if pid, name, found := strings.Cut(fields[6], "/"); found {
				if n, err := strconv.Atoi(pid); err == nil {
					info.PID = n
					info.ProcessName = name
					info.NeedsAdmin = false
				}
			}
		}
		infos = append(infos, info)
	}
	return dedupe(infos)
}

func portOf(addr string) (int, bool) {
	idx := strings.LastIndexByte(addr, ':')
	if idx < 0 {
		return 0, false
	}
	port, err := strconv.Atoi(addr[idx+1:])
	if err != nil || ValidatePort(port) != nil {
		return 0, false
	}
	return port, true
}

// dedupe keeps one entry per port, preferring entries that name a process.
func dedupe(infos []schema.PortInfo) []schema.PortInfo {
	sort.SliceStable(infos, func(i, j int) bool { return infos[i].Port < infos[j].Port })
	out := infos[:0]
	for _, info := range infos {
		if n := len(out); n > 0 && out[n-1].Port == info.Port {
			if out[n-1].PID == 0 && info.PID != 0 {
				out[n-1] = info
			}
			continue
		}
		out = append(out, info)
	}
	return out
}
