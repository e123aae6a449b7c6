package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	reach "github.com/digineo/go-reach"
	"github.com/digineo/go-reach/internal/config"
	"github.com/digineo/go-reach/internal/logging"
	"github.com/digineo/go-reach/rules"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.FromEnv()
	cfg.RegisterFlags(flag.CommandLine)

	var (
		ports       []uint16
		urls        []string
		command     string
		checks      = "icmp,dns,tcp"
		payload     uint16
		socketCheck bool
	)
	flag.Func("ports", "comma separated TCP ports to connect to", func(s string) error {
		p, err := parsePorts(s)
		ports = append(ports, p...)
		return err
	})
	flag.Func("http", "URL to fetch with curl (repeatable)", func(s string) error {
		if slices.Contains(urls, s) {
			return fmt.Errorf("%s: listed twice", s)
		}
		urls = append(urls, s)
		return nil
	})
	flag.StringVar(&command, "command", command, "shell command to run")
	flag.StringVar(&checks, "checks", checks, "checks to run: icmp, dns, tcp")
	flag.Func("size", "ICMP payload size in bytes (0-65535), 0 keeps the default", func(s string) error {
		n, err := parseSize(s)
		payload = n
		return err
	})
	flag.BoolVar(&socketCheck, "socket-check", false, "only test whether ICMP sockets can be opened")
	flag.Parse()

	logger, err := logging.NewLogger(cfg.LogDir, "reach-probe")
	if err != nil {
		fmt.Fprintln(os.Stderr, "unable to set up logging:", err)
		return rules.ExitError
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if socketCheck {
		return checkSockets(ctx, cfg)
	}

	addresses := flag.Args()
	if len(addresses) == 0 {
		fmt.Println("Usage:", os.Args[0], "[options] address1 address2 ...")
		flag.PrintDefaults()
		return rules.ExitError
	}

	set := reach.CheckSet{Command: command}
	for _, c := range strings.Split(checks, ",") {
		switch strings.TrimSpace(c) {
		case "icmp":
			set.Reachability = true
		case "dns":
			set.Resolvability = true
		case "tcp":
			set.Ports = len(ports) > 0
		case "":
		default:
			fmt.Fprintf(os.Stderr, "unknown check %q\n", c)
			return rules.ExitError
		}
	}
	for _, u := range urls {
		set.HTTP = append(set.HTTP, reach.HTTPCheck{URL: u})
	}

	opts := cfg.EngineOptions()
	opts.PayloadSize = payload
	engine := reach.NewEngine(opts)
	defer engine.Close()

	code := rules.ExitPassed
	for _, address := range addresses {
		target, err := reach.NewTarget(address, ports...)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			code = rules.ExitError
			continue
		}

		res := engine.Evaluate(ctx, target, set)
		logger.Info("evaluate",
			zap.String("address", address),
			zap.Stringer("reachable", res.Reachable),
			zap.Duration("duration", res.Duration),
			zap.Error(res.Err()),
		)

		if c := printResult(&res, set); c > code {
			code = c
		}
	}
	return code
}

func parsePorts(s string) ([]uint16, error) {
	var ports []uint16
	for _, f := range strings.Split(s, ",") {
		p, err := strconv.ParseUint(strings.TrimSpace(f), 10, 16)
		if err != nil || p == 0 {
			return nil, fmt.Errorf("invalid port %q", f)
		}
		ports = append(ports, uint16(p))
	}
	return ports, nil
}

func parseSize(s string) (uint16, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid payload size %q", s)
	}
	return uint16(n), nil
}

// printResult writes res and returns its exit code.
func printResult(res *reach.ProbeResult, set reach.CheckSet) int {
	negative := false
	addr := res.Target.Address()
	line := func(check, format string, args ...any) {
		fmt.Printf("  %-12s %s\n", check, fmt.Sprintf(format, args...))
	}

	fmt.Printf("%s (%v)\n", addr, res.Duration.Round(time.Microsecond))

	if set.Reachability && res.Reachable != reach.Unknown {
		if res.IsReachable() {
			line("icmp", "reachable (%v)", res.RTT)
		} else {
			line("icmp", "unreachable")
			negative = true
		}
	}
	if set.Resolvability && res.ErrFor(reach.CheckResolvability, "") == nil {
		if res.Resolvable {
			line("dns", "resolvable %v", res.Addresses)
		} else {
			line("dns", "unresolvable")
			negative = true
		}
	}
	if set.Ports {
		for _, port := range res.Target.Ports() {
			if res.ErrFor(reach.CheckPort, reach.HostPort(addr, port)) != nil {
				continue
			}
			check := "tcp/" + strconv.Itoa(int(port))
			if pr := res.Ports[port]; pr.Reachable {
				line(check, "open (%v)", pr.RTT)
			} else {
				line(check, "closed")
				negative = true
			}
		}
	}
	for _, h := range set.HTTP {
		st, found := res.HTTP[h.URL]
		if !found {
			continue
		}
		switch {
		case st.Connected:
			line("http", "%s: status %s", h.URL, st.Code)
		case st.Reason != "":
			line("http", "%s: no response (%s)", h.URL, st.Reason)
			negative = true
		default:
			line("http", "%s: no response", h.URL)
			negative = true
		}
	}
	if c := res.Command; c != nil {
		if c.TimedOut {
			line("command", "timed out after %v", c.Duration)
			negative = true
		} else {
			line("command", "exit status %d, stdout %q", c.ExitCode, c.Stdout)
			negative = negative || c.ExitCode != 0
		}
	}
	for _, err := range res.Errors {
		line("error", "%v", err)
	}

	switch {
	case len(res.Errors) > 0:
		return rules.ExitError
	case negative:
		return rules.ExitFailed
	}
	return rules.ExitPassed
}

// checkSockets opens the ICMP sockets in both modes and pings the
// loopback address with each.
func checkSockets(ctx context.Context, cfg config.Config) int {
	code := rules.ExitError
	loopback := &net.IPAddr{IP: net.IPv4(127, 0, 0, 1)}
	if cfg.Bind4 == "" {
		loopback = &net.IPAddr{IP: net.IPv6loopback}
	}

	for _, mode := range []reach.Mode{reach.ModePrivileged, reach.ModeUnprivileged} {
		pinger := reach.NewPinger(cfg.Bind4, cfg.Bind6, mode)
		if err := pinger.Open(); err != nil {
			fmt.Printf("%-12s unavailable: %v\n", mode, err)
			if mode == reach.ModeUnprivileged && runtime.GOOS == "linux" {
				fmt.Println("             you may need to adjust the net.ipv4.ping_group_range kernel state")
			}
			continue
		}

		rtt, err := pinger.PingRTT(ctx, loopback, cfg.Timeouts.ICMP)
		pinger.Close()
		if err != nil {
			fmt.Printf("%-12s open, ping %s failed: %v\n", mode, loopback, err)
			continue
		}
		fmt.Printf("%-12s ok, %s answered in %v\n", mode, loopback, rtt)
		code = rules.ExitPassed
	}
	return code
}
