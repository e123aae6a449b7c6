package config

import (
	"flag"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	reach "github.com/digineo/go-reach"
	"github.com/digineo/go-reach/rules"
)

// Config holds the settings shared by the binaries.
type Config struct {
	Timeouts reach.Timeouts // probe defaults

	Bind4         string              // ICMPv4 bind address, "" disables IPv4 ICMP
	Bind6         string              // ICMPv6 bind address, "" disables IPv6 ICMP
	ICMPMode      reach.Mode          // raw or datagram ICMP sockets
	LiteralPolicy reach.LiteralPolicy // resolvability of IP literals
	Mark          uint                // SO_MARK for TCP probes, 0 disables

	LogDir        string // "" logs warnings to stderr
	APIAddr       string // reach-api bind address
	Concurrency   int    // rules evaluated at once
	AllowCommands bool   // permit command and HTTP checks over the API
}

// FromEnv reads the REACH_* environment variables. Invalid values are
// ignored in favour of the defaults.
func FromEnv() Config {
	cfg := Config{
		Timeouts: reach.Timeouts{
			ICMP:    millis("REACH_ICMP_TIMEOUT_MS", reach.DefaultICMPTimeout),
			TCP:     millis("REACH_TCP_TIMEOUT_MS", reach.DefaultTCPTimeout),
			DNS:     millis("REACH_DNS_TIMEOUT_MS", reach.DefaultDNSTimeout),
			Command: millis("REACH_COMMAND_TIMEOUT_MS", reach.DefaultCommandTimeout),
		},
		Bind4:       "0.0.0.0",
		Bind6:       "::",
		LogDir:      os.Getenv("REACH_LOG_DIR"),
		APIAddr:     "127.0.0.1:8080",
		Concurrency: runtime.NumCPU(),
	}

	// set but empty disables the address family
	if v, ok := os.LookupEnv("REACH_BIND4"); ok {
		cfg.Bind4 = strings.TrimSpace(v)
	}
	if v, ok := os.LookupEnv("REACH_BIND6"); ok {
		cfg.Bind6 = strings.TrimSpace(v)
	}

	if m, err := reach.ParseMode(os.Getenv("REACH_ICMP_MODE")); err == nil {
		cfg.ICMPMode = m
	}
	if p, err := reach.ParseLiteralPolicy(os.Getenv("REACH_LITERAL_POLICY")); err == nil {
		cfg.LiteralPolicy = p
	}

	if v := os.Getenv("REACH_MARK"); v != "" {
		if n, err := strconv.ParseUint(v, 0, 32); err == nil {
			cfg.Mark = uint(n)
		}
	}
	if v := os.Getenv("REACH_API_ADDR"); v != "" {
		cfg.APIAddr = v
	}
	if v := os.Getenv("REACH_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Concurrency = n
		}
	}
	if v := os.Getenv("REACH_ALLOW_COMMANDS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AllowCommands = b
		}
	}

	return cfg
}

// RegisterFlags binds the probe settings to fs, with the current values
// as defaults. Call it after FromEnv so flags override the environment.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.DurationVar(&c.Timeouts.ICMP, "icmp-timeout", c.Timeouts.ICMP, "timeout of an ICMP echo request")
	fs.DurationVar(&c.Timeouts.TCP, "tcp-timeout", c.Timeouts.TCP, "timeout of a TCP connect")
	fs.DurationVar(&c.Timeouts.DNS, "dns-timeout", c.Timeouts.DNS, "timeout of a DNS lookup")
	fs.DurationVar(&c.Timeouts.Command, "command-timeout", c.Timeouts.Command, "timeout of a shell command")

	fs.StringVar(&c.Bind4, "bind4", c.Bind4, "ICMPv4 bind address, empty disables IPv4")
	fs.StringVar(&c.Bind6, "bind6", c.Bind6, "ICMPv6 bind address, empty disables IPv6")
	fs.UintVar(&c.Mark, "mark", c.Mark, "SO_MARK for TCP probes (Linux only)")
	fs.StringVar(&c.LogDir, "log-dir", c.LogDir, "directory for log files")

	fs.Func("icmp-mode", "auto, privileged or unprivileged (default "+c.ICMPMode.String()+")", func(s string) error {
		m, err := reach.ParseMode(s)
		if err == nil {
			c.ICMPMode = m
		}
		return err
	})
	fs.Func("literal-policy", "resolvability of IP literals: self or reverse (default "+c.LiteralPolicy.String()+")", func(s string) error {
		p, err := reach.ParseLiteralPolicy(s)
		if err == nil {
			c.LiteralPolicy = p
		}
		return err
	})
}

// ApplyRules layers the literal policy and timeouts of a rules file over
// c. Flags given on fs keep precedence over the file.
func (c *Config) ApplyRules(f *rules.File, fs *flag.FlagSet) {
	given := make(map[string]bool)
	if fs != nil {
		fs.Visit(func(fl *flag.Flag) {
			given[fl.Name] = true
		})
	}

	if f.LiteralPolicy != "" && !given["literal-policy"] {
		c.LiteralPolicy = f.Policy()
	}

	set := func(dst *time.Duration, v time.Duration, name string) {
		if v > 0 && !given[name] {
			*dst = v
		}
	}
	set(&c.Timeouts.ICMP, f.Timeouts.ICMP, "icmp-timeout")
	set(&c.Timeouts.TCP, f.Timeouts.TCP, "tcp-timeout")
	set(&c.Timeouts.DNS, f.Timeouts.DNS, "dns-timeout")
	set(&c.Timeouts.Command, f.Timeouts.Command, "command-timeout")
}

// EngineOptions maps the configuration to reach.NewEngine.
func (c Config) EngineOptions() reach.Options {
	return reach.Options{
		Timeouts: c.Timeouts,
		Bind4:    c.Bind4,
		Bind6:    c.Bind6,
		ICMPMode: c.ICMPMode,
		Literals: c.LiteralPolicy,
		Mark:     c.Mark,
	}
}

func millis(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}
