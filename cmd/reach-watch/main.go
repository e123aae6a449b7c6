package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	reach "github.com/digineo/go-reach"
	"github.com/digineo/go-reach/internal/config"
	"github.com/digineo/go-reach/internal/logging"
	"github.com/digineo/go-reach/monitor"
	"github.com/digineo/go-reach/rules"
)

func main() {
	cfg := config.FromEnv()
	cfg.RegisterFlags(flag.CommandLine)

	var (
		rulesPath      string
		ports          []uint16
		interval       = 5 * time.Second
		reportInterval = 60 * time.Second
		historySize    = 50
		headless       bool
		allowCommands  bool
	)
	flag.StringVar(&rulesPath, "rules", rulesPath, "rules file to monitor instead of addresses")
	flag.Func("ports", "comma separated TCP ports of address targets", func(s string) error {
		for _, f := range strings.Split(s, ",") {
			p, err := strconv.ParseUint(strings.TrimSpace(f), 10, 16)
			if err != nil || p == 0 {
				return fmt.Errorf("invalid port %q", f)
			}
			ports = append(ports, uint16(p))
		}
		return nil
	})
	flag.DurationVar(&interval, "interval", interval, "interval between evaluations of a target")
	flag.DurationVar(&reportInterval, "reportInterval", reportInterval, "interval for reports in headless mode")
	flag.IntVar(&historySize, "history", historySize, "number of results per check to keep")
	flag.BoolVar(&headless, "headless", headless, "print periodic reports instead of the terminal UI")
	flag.BoolVar(&allowCommands, "commands", allowCommands, "run command and HTTP checks of rules")
	flag.Parse()

	logger, err := logging.NewLogger(cfg.LogDir, "reach-watch")
	if err != nil {
		fmt.Println("unable to set up logging:", err)
		os.Exit(2)
	}
	defer logger.Sync()

	file, err := loadRules(&cfg, rulesPath, flag.CommandLine)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}

	engine := reach.NewEngine(cfg.EngineOptions())
	defer engine.Close()

	mon := monitor.New(engine, interval)
	mon.HistorySize = historySize
	mon.OnResult = func(key string, res reach.ProbeResult) {
		if err := res.Err(); err != nil {
			logger.Warn("probe_errors", zap.String("target", key), zap.Error(err))
		}
	}

	rows, err := addTargets(mon, file, flag.Args(), ports, allowCommands)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}
	if len(rows) == 0 {
		fmt.Println("Usage:", os.Args[0], "[options] target1 target2 ...")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if headless {
		mon.Start()
		defer mon.Stop()
		runHeadless(mon, reportInterval)
		return
	}

	logs := interceptLog(4)
	ui := buildTUI(mon, rows, logs)
	done := make(chan struct{})
	go ui.update(time.Second, done)

	mon.Start()
	err = ui.Run()
	close(done)
	mon.Stop()

	if err != nil {
		logger.Error("ui", zap.Error(err))
		fmt.Println(err)
		os.Exit(2)
	}
}

// loadRules reads the rules file at path, if any, and applies its
// settings to cfg.
func loadRules(cfg *config.Config, path string, fs *flag.FlagSet) (*rules.File, error) {
	if path == "" {
		return nil, nil
	}
	file, err := rules.Load(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyRules(file, fs)
	return file, nil
}

// addTargets registers the rules of file, or the addresses, with mon.
func addTargets(mon *monitor.Monitor, file *rules.File, addresses []string, ports []uint16, allowCommands bool) ([]row, error) {
	var rows []row

	if file != nil {
		added, err := mon.AddRules(file, allowCommands)
		if err != nil {
			return nil, err
		}
		for _, r := range added {
			rows = append(rows, row{key: r.Title(), address: r.Address})
		}
		return rows, nil
	}

	checks := reach.CheckSet{
		Reachability:  true,
		Resolvability: true,
		Ports:         len(ports) > 0,
	}
	for _, address := range addresses {
		target, err := reach.NewTarget(address, ports...)
		if err != nil {
			return nil, err
		}
		mon.AddTarget(address, target, checks)
		rows = append(rows, row{key: address, address: address})
	}
	return rows, nil
}

func runHeadless(mon *monitor.Monitor, reportInterval time.Duration) {
	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()

	// Handle SIGINT and SIGTERM.
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case sig := <-ch:
			fmt.Println("received", sig)
			return
		case <-ticker.C:
			report(mon.ExportAndClear())
		}
	}
}

func report(metrics map[string]*monitor.TargetMetrics) {
	keys := make([]string, 0, len(metrics))
	for key := range metrics {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		tm := metrics[key]
		if tm.Reachability != nil {
			fmt.Printf("%s icmp: %+v\n", key, *tm.Reachability)
		}
		if tm.Resolvability != nil {
			fmt.Printf("%s dns: %+v\n", key, *tm.Resolvability)
		}

		ports := make([]int, 0, len(tm.Ports))
		for port := range tm.Ports {
			ports = append(ports, int(port))
		}
		sort.Ints(ports)
		for _, port := range ports {
			fmt.Printf("%s tcp/%d: %+v\n", key, port, *tm.Ports[uint16(port)])
		}

		urls := make([]string, 0, len(tm.HTTP))
		for url := range tm.HTTP {
			urls = append(urls, url)
		}
		sort.Strings(urls)
		for _, url := range urls {
			fmt.Printf("%s http %s: %+v\n", key, url, *tm.HTTP[url])
		}
		if tm.Command != nil {
			fmt.Printf("%s command: %+v\n", key, *tm.Command)
		}
	}
}
