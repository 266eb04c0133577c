package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mqy/minichat/channel"
	"github.com/mqy/minichat/chat"
	"github.com/mqy/minichat/notify"
	"github.com/mqy/minichat/session"
)

const joinTimeout = 10 * time.Second

var (
	flagURL  = flag.String("url", "ws://127.0.0.1:8000/ws", "chat server websocket url")
	flagName = flag.String("name", "", "display name to join as")

	flagMetricsAddr    = flag.String("metrics-addr", "127.0.0.1:9100", "address to serve prometheus /metrics on")
	flagDisableMetrics = flag.Bool("disable-metrics", false, "disable prometheus metrics")
	flagPprofDir       = flag.String("pprof-dir", "pprof", "dir to save pprof data files")

	flagStateDb = flag.String("state-db", "minichat.db", "bbolt file remembering notification permission, empty to keep it in memory")
	flagBell    = flag.Bool("bell", true, "ring the terminal bell on alerts")

	flagAlertKafkaBrokers = flag.String("alert-kafka-brokers", "", "comma separated kafka brokers to publish alerts to, empty to disable")
	flagAlertKafkaTopic   = flag.String("alert-kafka-topic", notify.DefaultAlertTopic, "kafka topic of alerts")
)

func main() {
	flag.Parse()

	// NOTE: os.Exit() does not call defers.
	os.Exit(run())
}

func run() int {
	defer glog.Flush()

	if v := validateFlags(); v > 0 {
		return v
	}

	var perms notify.PermissionStore = notify.MemPermissions{}
	if *flagStateDb != "" {
		store, err := notify.OpenBoltPermissions(*flagStateDb)
		if err != nil {
			return errorf("--state-db: %v", err)
		}
		defer store.Close()
		perms = store
	}

	sink := notify.MultiSink{&notify.TerminalSink{W: os.Stdout, Bell: *flagBell}}
	if *flagAlertKafkaBrokers != "" {
		kafkaSink := notify.NewKafkaSink(
			notify.NewKafkaWriter(strings.Split(*flagAlertKafkaBrokers, ","), *flagAlertKafkaTopic),
			*flagName,
		)
		defer kafkaSink.Close()
		sink = append(sink, kafkaSink)
	}

	if !*flagDisableMetrics {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(
			prometheus.DefaultGatherer,
			promhttp.HandlerOpts{},
		))
		go func() {
			if err := http.ListenAndServe(*flagMetricsAddr, mux); err != nil {
				glog.Errorf("metrics server error: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
	defer cancel()

	s, err := session.Join(ctx, chat.Identity{Name: *flagName}, &channel.WSDialer{URL: *flagURL},
		notify.NewNotifier(sink, perms), nil)
	if err != nil {
		return errorf("%v", err)
	}

	con := newConsole(s, os.Stdout)
	go con.printLoop(s.Subscribe())
	go con.readLoop(os.Stdin)
	con.printf("joining %s as %s, /help for commands\n", *flagURL, *flagName)

	pprofDir := filepath.Join(*flagPprofDir, strconv.Itoa(os.Getpid()))
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	var prof *profiler
	defer func() {
		if prof != nil {
			prof.Stop()
		}
	}()

	for {
		select {
		case <-s.Done():
			glog.Info("minichat exited")
			return 0
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGUSR1, syscall.SIGUSR2:
				if err := os.MkdirAll(pprofDir, 0750); err != nil {
					glog.Errorf("--pprof-dir: error create dir `%s`: %v", pprofDir, err)
					continue
				}
				if sig == syscall.SIGUSR1 {
					dumpGoroutines(pprofDir)
				} else if prof == nil {
					prof = startProfiler(pprofDir)
				} else {
					prof.Stop()
					prof = nil
				}
			case syscall.SIGTERM, syscall.SIGINT:
				glog.Infof("received signal `%s` leaving", sig)
				s.Disconnect()
			}
		}
	}
}

func validateFlags() int {
	if strings.TrimSpace(*flagName) == "" {
		return errorf("--name is required")
	}
	if *flagURL == "" {
		return errorf("--url is required")
	}
	if err := validateURL(*flagURL); err != nil {
		return errorf("--url: %v", err)
	}
	if !*flagDisableMetrics && *flagMetricsAddr == "" {
		return errorf("--metrics-addr is required unless --disable-metrics")
	}
	if *flagPprofDir == "" {
		return errorf("--pprof-dir is required")
	}
	if *flagAlertKafkaBrokers != "" && *flagAlertKafkaTopic == "" {
		return errorf("--alert-kafka-topic is required with --alert-kafka-brokers")
	}
	return 0
}

func validateURL(s string) error {
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("scheme `%s` is not ws or wss", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

func errorf(fmt string, args ...interface{}) int {
	glog.Errorf(fmt, args...)
	return 1
}
