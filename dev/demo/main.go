package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/golang/glog"
	kafka "github.com/segmentio/kafka-go"

	"github.com/mqy/minichat/notify"
	"github.com/mqy/minichat/ws"
)

// The demo server hosts one chat room for local development, announces on a
// ticker, and tails the alerts that clients publish to kafka.

var (
	flagAddr          = flag.String("addr", "127.0.0.1:8000", "server address, ip:port; clients dial ws://<addr>/ws")
	flagAnnounceEvery = flag.Duration("announce-every", 0, "post a system announcement with this period, 0 to disable")
	flagAnnounceText  = flag.String("announce-text", "this is a development server", "announcement text")
	flagKafkaBrokers  = flag.String("alert-kafka-brokers", "", "comma separated kafka brokers to tail alerts from, empty to disable")
	flagKafkaTopic    = flag.String("alert-kafka-topic", notify.DefaultAlertTopic, "kafka topic of alerts")
)

func main() {
	flag.Parse()
	os.Exit(run())
}

func run() int {
	defer glog.Flush()

	if *flagAddr == "" {
		glog.Errorf("--addr is required")
		return 1
	}

	hub := ws.NewHub()
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	srv := &http.Server{Addr: *flagAddr, Handler: mux}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopped := make(chan struct{}, 1)
	go hub.Run(ctx, stopped)

	if *flagAnnounceEvery > 0 {
		go announce(ctx, hub, *flagAnnounceEvery, *flagAnnounceText)
	}
	if *flagKafkaBrokers != "" {
		// kafka-topics.sh --bootstrap-server localhost:9092 --topic minichat-alerts --create
		go tailAlerts(ctx, strings.Split(*flagKafkaBrokers, ","), *flagKafkaTopic)
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh
		glog.Infof("received signal `%s` stopping", sig)
		cancel()
		<-stopped
		_ = srv.Shutdown(context.Background())
	}()

	glog.Infof("demo server is listening on %s", *flagAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		glog.Errorf("listen error: %v", err)
		return 1
	}
	glog.Info("demo server exited")
	return 0
}

func announce(ctx context.Context, hub *ws.Hub, every time.Duration, text string) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hub.Announce(text)
		}
	}
}

func tailAlerts(ctx context.Context, brokers []string, topic string) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  "minichat-demo",
		MinBytes: 1,
		MaxBytes: 1 << 20,
		Dialer: &kafka.Dialer{
			Timeout:   10 * time.Second,
			DualStack: true,
		},
	})
	defer r.Close()

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				glog.Errorf("kafka: read alert error: %v", err)
			}
			return
		}
		var alert notify.KafkaAlert
		if err := json.Unmarshal(m.Value, &alert); err != nil {
			glog.Errorf("kafka: bad alert at offset %d: %v", m.Offset, err)
			continue
		}
		glog.Infof("alert for %s: %s: %s", alert.User, alert.Title, alert.Body)
	}
}
