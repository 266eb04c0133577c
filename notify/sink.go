package notify

import (
	"fmt"
	"io"
	"sync"

	"github.com/golang/glog"
)

//go:generate mockgen -destination=mock/mock_sink.go -package=mock github.com/mqy/minichat/notify Sink

// Sink is the platform side of notifications.
type Sink interface {
	// RequestPermission asks the platform whether alerts may be shown.
	RequestPermission() (bool, error)

	// Notify surfaces one alert.
	Notify(alert Alert) error
}

// LogSink writes alerts to the log. It never needs permission.
type LogSink struct{}

func (LogSink) RequestPermission() (bool, error) {
	return true, nil
}

func (LogSink) Notify(alert Alert) error {
	glog.Infof("notify: %s: %s", alert.Title, alert.Body)
	return nil
}

// TerminalSink rings the terminal bell and prints the alert on W.
type TerminalSink struct {
	sync.Mutex
	W    io.Writer
	Bell bool
}

func (s *TerminalSink) RequestPermission() (bool, error) {
	return true, nil
}

func (s *TerminalSink) Notify(alert Alert) error {
	s.Lock()
	defer s.Unlock()
	bell := ""
	if s.Bell {
		bell = "\a"
	}
	_, err := fmt.Fprintf(s.W, "%s** %s: %s\n", bell, alert.Title, alert.Body)
	return err
}

// MultiSink fans alerts out to every sink. Permission is granted when any
// sink grants it; Notify reports the first error after trying all sinks.
type MultiSink []Sink

func (m MultiSink) RequestPermission() (bool, error) {
	var granted bool
	var firstErr error
	for _, s := range m {
		ok, err := s.RequestPermission()
		if err != nil {
			glog.Errorf("notify: request permission error: %v", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		granted = granted || ok
	}
	if granted {
		return true, nil
	}
	return false, firstErr
}

func (m MultiSink) Notify(alert Alert) error {
	var firstErr error
	for _, s := range m {
		if err := s.Notify(alert); err != nil {
			glog.Errorf("notify: sink error: %v", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
