package notify

import (
	"github.com/golang/glog"

	"github.com/mqy/minichat/chat"
	"github.com/mqy/minichat/metrics"
)

// Notifier applies ShouldNotify to appended messages and surfaces the
// qualifying ones on a Sink. It is not safe for concurrent use; a session
// calls it from its event loop.
type Notifier struct {
	sink  Sink
	perms PermissionStore

	self    chat.Identity
	asked   bool
	granted bool
}

func NewNotifier(sink Sink, perms PermissionStore) *Notifier {
	if perms == nil {
		perms = MemPermissions{}
	}
	return &Notifier{sink: sink, perms: perms}
}

// OnJoin records the local identity and, the first time only, asks for
// notification permission unless an earlier answer is remembered.
func (n *Notifier) OnJoin(self chat.Identity) {
	n.self = self
	if n.asked {
		return
	}
	n.asked = true

	granted, known, err := n.perms.Get(self.Name)
	if err != nil {
		glog.Errorf("notify: read permission of %q error: %v", self.Name, err)
	} else if known {
		n.granted = granted
		glog.V(5).Infof("notify: remembered permission of %q: %t", self.Name, granted)
		return
	}

	granted, err = n.sink.RequestPermission()
	if err != nil {
		glog.Errorf("notify: request permission error: %v", err)
		return
	}
	n.granted = granted
	if err := n.perms.Put(self.Name, granted); err != nil {
		glog.Errorf("notify: save permission of %q error: %v", self.Name, err)
	}
}

// Granted reports whether alerts may be surfaced.
func (n *Notifier) Granted() bool {
	return n.granted
}

// OnAppend is called for every message newly appended to the timeline.
// It reports whether an alert was surfaced.
func (n *Notifier) OnAppend(msg chat.Message, focused bool) bool {
	if !ShouldNotify(msg, focused, n.self) {
		return false
	}
	if !n.granted {
		metrics.Notifications.WithLabelValues("denied").Inc()
		return false
	}
	if err := n.sink.Notify(NewAlert(msg)); err != nil {
		glog.Errorf("notify: alert for message %s error: %v", msg.Id, err)
		metrics.Notifications.WithLabelValues("error").Inc()
		return false
	}
	metrics.Notifications.WithLabelValues("sent").Inc()
	return true
}
