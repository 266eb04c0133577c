package session

import (
	"fmt"

	"github.com/golang/glog"

	"github.com/mqy/minichat/chat"
	"github.com/mqy/minichat/event"
	"github.com/mqy/minichat/metrics"
)

func (s *Session) handleInbound(in inbound) {
	if in.gen != s.gen {
		glog.V(5).Infof("session: dropped event of stale connection %d (current %d)", in.gen, s.gen)
		return
	}
	if in.msg == nil {
		s.onTransportFailure(in.err)
		return
	}

	msg := in.msg
	if err := event.Validate(msg); err != nil {
		glog.Errorf("session: %v", err)
		metrics.MalformedEvents.WithLabelValues("validate").Inc()
		return
	}
	metrics.InboundEvents.WithLabelValues(msg.Kind()).Inc()

	if v := msg.Message; v != nil {
		s.onMessage(event.ToMessage(v))
	} else if v := msg.PresenceSnapshot; v != nil {
		participants := make([]chat.Participant, 0, len(v.Participants))
		for _, p := range v.Participants {
			participants = append(participants, event.ToParticipant(p))
		}
		s.presence.Snapshot(participants)
		s.publish(Update{Kind: RosterChanged})
		if s.state == chat.Connecting {
			s.connected()
		}
	} else if v := msg.ParticipantJoined; v != nil {
		s.presence.Joined(event.ToParticipant(v))
		s.publish(Update{Kind: RosterChanged})
	} else if v := msg.ParticipantLeft; v != nil {
		if s.presence.Left(event.ToParticipant(v)) {
			s.publish(Update{Kind: TypingChanged})
		}
		s.publish(Update{Kind: RosterChanged})
	} else if v := msg.TypingStarted; v != nil {
		if s.presence.TypingStarted(v.Username) {
			s.publish(Update{Kind: TypingChanged})
		}
	} else if v := msg.TypingStopped; v != nil {
		if s.presence.TypingStopped(v.Username) {
			s.publish(Update{Kind: TypingChanged})
		}
	} else if v := msg.ReactionUpdate; v != nil {
		s.tallies.Replace(v.MessageId, v.Reactions)
		s.publish(Update{Kind: ReactionsChanged, MessageId: v.MessageId})
	} else if v := msg.Error; v != nil {
		s.onRejected(msg.RequestId, v)
	}
}

func (s *Session) onMessage(m chat.Message) {
	if m.Timestamp.IsZero() {
		m.Timestamp = s.conf.Now()
	}
	if !s.timeline.Append(m) {
		glog.V(5).Infof("session: dropped redelivered message %s", m.Id)
		metrics.DuplicateMessages.Inc()
		return
	}
	s.publish(Update{Kind: MessageAppended, Message: &m})
	s.notifier.OnAppend(m, s.focused)
}

// onRejected surfaces a declined intent. A declined first join ends the
// session. A declined re-join is one more failed reconnect attempt: the
// server may still hold the dropped connection until its pong wait expires.
// Anything else leaves the session intact.
func (s *Session) onRejected(requestId string, e *event.Error) {
	kind, ok := s.pending[requestId]
	if ok {
		delete(s.pending, requestId)
	} else {
		kind = e.Req.Kind()
	}
	if kind == "" {
		kind = "unknown"
	}

	glog.Errorf("session: server rejected %s (request id %q): code %d: %s", kind, requestId, e.Code, e.Reason())
	metrics.RejectedIntents.WithLabelValues(kind).Inc()
	s.publish(Update{Kind: IntentRejected, Rejection: &Rejection{
		Intent: kind,
		Code:   e.Code,
		Reason: e.Reason(),
	}})

	if kind != "join" {
		return
	}
	if s.rejoin {
		s.retry(fmt.Errorf("re-join rejected: code %d: %s", e.Code, e.Reason()))
		return
	}
	s.teardown(false)
}
