package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Ratata326/james-ia/internal/protocol"
	"github.com/Ratata326/james-ia/internal/voice"
)

const (
	wsWriteTimeout   = 10 * time.Second
	wsReadTimeout    = 120 * time.Second
	analyserInterval = 100 * time.Millisecond
	statusInterval   = 250 * time.Millisecond
)

// handleSessionWS streams session events to one UI client: status
// transitions, appended log entries, and analyser frames while output audio
// is live. The client may drive the session with connect/disconnect control
// messages on the same socket.
func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()
	defer s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()

	logCh, cancelLog := s.orch.Log().Subscribe(256)
	defer cancelLog()

	outbound := make(chan any, 256)
	done := make(chan struct{})
	writerDone := make(chan struct{})

	// Single writer: everything the client sees goes through outbound.
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-done:
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteJSON(msg); err != nil {
					s.metrics.WSWriteErrors.WithLabelValues("write_json").Inc()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
				}
			}
		}
	}()

	send := func(msg any) {
		select {
		case outbound <- msg:
		default:
			// Keep websocket writes single-threaded; drop when the client
			// cannot keep up.
			if t, ok := messageTypeOf(msg); ok {
				s.metrics.WSMessages.WithLabelValues("dropped", string(t)).Inc()
			}
		}
	}

	// Event pump: fans log entries, status transitions, and analyser frames
	// into the outbound queue.
	go func() {
		statusTick := time.NewTicker(statusInterval)
		defer statusTick.Stop()
		analyserTick := time.NewTicker(analyserInterval)
		defer analyserTick.Stop()

		last := s.orch.Snapshot()
		send(statusEventOf(last))

		for {
			select {
			case <-done:
				return
			case entry, ok := <-logCh:
				if !ok {
					return
				}
				send(protocol.LogEntryEvent{
					Type:      protocol.TypeLogEntry,
					ID:        entry.ID,
					Seq:       entry.Seq,
					SessionID: entry.SessionID,
					Sender:    string(entry.Sender),
					Message:   entry.Message,
					TSMs:      entry.At.UnixMilli(),
				})
			case <-statusTick.C:
				snap := s.orch.Snapshot()
				if snap != last {
					last = snap
					send(statusEventOf(snap))
				}
			case <-analyserTick.C:
				an := s.orch.Analyser()
				if an == nil {
					continue
				}
				frame := an.Snapshot(defaultAnalyserBins)
				send(protocol.AnalyserFrameEvent{
					Type:       protocol.TypeAnalyserFrame,
					SampleRate: frame.SampleRate,
					RMS:        frame.RMS,
					Peak:       frame.Peak,
					Bins:       frame.Bins,
				})
			}
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			send(protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				Code:      "invalid_client_message",
				Retryable: false,
				Detail:    err.Error(),
			})
			continue
		}
		ctl, ok := parsed.(protocol.ClientControl)
		if !ok {
			continue
		}
		s.metrics.WSMessages.WithLabelValues("inbound", string(protocol.TypeClientControl)).Inc()
		s.handleControl(ctl, send)
	}

	close(done)
	<-writerDone
}

func (s *Server) handleControl(ctl protocol.ClientControl, send func(any)) {
	switch ctl.Action {
	case protocol.ActionConnect:
		cfg := s.sessionConfig(ctl.Provider, ctl.Model, ctl.Voice, "", "")
		if err := s.orch.Connect(cfg); err != nil {
			send(protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				Code:      "connect_failed",
				Retryable: !isTerminalConnectErr(err),
				Detail:    err.Error(),
			})
		}
	case protocol.ActionDisconnect:
		s.orch.Disconnect()
	default:
		send(protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			Code:      "unknown_action",
			Retryable: false,
			Detail:    "unknown action " + ctl.Action,
		})
	}
}

func isTerminalConnectErr(err error) bool {
	return errors.Is(err, voice.ErrNoCredential)
}

func statusEventOf(snap voice.Snapshot) protocol.StatusEvent {
	ev := protocol.StatusEvent{
		Type:      protocol.TypeStatusEvent,
		Status:    string(snap.Status),
		SessionID: snap.SessionID,
		Provider:  string(snap.Provider),
		Model:     snap.Model,
		Voice:     snap.Voice,
	}
	if !snap.StartedAt.IsZero() {
		ev.StartedAtMs = snap.StartedAt.UnixMilli()
	}
	return ev
}

// messageTypeOf extracts the protocol type tag for metrics labels.
func messageTypeOf(msg any) (protocol.MessageType, bool) {
	switch m := msg.(type) {
	case protocol.StatusEvent:
		return m.Type, true
	case protocol.LogEntryEvent:
		return m.Type, true
	case protocol.AnalyserFrameEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	case protocol.ClientControl:
		return m.Type, true
	default:
		return "", false
	}
}
