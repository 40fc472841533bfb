// Package dispatch turns decrypted frames into state changes and replies.
// One Dispatcher serves all three channels; Run is started once per channel
// and consumes that channel's queue until the transport closes it.
package dispatch

import (
	"context"
	"log/slog"

	"strife/server/internal/metrics"
	"strife/server/internal/protocol"
	"strife/server/internal/session"
	"strife/server/internal/transport"
)

// Dispatcher owns the handler tables and everything they touch.
type Dispatcher struct {
	store    Store
	blob     Blob
	sessions *session.Registry

	general Sender
	chats   Sender
	files   Sender
}

// New wires a dispatcher to its backends and the three channel senders.
func New(st Store, bl Blob, sessions *session.Registry, general, chats, files Sender) *Dispatcher {
	return &Dispatcher{
		store:    st,
		blob:     bl,
		sessions: sessions,
		general:  general,
		chats:    chats,
		files:    files,
	}
}

// Run consumes one channel's queue until the queue closes. General and
// chats handlers run serialized on this goroutine; files handlers — which
// move file payloads — get a goroutine per frame.
func (d *Dispatcher) Run(ctx context.Context, ch protocol.Channel, queue <-chan transport.Frame) {
	slog.Info("dispatcher running", "channel", ch.String())
	for frame := range queue {
		if frame.Sentinel() {
			if ch == protocol.General {
				d.evict(frame.Peer)
			}
			continue
		}

		msg, err := protocol.Decode(ch, frame.Payload)
		if err != nil {
			metrics.FramesDropped.WithLabelValues(ch.String(), "decode").Inc()
			slog.Debug("frame decode failed", "channel", ch.String(), "peer", frame.Peer, "err", err)
			continue
		}

		metrics.DispatchTotal.WithLabelValues(ch.String(), msg.Opname).Inc()
		if ch == protocol.Files {
			go d.invoke(ctx, ch, frame.Peer, msg)
		} else {
			d.invoke(ctx, ch, frame.Peer, msg)
		}
	}
	slog.Info("dispatcher stopped", "channel", ch.String())
}

// invoke runs one handler. Handler errors are logged and swallowed; a
// panicking handler must not take the dispatcher down with it.
func (d *Dispatcher) invoke(ctx context.Context, ch protocol.Channel, peer string, msg *protocol.Message) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("handler panicked", "channel", ch.String(), "opname", msg.Opname, "peer", peer, "panic", r)
		}
	}()

	var err error
	switch ch {
	case protocol.General:
		err = d.handleGeneral(ctx, peer, msg)
	case protocol.Chats:
		err = d.handleChats(ctx, peer, msg)
	case protocol.Files:
		err = d.handleFiles(ctx, peer, msg)
	}
	if err != nil {
		metrics.FramesDropped.WithLabelValues(ch.String(), "handler_error").Inc()
		slog.Warn("handler failed", "channel", ch.String(), "opname", msg.Opname, "peer", peer, "err", err)
	}
}

// evict drops the session of a peer whose general connection died.
func (d *Dispatcher) evict(peer string) {
	username, ok := d.sessions.Username(peer)
	if !ok {
		return
	}
	d.sessions.SignOut(peer)
	metrics.SessionsOpen.Dec()
	slog.Info("session evicted", "peer", peer, "username", username)
}

// approve and reject answer the request identified by its client opcode on
// an arbitrary sender, so handlers reject on the channel a frame arrived on.
func (d *Dispatcher) approve(s Sender, peer string, clientOpcode int) {
	s.Send(protocol.Approve(clientOpcode), peer)
}

func (d *Dispatcher) reject(s Sender, peer string, clientOpcode int) {
	s.Send(protocol.Reject(clientOpcode), peer)
}
