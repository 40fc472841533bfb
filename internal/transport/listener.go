// Package transport runs the three framed TCP channels. Each Listener owns
// one port: it performs the per-connection key exchange, decrypts inbound
// frames onto its queue, and encrypts outbound frames written through Send.
//
// Peers are identified by their bare IP. The same end user connects to all
// three channels from one host, so the IP is what ties a general-channel
// session to the user's chats and files connections. One connection per IP
// per channel; latecomers are handshaked and then closed without state.
package transport

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"strife/server/internal/crypto"
	"strife/server/internal/metrics"
	"strife/server/internal/protocol"
)

const (
	// maxPublicKeyPEM bounds the handshake read of the peer's public key.
	maxPublicKeyPEM = 1024

	// handshakeTimeout bounds the whole key exchange.
	handshakeTimeout = 10 * time.Second

	// maxPayloadBytes caps a single frame's ciphertext, prefix widths
	// permitting. The 4-digit channels are capped by the prefix itself.
	maxPayloadBytes = 1 << 30
)

// pemEndMarker terminates a public key block on the wire. Both sides write
// PEM ending in this marker plus a newline.
var pemEndMarker = []byte("-----END PUBLIC KEY-----\n")

// Frame is one unit handed to the dispatcher: a decrypted payload and the
// peer IP it came from. A connection that had a record and closed emits the
// sentinel — an empty payload — exactly once.
type Frame struct {
	Payload string
	Peer    string
}

// Sentinel reports whether the frame marks a peer's disconnection.
func (f Frame) Sentinel() bool { return f.Payload == "" }

// prefixWidth returns the channel's decimal length-prefix width. It applies
// to reads and writes alike.
func prefixWidth(ch protocol.Channel) int {
	if ch == protocol.Files {
		return 10
	}
	return 4
}

// peerConn is one handshaked client connection.
type peerConn struct {
	conn       net.Conn
	sessionKey string
	writeMu    sync.Mutex
}

// Listener accepts and serves one channel's connections.
type Listener struct {
	channel protocol.Channel
	addr    string
	queue   chan Frame

	keys   *crypto.KeyPair
	pubPEM []byte

	ln      net.Listener
	closeCh chan struct{}
	wg      sync.WaitGroup

	connsMu sync.RWMutex
	conns   map[string]*peerConn
	pending map[net.Conn]struct{}
	closed  bool
}

// NewListener prepares a listener for one channel. The queue carries
// decrypted frames to the dispatcher; the listener owns its write side and
// closes it once Stop has drained every connection.
func NewListener(ch protocol.Channel, addr string, queue chan Frame) (*Listener, error) {
	keys, err := crypto.NewKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generate listener key pair: %w", err)
	}
	pubPEM, err := keys.PublicKeyPEM()
	if err != nil {
		return nil, fmt.Errorf("export listener public key: %w", err)
	}
	return &Listener{
		channel: ch,
		addr:    addr,
		queue:   queue,
		keys:    keys,
		pubPEM:  pubPEM,
		closeCh: make(chan struct{}),
		conns:   make(map[string]*peerConn),
		pending: make(map[net.Conn]struct{}),
	}, nil
}

// Start binds the port and begins accepting. It fails fast when the port
// cannot be bound.
func (l *Listener) Start() error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("listen on %s channel: %w", l.channel, err)
	}
	l.ln = ln
	slog.Info("channel listening", "channel", l.channel.String(), "addr", ln.Addr().String())

	l.wg.Add(1)
	go l.acceptLoop()
	return nil
}

// Addr returns the bound address; useful with ":0" in tests.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// ConnCount returns the number of handshaked connections.
func (l *Listener) ConnCount() int {
	l.connsMu.RLock()
	defer l.connsMu.RUnlock()
	return len(l.conns)
}

// Stop closes the port and every connection, waits for the per-connection
// goroutines to emit their sentinels, and then closes the queue.
func (l *Listener) Stop() {
	l.connsMu.Lock()
	if l.closed {
		l.connsMu.Unlock()
		return
	}
	l.closed = true
	for _, pc := range l.conns {
		_ = pc.conn.Close()
	}
	for conn := range l.pending {
		_ = conn.Close()
	}
	l.connsMu.Unlock()

	close(l.closeCh)
	if l.ln != nil {
		_ = l.ln.Close()
	}
	l.wg.Wait()
	close(l.queue)
	slog.Info("channel stopped", "channel", l.channel.String())
}

func (l *Listener) acceptLoop() {
	defer l.wg.Done()
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-l.closeCh:
				return
			default:
				slog.Warn("accept failed", "channel", l.channel.String(), "err", err)
				continue
			}
		}

		l.connsMu.Lock()
		if l.closed {
			l.connsMu.Unlock()
			_ = conn.Close()
			return
		}
		l.pending[conn] = struct{}{}
		l.connsMu.Unlock()

		l.wg.Add(1)
		go l.handleConn(conn)
	}
}

// handleConn runs the key exchange and then the read loop. Any handshake
// failure closes the socket with no state and no sentinel.
func (l *Listener) handleConn(conn net.Conn) {
	defer l.wg.Done()
	peer := peerIP(conn.RemoteAddr())

	pc, err := l.handshake(conn)
	l.connsMu.Lock()
	delete(l.pending, conn)
	l.connsMu.Unlock()
	if err != nil {
		metrics.HandshakesTotal.WithLabelValues(l.channel.String(), "error").Inc()
		slog.Debug("handshake failed", "channel", l.channel.String(), "peer", peer, "err", err)
		_ = conn.Close()
		return
	}

	l.connsMu.Lock()
	if l.closed {
		l.connsMu.Unlock()
		_ = conn.Close()
		return
	}
	if _, occupied := l.conns[peer]; occupied {
		l.connsMu.Unlock()
		metrics.HandshakesTotal.WithLabelValues(l.channel.String(), "duplicate").Inc()
		slog.Warn("peer already connected, dropping new connection",
			"channel", l.channel.String(), "peer", peer)
		_ = conn.Close()
		return
	}
	l.conns[peer] = pc
	l.connsMu.Unlock()

	metrics.HandshakesTotal.WithLabelValues(l.channel.String(), "ok").Inc()
	metrics.ConnectionsOpen.WithLabelValues(l.channel.String()).Inc()
	slog.Info("peer connected", "channel", l.channel.String(), "peer", peer)

	l.readLoop(pc, peer)
}

// handshake performs the lock-step key exchange: our public key out, the
// peer's public key in, then a fresh session key out under RSA.
func (l *Listener) handshake(conn net.Conn) (*peerConn, error) {
	_ = conn.SetDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetDeadline(time.Time{})

	if _, err := conn.Write(l.pubPEM); err != nil {
		return nil, fmt.Errorf("send public key: %w", err)
	}

	peerPEM, err := readPublicKeyPEM(conn)
	if err != nil {
		return nil, err
	}

	sessionKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	wrapped, err := crypto.WrapKey(sessionKey, peerPEM)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write(wrapped); err != nil {
		return nil, fmt.Errorf("send session key: %w", err)
	}

	return &peerConn{conn: conn, sessionKey: sessionKey}, nil
}

// readPublicKeyPEM reads the peer's PEM block, bounded, terminated by the
// END marker line.
func readPublicKeyPEM(conn net.Conn) ([]byte, error) {
	buf := make([]byte, 0, maxPublicKeyPEM)
	chunk := make([]byte, 256)
	for {
		n, err := conn.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if bytes.HasSuffix(buf, pemEndMarker) {
			return buf, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read peer public key: %w", err)
		}
		if len(buf) >= maxPublicKeyPEM {
			return nil, fmt.Errorf("peer public key exceeds %d bytes", maxPublicKeyPEM)
		}
	}
}

// readLoop decodes length-prefixed frames until the connection dies. Every
// exit path funnels through closePeer, which emits the sentinel.
func (l *Listener) readLoop(pc *peerConn, peer string) {
	defer l.closePeer(peer)

	prefix := make([]byte, prefixWidth(l.channel))
	for {
		if _, err := io.ReadFull(pc.conn, prefix); err != nil {
			return
		}
		size, err := strconv.Atoi(string(prefix))
		if err != nil || size <= 0 || size > maxPayloadBytes {
			slog.Debug("bad frame prefix, closing peer",
				"channel", l.channel.String(), "peer", peer, "prefix", string(prefix))
			return
		}

		payload := make([]byte, size)
		if _, err := io.ReadFull(pc.conn, payload); err != nil {
			return
		}

		plaintext, err := crypto.Decrypt(string(payload), pc.sessionKey)
		if err != nil {
			metrics.FramesDropped.WithLabelValues(l.channel.String(), "decrypt").Inc()
			slog.Debug("frame decrypt failed, closing peer",
				"channel", l.channel.String(), "peer", peer, "err", err)
			return
		}

		metrics.FramesRead.WithLabelValues(l.channel.String()).Inc()
		l.queue <- Frame{Payload: plaintext, Peer: peer}
	}
}

// closePeer removes the peer's record, closes the socket, and emits the
// sentinel. The delete-under-lock makes the sentinel single-shot no matter
// how many paths race here.
func (l *Listener) closePeer(peer string) {
	l.connsMu.Lock()
	pc, ok := l.conns[peer]
	if ok {
		delete(l.conns, peer)
	}
	l.connsMu.Unlock()
	if !ok {
		return
	}

	_ = pc.conn.Close()
	metrics.ConnectionsOpen.WithLabelValues(l.channel.String()).Dec()
	slog.Info("peer disconnected", "channel", l.channel.String(), "peer", peer)
	l.queue <- Frame{Peer: peer}
}

// Send encrypts payload for each destination peer and writes it framed.
// Unknown peers are skipped; a write failure closes that peer only.
// Fire-and-forget: delivery problems surface as sentinels, not errors.
func (l *Listener) Send(payload string, peers ...string) {
	width := prefixWidth(l.channel)
	for _, peer := range peers {
		l.connsMu.RLock()
		pc, ok := l.conns[peer]
		l.connsMu.RUnlock()
		if !ok {
			metrics.FramesDropped.WithLabelValues(l.channel.String(), "no_conn").Inc()
			slog.Debug("send to unconnected peer dropped",
				"channel", l.channel.String(), "peer", peer)
			continue
		}

		if err := pc.send(payload, width); err != nil {
			metrics.FramesDropped.WithLabelValues(l.channel.String(), "write").Inc()
			slog.Warn("send failed, closing peer",
				"channel", l.channel.String(), "peer", peer, "err", err)
			l.closePeer(peer)
			continue
		}
		metrics.FramesSent.WithLabelValues(l.channel.String()).Inc()
	}
}

// send encrypts and writes one frame under the connection's write lock.
func (pc *peerConn) send(payload string, width int) error {
	ciphertext, err := crypto.Encrypt(payload, pc.sessionKey)
	if err != nil {
		return fmt.Errorf("encrypt frame: %w", err)
	}
	if len(ciphertext) >= pow10(width) {
		return fmt.Errorf("frame of %d bytes exceeds %d-digit prefix", len(ciphertext), width)
	}
	frame := fmt.Sprintf("%0*d%s", width, len(ciphertext), ciphertext)

	pc.writeMu.Lock()
	defer pc.writeMu.Unlock()
	if _, err := pc.conn.Write([]byte(frame)); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func pow10(n int) int {
	p := 1
	for i := 0; i < n; i++ {
		p *= 10
	}
	return p
}

// peerIP reduces a remote address to its bare IP.
func peerIP(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
