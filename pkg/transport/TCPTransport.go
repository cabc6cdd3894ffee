package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nm-morais/packetmux/configs"
	internalMsg "github.com/nm-morais/packetmux/internal/message"
	"github.com/nm-morais/packetmux/pkg/codec"
	"github.com/nm-morais/packetmux/pkg/errors"
	"github.com/nm-morais/packetmux/pkg/logs"
	"github.com/nm-morais/packetmux/pkg/message"
	"github.com/nm-morais/packetmux/pkg/peer"
	"github.com/panjf2000/ants"
	log "github.com/sirupsen/logrus"
	"github.com/smallnest/goframe"
	"golang.org/x/net/netutil"
)

const TCPTransportCaller = "TCPTransport"

// TCPTransport carries frames over TCP. Every connection, and the acceptor,
// runs on a worker of a bounded pool; frames are handed to the FrameHandler
// inline so each connection is processed in arrival order.
type TCPTransport struct {
	conf     configs.Config
	self     peer.Peer
	hub      *Hub
	handler  FrameHandler
	versions *internalMsg.VersionPolicy
	pool     *ants.Pool
	nextID   uint64

	mu       sync.Mutex
	listener net.Listener
	closed   bool
	done     chan struct{}
	tasks    sync.WaitGroup

	logger *log.Logger
}

func NewTCPTransport(conf configs.Config, self peer.Peer, handler FrameHandler) (*TCPTransport, error) {
	versions, err := internalMsg.NewVersionPolicy(conf.AcceptVersions)
	if err != nil {
		return nil, err
	}
	pool, err := ants.NewPool(conf.PoolSize())
	if err != nil {
		return nil, fmt.Errorf("worker pool: %w", err)
	}
	t := &TCPTransport{
		conf:     conf,
		self:     self,
		hub:      NewHub(conf.Side, conf.MaxFrameSize),
		handler:  handler,
		versions: versions,
		pool:     pool,
		done:     make(chan struct{}),
		logger:   logs.NewLogger(TCPTransportCaller),
	}
	t.logger.Infof("Starting transport as %s with %d workers", conf.Side, conf.PoolSize())
	return t, nil
}

func (t *TCPTransport) Hub() *Hub {
	return t.hub
}

func (t *TCPTransport) Self() peer.Peer {
	return t.self
}

func (t *TCPTransport) submit(task func()) error {
	t.tasks.Add(1)
	err := t.pool.Submit(func() {
		defer t.tasks.Done()
		task()
	})
	if err != nil {
		t.tasks.Done()
		return fmt.Errorf("submit to worker pool: %w", err)
	}
	return nil
}

func (t *TCPTransport) newID() message.ConnID {
	return message.ConnID(atomic.AddUint64(&t.nextID, 1))
}

func (t *TCPTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Listen binds ListenAddr, caps concurrent connections at MaxConnections and
// accepts in the background. It returns the bound address. Cancelling ctx
// stops accepting; live connections are kept.
func (t *TCPTransport) Listen(ctx context.Context) (net.Addr, error) {
	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", t.conf.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", t.conf.ListenAddr, err)
	}
	l = netutil.LimitListener(l, t.conf.MaxConnections)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		l.Close()
		return nil, fmt.Errorf("transport closed")
	}
	t.listener = l
	t.mu.Unlock()

	if err := t.submit(func() { t.acceptLoop(l) }); err != nil {
		l.Close()
		return nil, err
	}
	go func() {
		select {
		case <-ctx.Done():
			t.logger.Infof("Context done, no longer accepting on %s", l.Addr())
			l.Close()
		case <-t.done:
		}
	}()
	t.logger.Infof("Listening on addr: %s", l.Addr())
	return l.Addr(), nil
}

func (t *TCPTransport) acceptLoop(l net.Listener) {
	for {
		raw, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || t.isClosed() {
				t.logger.Info("Listener closed")
				return
			}
			t.logger.Errorf("Accept failed: %s", err.Error())
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if err := t.submit(func() { t.serveInbound(raw) }); err != nil {
			t.logger.Error(err)
			raw.Close()
		}
	}
}

func (t *TCPTransport) serveInbound(raw net.Conn) {
	frames := newFrameConn(raw)
	hello, err := t.handshake(raw, frames, false)
	if err != nil {
		t.logger.Errorf("Handshake with %s failed: %s", raw.RemoteAddr(), err.Error())
		frames.Close()
		return
	}
	remote := hello.Peer
	if remote.Addr() == "" {
		remote = peer.NewPeer(remote.Name(), raw.RemoteAddr().String())
	}
	c := newConnection(t.newID(), remote, false, frames, t.logger)
	if !t.hub.add(c) {
		c.close()
		return
	}
	t.readLoop(c)
}

// Dial connects to addr, completes the handshake and registers the
// connection as the other side. Frames read from it go to the handler.
func (t *TCPTransport) Dial(ctx context.Context, addr string) (message.ConnID, error) {
	if t.isClosed() {
		return 0, fmt.Errorf("transport closed")
	}
	t.logger.Infof("Dialing %s", addr)
	d := net.Dialer{Timeout: t.conf.DialTimeout}
	raw, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		if nErr, ok := err.(net.Error); ok && nErr.Timeout() {
			t.logger.Errorf("Got timeout error dialing with dialTimeout=%+v", t.conf.DialTimeout)
		}
		return 0, fmt.Errorf("dial %s: %w", addr, err)
	}
	frames := newFrameConn(raw)
	hello, err := t.handshake(raw, frames, true)
	if err != nil {
		frames.Close()
		return 0, err
	}
	c := newConnection(t.newID(), hello.Peer, true, frames, t.logger)
	if !t.hub.add(c) {
		c.close()
		return 0, fmt.Errorf("transport closed")
	}
	if err := t.submit(func() { t.readLoop(c) }); err != nil {
		t.hub.remove(c)
		c.close()
		return 0, err
	}
	t.logger.Infof("Dialed %s successfully (%s)", addr, hello.Peer)
	return c.id, nil
}

// handshake exchanges hellos under HandshakeTimeout. The dialer speaks first.
func (t *TCPTransport) handshake(raw net.Conn, frames goframe.FrameConn, dialer bool) (*internalMsg.HandshakeMessage, error) {
	if err := raw.SetDeadline(time.Now().Add(t.conf.HandshakeTimeout)); err != nil {
		return nil, err
	}
	defer raw.SetDeadline(time.Time{})

	if dialer {
		if err := t.sendHandshakeMessage(frames); err != nil {
			return nil, err
		}
		return t.waitForHandshakeMessage(frames)
	}
	hello, err := t.waitForHandshakeMessage(frames)
	if err != nil {
		return nil, err
	}
	return hello, t.sendHandshakeMessage(frames)
}

func (t *TCPTransport) sendHandshakeMessage(frames goframe.FrameConn) error {
	b, err := internalMsg.NewHandshakeMessage(t.conf.Side, t.conf.ProtocolVersion, t.self).Serialize()
	if err != nil {
		return err
	}
	if err := frames.WriteFrame(b); err != nil {
		return errors.Wrap(errors.ErrHandshakeFailed, TCPTransportCaller, err, "send hello")
	}
	return nil
}

func (t *TCPTransport) waitForHandshakeMessage(frames goframe.FrameConn) (*internalMsg.HandshakeMessage, error) {
	b, err := frames.ReadFrame()
	if err != nil {
		return nil, errors.Wrap(errors.ErrHandshakeFailed, TCPTransportCaller, err, "read hello")
	}
	hello := &internalMsg.HandshakeMessage{}
	if err := hello.Deserialize(b); err != nil {
		return nil, err
	}
	if err := t.versions.Accept(t.conf.Side, hello); err != nil {
		return nil, err
	}
	t.logger.Infof("Received handshake message: %s", hello)
	return hello, nil
}

func (t *TCPTransport) readLoop(c *connection) {
	c.logger.Info("[ConnectionEvent] : Started handling connection")
	defer func() {
		if x := recover(); x != nil {
			c.logger.Errorf("Panic handling frame: %v, STACK: %s", x, string(debug.Stack()))
		}
		t.hub.remove(c)
		c.close()
		c.logger.Info("[ConnectionEvent] : Done handling connection")
	}()

	for {
		raw, err := c.frames.ReadFrame()
		if err != nil {
			if err == io.EOF || errors.Is(err, net.ErrClosed) {
				c.logger.Infof("Connection closed: %s", err.Error())
			} else {
				c.logger.Errorf("Read routine got error: %s", err.Error())
			}
			return
		}
		frame := codec.Frame(raw)
		if t.conf.MaxFrameSize > 0 && len(frame) > t.conf.MaxFrameSize {
			err = errors.Wrap(errors.ErrFrameTooLarge, TCPTransportCaller, nil, "%d > %d bytes", len(frame), t.conf.MaxFrameSize)
		} else {
			err = t.handler.HandleFrame(c.id, frame)
		}
		if err == nil {
			continue
		}
		if !IsBadFrame(err) {
			c.logger.Errorf("Handler failed: %s", err.Error())
			continue
		}
		c.logger.Errorf("Bad frame of %d bytes: %s", len(frame), err.Error())
		if t.conf.BadFramePolicy == configs.DisconnectOnBadFrame {
			c.logger.Warn("Disconnecting after bad frame")
			return
		}
	}
}

// Close stops accepting, closes every connection and waits for their workers
// before releasing the pool.
func (t *TCPTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	l := t.listener
	close(t.done)
	t.mu.Unlock()

	if l != nil {
		if err := l.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			t.logger.Errorf("Err closing listener: %s", err.Error())
		}
	}
	t.hub.closeAll()
	t.tasks.Wait()
	t.pool.Release()
	t.logger.Info("Transport closed")
	return nil
}
