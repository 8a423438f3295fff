// Package exchange implements CRGP's inter-process message transport.
// Processes exchange opaque, gob-encoded envelopes over plain net/rpc
// connections - one persistent client connection per peer, one rpc.Server
// per process accepting from every peer. See DESIGN.md for why net/rpc +
// gob was chosen over a generated-stub RPC transport.
package exchange

import (
	"context"
	"net"
	"net/rpc"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"

	"github.com/crgp/crgp/internal/crgperr"
)

// Envelope is one message routed from a shard on the sending process to a
// shard on the receiving process. Payload is left opaque (gob-encoded by
// the dataflow package) so this package stays domain-agnostic.
type Envelope struct {
	Epoch     int
	FromShard int
	ToShard   int
	Payload   []byte
}

// Ack is the RPC reply type. CRGP's exchange is a request/reply protocol,
// not fire-and-forget: applying an Envelope on the receiving shard may
// itself produce a result (an influence edge), so Reply carries that
// result back over the same round trip instead of requiring a second one.
type Ack struct {
	Reply []byte
}

// Inbox receives envelopes delivered by remote peers and returns whatever
// reply payload applying that envelope produced (nil if none). Deliver must
// be safe for concurrent use: one envelope can arrive per connected peer
// concurrently.
type Inbox interface {
	Deliver(Envelope) ([]byte, error)
}

// service is the net/rpc-visible receiver registered under the name
// "Exchange".
type service struct {
	inbox Inbox
}

// Deliver is the exported (net/rpc requires it) method peers call.
func (s *service) Deliver(env Envelope, ack *Ack) error {
	reply, err := s.inbox.Deliver(env)
	if err != nil {
		return err
	}
	ack.Reply = reply
	return nil
}

// Empty is an argument/reply placeholder for RPC methods that carry no
// data, since net/rpc requires concrete (non-empty-interface) types.
type Empty struct{}

// control is the net/rpc-visible receiver for run-lifecycle signaling,
// registered under the name "Control" alongside "Exchange". Peer processes
// have no work of their own to drive - they only ever react to Exchange
// calls from process 0 - so process 0 signals them to stop via Shutdown
// once the run's last epoch has closed.
type control struct {
	done chan struct{}
	once sync.Once
}

func (c *control) Shutdown(_ Empty, _ *Empty) error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// Server accepts incoming envelopes from every peer on one listening
// address, and the shutdown signal that ends a peer process's run.
type Server struct {
	listener  net.Listener
	rpcServer *rpc.Server
	logger    *logrus.Entry
	control   *control
}

// NewServer starts listening on addr and dispatching incoming Deliver calls
// to inbox. Call Close to stop.
func NewServer(addr string, inbox Inbox, logger *logrus.Entry) (*Server, error) {
	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName("Exchange", &service{inbox: inbox}); err != nil {
		return nil, xerrors.Errorf("register exchange service: %w", err)
	}
	ctrl := &control{done: make(chan struct{})}
	if err := rpcServer.RegisterName("Control", ctrl); err != nil {
		return nil, xerrors.Errorf("register control service: %w", err)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, crgperr.Wrap(crgperr.PeerIOFatal, xerrors.Errorf("listen on %q: %w", addr, err))
	}

	s := &Server{listener: ln, rpcServer: rpcServer, logger: logger, control: ctrl}
	go s.acceptLoop()
	return s, nil
}

// WaitForShutdown blocks until a peer calls Client.Shutdown against this
// server, or ctx is done.
func (s *Server) WaitForShutdown(ctx context.Context) error {
	select {
	case <-s.control.done:
		return nil
	case <-ctx.Done():
		return crgperr.Wrap(crgperr.PeerIOFatal, ctx.Err())
	}
}

// Addr returns the server's actual listening address, useful when addr was
// "host:0".
func (s *Server) Addr() string { return s.listener.Addr().String() }

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.rpcServer.ServeConn(conn)
	}
}

// Close stops accepting new peer connections.
func (s *Server) Close() error { return s.listener.Close() }

// Client is a lazily-connected, reconnect-on-failure RPC client to a single
// peer's Server.
type Client struct {
	addr string
	mu   sync.Mutex
	conn *rpc.Client
}

// NewClient returns a client for the peer at addr. It does not dial until
// the first Send.
func NewClient(addr string) *Client { return &Client{addr: addr} }

// Send delivers env to this client's peer and returns whatever reply
// payload the peer's Inbox produced, retrying a bounded number of times
// with backoff before giving up. A successful prior connection is reused;
// a broken one is transparently redialed.
func (c *Client) Send(ctx context.Context, env Envelope) ([]byte, error) {
	const maxAttempts = 5
	backoff := 100 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, crgperr.Wrap(crgperr.PeerIOFatal, ctx.Err())
			}
			backoff *= 2
		}

		conn, err := c.connection()
		if err != nil {
			lastErr = err
			continue
		}

		var ack Ack
		call := conn.Go("Exchange.Deliver", env, &ack, nil)
		select {
		case <-call.Done:
			if call.Error != nil {
				lastErr = call.Error
				c.invalidate()
				continue
			}
			return ack.Reply, nil
		case <-ctx.Done():
			return nil, crgperr.Wrap(crgperr.PeerIOFatal, ctx.Err())
		}
	}
	return nil, crgperr.Wrap(crgperr.PeerIOFatal, xerrors.Errorf("send to %q after %d attempts: %w", c.addr, maxAttempts, lastErr))
}

// Shutdown tells this client's peer that the run is over.
func (c *Client) Shutdown(ctx context.Context) error {
	conn, err := c.connection()
	if err != nil {
		return err
	}
	var reply Empty
	call := conn.Go("Control.Shutdown", Empty{}, &reply, nil)
	select {
	case <-call.Done:
		return call.Error
	case <-ctx.Done():
		return crgperr.Wrap(crgperr.PeerIOFatal, ctx.Err())
	}
}

func (c *Client) connection() (*rpc.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn, nil
	}
	conn, err := rpc.Dial("tcp", c.addr)
	if err != nil {
		return nil, xerrors.Errorf("dial %q: %w", c.addr, err)
	}
	c.conn = conn
	return conn, nil
}

func (c *Client) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Close releases the underlying connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// ConnectBarrier dials every peer in clients and blocks until all have
// accepted a connection (or ctx is done), optionally logging progress as
// peers come up via --report-connection-progress.
func ConnectBarrier(ctx context.Context, clients []*Client, reportProgress bool, logger *logrus.Entry) error {
	remaining := make(map[int]*Client, len(clients))
	for i, c := range clients {
		remaining[i] = c
	}
	for len(remaining) > 0 {
		for i, c := range remaining {
			if c == nil {
				delete(remaining, i)
				continue
			}
			if _, err := c.connection(); err == nil {
				delete(remaining, i)
			}
		}
		if len(remaining) == 0 {
			break
		}
		if reportProgress {
			logger.WithField("peers_remaining", len(remaining)).Info("waiting for peer connections")
		}
		select {
		case <-time.After(200 * time.Millisecond):
		case <-ctx.Done():
			return crgperr.Wrap(crgperr.PeerIOFatal, xerrors.Errorf("connect barrier: %w", ctx.Err()))
		}
	}
	return nil
}
