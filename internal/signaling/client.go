package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-client/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-client/internal/taskqueue"
)

var errClientRunning = errors.New("signaling: client already running")

// Options carries the collaborators of a Client.
type Options struct {
	// Connections builds the negotiated Connection on the first offer.
	Connections ConnectionFactory
	// Transports defaults to WebSocketTransportFactory(DefaultMaxMessageBytes).
	Transports TransportFactory

	// OnNotify receives the raw text of every "notify" message. It runs on the
	// client's loop goroutine and must not block.
	OnNotify func(raw string)
	// OnStateChange observes every connectivity transition, on the loop
	// goroutine.
	OnStateChange func(from, to ConnectionState)
	// OnTrackAdded and OnTrackRemoved report remote media tracks of the
	// attached Connection, on the loop goroutine.
	OnTrackAdded   func(Track)
	OnTrackRemoved func(Track)

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Client speaks the signaling protocol over one Transport and drives one
// Connection.
//
// All protocol state is owned by the goroutine running Run. Every other entry
// point, and every Transport or Connection completion, posts a task onto that
// loop instead of touching state directly.
type Client struct {
	cfg            Config
	connections    ConnectionFactory
	transports     TransportFactory
	onNotify       func(string)
	onStateChange  func(from, to ConnectionState)
	onTrackAdded   func(Track)
	onTrackRemoved func(Track)
	logger         *slog.Logger
	metrics        *metrics.Metrics

	tasks   *taskqueue.Queue[func()]
	running atomic.Bool
	stopped chan struct{}

	// Mirrors for readers on other goroutines. Written only by the loop.
	stateMirror     atomic.Int32
	connectedMirror atomic.Bool

	// connection is shared with Release, which may run on any goroutine.
	connection atomic.Pointer[connectionRef]
	released   atomic.Bool

	// Loop-owned.
	runCtx         context.Context
	state          ConnectionState
	transport      Transport
	writer         *writer
	connecting     bool
	closeAfterDial bool
	host           string
}

// NewClient performs minimal initialization. Nothing happens until Run and
// Connect are called.
func NewClient(cfg Config, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	transports := opts.Transports
	if transports == nil {
		transports = WebSocketTransportFactory(DefaultMaxMessageBytes)
	}
	return &Client{
		cfg:            cfg.clone(),
		connections:    opts.Connections,
		transports:     transports,
		onNotify:       opts.OnNotify,
		onStateChange:  opts.OnStateChange,
		onTrackAdded:   opts.OnTrackAdded,
		onTrackRemoved: opts.OnTrackRemoved,
		logger:         logger.With("component", "signaling"),
		metrics:        opts.Metrics,
		tasks:          taskqueue.New[func()](),
		stopped:        make(chan struct{}),
		state:          StateNew,
	}
}

// Run executes the client's event loop until ctx is done. Tasks posted before
// Run starts are kept and executed in order. Run may only be called once.
func (c *Client) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errClientRunning
	}
	defer close(c.stopped)

	c.runCtx = ctx
	stop := context.AfterFunc(ctx, c.tasks.Close)
	defer stop()

	for {
		task, ok := c.tasks.Dequeue()
		if !ok {
			break
		}
		task()
	}

	c.shutdownTransport()
	c.logger.Debug("signaling loop stopped", "dropped_tasks", c.tasks.DropCount())
	return ctx.Err()
}

// Done is closed once Run has returned.
func (c *Client) Done() <-chan struct{} {
	return c.stopped
}

func (c *Client) post(task func()) bool {
	return c.tasks.Enqueue(task)
}

// Connect opens the control channel. It returns ErrAlreadyConnected if the
// channel is open or a connect attempt is in flight, and ErrInvalidURL or
// ErrUnsupportedScheme for configuration errors. The dial itself completes
// asynchronously; failures are logged.
func (c *Client) Connect(ctx context.Context) error {
	result := make(chan error, 1)
	if !c.post(func() { result <- c.connect() }) {
		return ErrClientStopped
	}
	select {
	case err := <-result:
		return err
	case <-c.stopped:
		select {
		case err := <-result:
			return err
		default:
			return ErrClientStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) connect() error {
	if c.transport != nil || c.connecting {
		return ErrAlreadyConnected
	}
	u, err := parseSignalingURL(c.cfg.URL)
	if err != nil {
		return err
	}
	t, err := c.transports(u, c.cfg.Insecure)
	if err != nil {
		return fmt.Errorf("create transport: %w", err)
	}

	c.connecting = true
	c.host = u.Host
	ctx := c.runCtx
	go func() {
		err := t.Dial(ctx)
		if !c.post(func() { c.onDialed(t, err) }) && err == nil {
			_ = t.Close()
		}
	}()
	c.logger.Info("connecting to signaling server", "host", u.Host, "scheme", u.Scheme)
	return nil
}

func (c *Client) onDialed(t Transport, err error) {
	c.connecting = false
	if err != nil {
		c.metrics.Inc(metrics.SignalingConnectError)
		c.logger.Error("signaling connect failed", "host", c.host, "err", err)
		return
	}
	if c.closeAfterDial {
		c.closeAfterDial = false
		c.logger.Info("signaling connection closed before it was established", "host", c.host)
		go func() { _ = t.Close() }()
		return
	}

	c.transport = t
	c.writer = c.startWriter(t)
	c.connectedMirror.Store(true)
	c.metrics.Inc(metrics.SignalingConnected)
	c.logger.Info("signaling connected", "host", c.host)

	// Both are issued before any server message is expected.
	c.readNext()
	c.sendConnect()
}

// Close asynchronously closes the control channel. Pending writes are
// flushed first.
func (c *Client) Close() {
	c.post(func() {
		if c.transport == nil {
			if c.connecting {
				c.closeAfterDial = true
			}
			return
		}
		c.logger.Info("closing signaling connection", "host", c.host)
		c.shutdownTransport()
	})
}

func (c *Client) shutdownTransport() {
	if c.writer != nil {
		c.writer.close()
	}
	c.writer = nil
	c.transport = nil
	c.connectedMirror.Store(false)
}

func (c *Client) onTransportClosed(err error) {
	if err != nil {
		c.logger.Warn("signaling close failed", "err", err)
		return
	}
	c.logger.Debug("signaling transport closed")
}

// Release detaches the negotiated Connection and closes it. It is idempotent
// and safe from any goroutine. Events still in flight from the detached
// Connection are ignored.
func (c *Client) Release() {
	c.released.Store(true)
	ref := c.connection.Swap(nil)
	if ref == nil || ref.conn == nil {
		return
	}
	if err := ref.conn.Close(); err != nil {
		c.logger.Warn("close released connection", "err", err)
	}
}

func (c *Client) isAttached(ref *connectionRef) bool {
	return ref != nil && c.connection.Load() == ref
}

// State returns the last connectivity state reported by the Connection.
func (c *Client) State() ConnectionState {
	return ConnectionState(c.stateMirror.Load())
}

// Connected reports whether the control channel is open.
func (c *Client) Connected() bool {
	return c.connectedMirror.Load()
}

// ConnectedConnection returns the negotiated Connection only while the state
// is exactly StateConnected.
func (c *Client) ConnectedConnection() Connection {
	if c.State() != StateConnected {
		return nil
	}
	ref := c.connection.Load()
	if ref == nil {
		return nil
	}
	return ref.conn
}

func (c *Client) setState(state ConnectionState) {
	old := c.state
	c.state = state
	c.stateMirror.Store(int32(state))
	c.metrics.Inc(metrics.ICEStatePrefix + state.String())
	c.logger.Info("ice connection state changed", "from", old.String(), "to", state.String())
	if c.onStateChange != nil {
		c.onStateChange(old, state)
	}
}

func (c *Client) readNext() {
	t := c.transport
	go func() {
		text, err := t.ReadText()
		c.post(func() { c.onRead(t, text, err) })
	}()
}

func (c *Client) onRead(t Transport, text string, err error) {
	if t != c.transport {
		// Transport was closed or replaced; the outstanding read is stale.
		return
	}
	if err != nil {
		if errors.Is(err, ErrAborted) {
			c.logger.Debug("signaling read loop stopped")
		} else {
			c.metrics.Inc(metrics.SignalingReadError)
			c.logger.Warn("signaling read failed", "err", err)
		}
		c.shutdownTransport()
		return
	}

	c.handleMessage(text)
	c.readNext()
}

func (c *Client) handleMessage(text string) {
	msg, err := decodeMessage(text)
	if err != nil {
		c.metrics.Inc(metrics.SignalingDecodeError)
		c.logger.Warn("dropping malformed signaling message", "err", err, "bytes", len(text))
		return
	}

	switch msg.Type {
	case messageTypeOffer:
		c.metrics.Inc(metrics.SignalingMessagesReceivedPrefix + string(msg.Type))
		c.handleOffer(msg)
	case messageTypeUpdate:
		c.metrics.Inc(metrics.SignalingMessagesReceivedPrefix + string(msg.Type))
		c.handleUpdate(msg)
	case messageTypeNotify:
		c.metrics.Inc(metrics.SignalingMessagesReceivedPrefix + string(msg.Type))
		c.handleNotify(msg)
	case messageTypePing:
		c.metrics.Inc(metrics.SignalingMessagesReceivedPrefix + string(msg.Type))
		c.handlePing(msg)
	default:
		c.metrics.Inc(metrics.SignalingMessagesReceivedPrefix + "unknown")
		c.logger.Debug("ignoring unknown signaling message", "type", string(msg.Type))
	}
}

func (c *Client) handleOffer(msg inboundMessage) {
	if c.released.Load() {
		c.logger.Warn("ignoring offer after connection release")
		return
	}

	for _, err := range msg.SkippedICEServers {
		c.logger.Warn("ignoring unusable ice server from offer", "err", err)
	}

	ref := c.connection.Load()
	if ref == nil {
		if c.connections == nil {
			c.metrics.Inc(metrics.ConnectionCreationError)
			c.logger.Error("no connection factory configured; dropping offer")
			return
		}
		ref = &connectionRef{}
		conn, err := c.connections.NewConnection(msg.ICEServers, &connectionObserver{client: c, ref: ref})
		if err != nil {
			c.metrics.Inc(metrics.ConnectionCreationError)
			c.logger.Error("create connection failed", "err", err)
			return
		}
		ref.conn = conn
		c.connection.Store(ref)
		if c.released.Load() && c.connection.CompareAndSwap(ref, nil) {
			_ = conn.Close()
			return
		}
		c.metrics.Inc(metrics.ConnectionCreated)
		c.logger.Info("connection created", "ice_servers", len(msg.ICEServers))
	}

	c.negotiate(ref.conn, messageTypeAnswer, msg.SDP)
}

func (c *Client) handleUpdate(msg inboundMessage) {
	ref := c.connection.Load()
	if ref == nil {
		c.logger.Warn("dropping update", "err", errNoConnection)
		return
	}
	c.negotiate(ref.conn, messageTypeUpdate, msg.SDP)
}

// negotiate applies a remote description, creates the local answer and sends
// it tagged with reply. Each step runs only after the previous one completed,
// and every completion is handled on the loop.
func (c *Client) negotiate(conn Connection, reply messageType, sdp string) {
	conn.SetRemoteDescription(sdp, func(err error) {
		c.post(func() {
			if err != nil {
				c.metrics.Inc(metrics.NegotiationError)
				c.logger.Warn("set remote description failed", "reply", string(reply), "err", err)
				return
			}
			conn.CreateAnswer(func(answer string, err error) {
				c.post(func() {
					if err != nil {
						c.metrics.Inc(metrics.NegotiationError)
						c.logger.Warn("create answer failed", "reply", string(reply), "err", err)
						return
					}
					text, err := encodeSDP(reply, answer)
					c.send(reply, text, err)
				})
			})
		})
	})
}

func (c *Client) handleNotify(msg inboundMessage) {
	if c.onNotify == nil {
		return
	}
	c.metrics.Inc(metrics.NotifyDelivered)
	c.onNotify(msg.Raw)
}

func (c *Client) deliverTrack(event string, fn func(Track), track Track) {
	c.metrics.Inc(event)
	if fn != nil {
		fn(track)
	}
}

func (c *Client) handlePing(msg inboundMessage) {
	if c.state != StateConnected {
		c.metrics.Inc(metrics.PingDeferred)
		c.logger.Debug("deferring ping until connected", "state", c.state.String())
		return
	}
	if !msg.WantStats {
		c.sendPong(nil)
		return
	}
	ref := c.connection.Load()
	if ref == nil {
		c.sendPong(nil)
		return
	}
	ref.conn.GetStats(func(report []byte, err error) {
		c.post(func() {
			if err != nil {
				c.logger.Warn("get stats failed; sending bare pong", "err", err)
				report = nil
			}
			c.sendPong(report)
		})
	})
}

func (c *Client) sendConnect() {
	text, err := encodeConnect(c.cfg)
	c.send(messageTypeConnect, text, err)
}

// sendPong always answers the ping. A report that cannot be embedded is
// dropped in favour of a bare pong.
func (c *Client) sendPong(stats []byte) {
	text, err := encodePong(stats)
	if err != nil && stats != nil {
		c.metrics.Inc(metrics.PongStatsDropped)
		c.logger.Warn("stats report not embeddable; sending bare pong", "err", err, "bytes", len(stats))
		text, err = encodePong(nil)
	}
	c.send(messageTypePong, text, err)
}

func (c *Client) sendCandidate(candidate string) {
	text, err := encodeCandidate(candidate)
	if c.send(messageTypeCandidate, text, err) {
		c.metrics.Inc(metrics.ICECandidatesSent)
	}
}

func (c *Client) send(typ messageType, text string, encodeErr error) bool {
	if encodeErr != nil {
		c.logger.Error("encode signaling message", "type", string(typ), "err", encodeErr)
		return false
	}
	if c.writer == nil {
		c.logger.Debug("dropping signaling message; not connected", "type", string(typ))
		return false
	}
	return c.writer.write(typ, text)
}

func (c *Client) onWritten(typ messageType, err error) {
	if err != nil {
		c.metrics.Inc(metrics.SignalingWriteError)
		c.logger.Warn("signaling write failed", "type", string(typ), "err", err)
		return
	}
	c.metrics.Inc(metrics.SignalingMessagesSentPrefix + string(typ))
}
