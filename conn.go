// Package seal transports discrete application messages over a TCP byte
// stream as length-prefixed frames, optionally protected by an AEAD that is
// switched on mid-session once a key exchange has completed.
//
// Channel is the synchronous core: frame reassembly, per-direction nonce
// counters, sealing and opening. Conn drives a Channel over a *net.TCPConn
// with a read loop and a write loop, and Server accepts connections.
package seal

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Errors returned by connection operations.
var (
	// ErrInvalidCodec is returned when no codec is provided.
	ErrInvalidCodec = errors.New("invalid codec callback")
	// ErrInvalidOnMessage is returned when no message handler is provided.
	ErrInvalidOnMessage = errors.New("invalid on message callback")
	// ErrInvalidCipher is returned when the configured cipher is unknown.
	ErrInvalidCipher = errors.New("invalid cipher")
)

// ErrConnectionClosed is returned when operating on a closed connection.
var ErrConnectionClosed = errors.New("connection closed")

// Conn wraps a TCP connection with a Channel.
// Inbound bytes are fed to the Channel by a read loop which hands every
// decoded message to the onMessage callback; outbound messages are sealed
// when written and flushed by a write loop.
type Conn struct {
	rawConn *net.TCPConn
	logger  Logger

	opts options

	// mu guards channel. The read loop, writers and InstallKeys share it.
	mu      sync.Mutex
	channel *Channel

	// slots counts queued frames; a writer takes one before sealing and the
	// write loop frees it. sendMu keeps nonce order equal to queue order.
	slots   chan struct{}
	sendMu  sync.Mutex
	sendMsg chan []byte

	closed atomic.Bool
	cancel context.CancelFunc
}

// Default configuration values.
const (
	// defaultBufferSize is the default size of the frame channel buffer.
	defaultBufferSize = 1
	// defaultHeartbeat is the default heartbeat interval.
	defaultHeartbeat = time.Second * 30
	// readChunkSize is how much the read loop asks the socket for at once.
	readChunkSize = 4096
)

// NewConn creates a new connection wrapper around the given TCP connection.
// It applies the provided options and validates them before returning.
// Returns an error if required options (codec, onMessage) are missing.
// The connection starts in plaintext mode.
func NewConn(conn *net.TCPConn, opt ...Option) (*Conn, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}

	err := checkOptions(&opts)
	if err != nil {
		return nil, err
	}

	return newClientConnWithOptions(conn, opts), nil
}

// checkOptions validates and sets default values for connection options.
func checkOptions(opts *options) error {
	if opts.bufferSize <= 0 {
		opts.bufferSize = defaultBufferSize
	}

	if opts.maxFrameLength <= 0 {
		opts.maxFrameLength = DefaultMaxFrameLength
	}

	if opts.onMessage == nil {
		return ErrInvalidOnMessage
	}

	if opts.heartbeat <= 0 {
		opts.heartbeat = defaultHeartbeat
	}

	if opts.codec == nil {
		return ErrInvalidCodec
	}

	if !opts.cipher.Valid() {
		return errors.Wrapf(ErrInvalidCipher, "%s", opts.cipher)
	}

	if opts.onError == nil {
		opts.onError = func(err error) ErrorAction { return Disconnect }
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	return nil
}

// newClientConnWithOptions creates a new Conn with the given options.
func newClientConnWithOptions(c *net.TCPConn, opts options) *Conn {
	cc := &Conn{
		rawConn: c,
		logger:  opts.logger,
		opts:    opts,
		channel: NewChannel(opts.codec, ChannelConfig{
			Cipher:         opts.cipher,
			MaxFrameLength: opts.maxFrameLength,
		}),
		slots:   make(chan struct{}, opts.bufferSize),
		sendMsg: make(chan []byte, opts.bufferSize),
	}

	return cc
}

// Run starts the connection's read and write loops.
// It runs the read and write loops concurrently and blocks until
// an error occurs or the context is canceled.
// The connection is automatically closed when Run returns.
func (c *Conn) Run(ctx context.Context) error {
	c.logger.Info("connection established", "addr", c.Addr())
	c.logger.Debug("connection options", "addr", c.Addr(),
		"buffer_size", c.opts.bufferSize,
		"max_frame_length", c.opts.maxFrameLength,
		"cipher", c.opts.cipher,
		"heartbeat", c.opts.heartbeat)

	ctx, c.cancel = context.WithCancel(ctx)
	group, child := errgroup.WithContext(ctx)

	group.Go(func() error {
		return c.readLoop(child)
	})

	group.Go(func() error {
		return c.writeLoop(child)
	})

	// Unblock a pending Read once either loop stops or ctx is canceled.
	group.Go(func() error {
		<-child.Done()
		_ = c.rawConn.SetReadDeadline(time.Now())
		return nil
	})

	err := group.Wait()
	c.closeConn()

	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Info("connection closed with error", "addr", c.Addr(), "error", err)
	} else {
		c.logger.Info("connection closed", "addr", c.Addr())
	}

	return err
}

// Close gracefully closes the connection.
// It cancels the context and closes the underlying TCP connection.
// Safe to call multiple times.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil // already closed
	}
	if c.cancel != nil {
		c.cancel()
	}
	return c.rawConn.Close()
}

// IsClosed returns true if the connection has been closed.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// InstallKeys switches the connection to encrypted mode: every frame sealed
// or opened afterwards uses rx for inbound and tx for outbound traffic.
//
// Calling it from the onMessage callback switches the inbound direction
// exactly at the frame following the one being handled. Frames written
// before the call stay plaintext even if they are still queued.
func (c *Conn) InstallKeys(rx, tx []byte) error {
	c.mu.Lock()
	err := c.channel.InstallKeys(rx, tx)
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("key installation failed", "addr", c.Addr(), "error", err)
		return err
	}

	c.logger.Info("encryption enabled", "addr", c.Addr(), "cipher", c.opts.cipher)
	return nil
}

// Encrypted reports whether keys have been installed.
func (c *Conn) Encrypted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel.Encrypted()
}

// seal encodes and frames a message under the channel lock.
func (c *Conn) seal(message Message) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.channel.Seal(message)
}

// enqueue seals message and queues its frame. The caller holds a send slot,
// so the queue has room and sendMu is held only for the seal and the send.
func (c *Conn) enqueue(message Message) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	frame, err := c.seal(message)
	if err != nil {
		<-c.slots
		return err
	}

	c.sendMsg <- frame
	return nil
}

// ErrBufferFull is returned when the send buffer is full and cannot accept more messages.
// This error indicates backpressure - the receiver is not consuming messages fast enough.
// A message rejected with ErrBufferFull has not been sealed and consumed no nonce.
var ErrBufferFull = errors.New("send buffer full")

// Write sends a message through the connection without blocking (fire-and-forget).
// The message is sealed immediately and its frame queued for sending.
//
// Returns:
//   - nil: message was successfully queued (not yet sent)
//   - ErrBufferFull: send buffer is full, message was NOT queued
//   - ErrConnectionClosed: connection is closed
//   - ErrMessageTooLarge: message does not fit in one frame
//   - encoding error: if codec.Encode fails
func (c *Conn) Write(message Message) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	select {
	case c.slots <- struct{}{}:
	default:
		return ErrBufferFull
	}

	return c.enqueue(message)
}

// WriteBlocking sends a message through the connection, blocking until the message
// is queued or the context is canceled.
//
// Returns:
//   - nil: message was successfully queued
//   - context.Canceled or context.DeadlineExceeded: context was canceled
//   - ErrConnectionClosed: connection is closed
//   - ErrMessageTooLarge: message does not fit in one frame
//   - encoding error: if codec.Encode fails
//
// The wait happens before sealing, so a canceled WriteBlocking consumed no nonce.
func (c *Conn) WriteBlocking(ctx context.Context, message Message) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case c.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	return c.enqueue(message)
}

// WriteTimeout sends a message through the connection with a timeout.
// This provides a middle ground between Write (non-blocking) and WriteBlocking.
//
// Returns:
//   - nil: message was successfully queued
//   - ErrBufferFull: timeout expired before message could be queued
//   - ErrConnectionClosed: connection is closed
//   - ErrMessageTooLarge: message does not fit in one frame
//   - encoding error: if codec.Encode fails
func (c *Conn) WriteTimeout(message Message, timeout time.Duration) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case c.slots <- struct{}{}:
	case <-timer.C:
		return ErrBufferFull
	}

	return c.enqueue(message)
}

// Addr returns the remote address of the connection.
func (c *Conn) Addr() net.Addr {
	return c.rawConn.RemoteAddr()
}

// readLoop continuously reads from the connection, feeds the channel and
// drains every complete frame before reading again.
// Returns when the context is canceled or an unrecoverable error occurs.
// Protocol errors always end the loop; socket errors consult onError.
func (c *Conn) readLoop(ctx context.Context) error {
	buf := make([]byte, readChunkSize)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			_ = c.rawConn.SetReadDeadline(time.Now().Add(c.opts.heartbeat * 2))
			if err := ctx.Err(); err != nil {
				return err
			}

			n, err := c.rawConn.Read(buf)
			if n > 0 {
				c.mu.Lock()
				c.channel.Feed(buf[:n])
				c.mu.Unlock()

				if err := c.drain(); err != nil {
					return err
				}
			}

			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				c.logger.Debug("read error", "addr", c.Addr(), "error", err)
				// A closed stream cannot deliver the rest of a frame.
				if errors.Is(err, io.EOF) {
					return err
				}
				if c.opts.onError(err) == Disconnect {
					return err
				}
			}
		}
	}
}

// drain hands every complete buffered frame to onMessage. The channel lock
// is released around the callback so it may write or install keys.
func (c *Conn) drain() error {
	for {
		c.mu.Lock()
		msg, ok, err := c.channel.Receive()
		c.mu.Unlock()

		if err != nil {
			c.logger.Warn("protocol error", "addr", c.Addr(), "error", err)
			return err
		}
		if !ok {
			return nil
		}

		if err = c.opts.onMessage(msg); err != nil {
			return err
		}
	}
}

// writeLoop continuously sends frames from the send channel to the connection.
// Returns when the context is canceled or an unrecoverable error occurs.
func (c *Conn) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data := <-c.sendMsg:
			<-c.slots
			if err := c.write(data); err != nil {
				return err
			}
		}
	}
}

// write sends data to the connection with a deadline.
// If an error occurs and onError returns Disconnect, the error is propagated.
// Otherwise, the error is suppressed and writing continues.
func (c *Conn) write(data []byte) error {
	_ = c.rawConn.SetWriteDeadline(time.Now().Add(c.opts.heartbeat * 2))

	_, err := c.rawConn.Write(data)

	if err != nil {
		c.logger.Debug("write error", "addr", c.Addr(), "error", err)
		if c.opts.onError(err) == Disconnect {
			return err
		}
	}

	return nil
}

// closeConn marks the connection as closed and closes the underlying TCP connection.
func (c *Conn) closeConn() {
	c.closed.Store(true)
	c.rawConn.Close()
}
