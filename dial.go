package seal

import (
	"context"
	"net"

	"github.com/pkg/errors"
)

// Dial connects to a TCP address and wraps the connection with NewConn.
// The returned Conn is in plaintext mode and not yet running.
func Dial(ctx context.Context, addr string, opt ...Option) (*Conn, error) {
	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}

	tcp, ok := raw.(*net.TCPConn)
	if !ok {
		raw.Close()
		return nil, errors.Errorf("dial %s: not a TCP connection", addr)
	}
	_ = tcp.SetNoDelay(true)

	conn, err := NewConn(tcp, opt...)
	if err != nil {
		tcp.Close()
		return nil, err
	}
	return conn, nil
}
