package main

import (
	"context"
	"net"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Zereker/seal"
	"github.com/Zereker/seal/kex"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Accept connections and echo every message back encrypted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *Config, logger seal.Logger) error {
	addr, err := net.ResolveTCPAddr("tcp", cfg.Addr)
	if err != nil {
		return errors.Wrapf(err, "resolve %s", cfg.Addr)
	}

	server, err := seal.New(addr,
		seal.ServerLoggerOption(logger),
		seal.ServerShutdownTimeoutOption(cfg.ShutdownTimeout))
	if err != nil {
		return err
	}
	defer server.Close()

	opts, err := cfg.connOptions(logger)
	if err != nil {
		return err
	}

	err = server.Serve(ctx, seal.HandlerFunc(func(raw *net.TCPConn) {
		if err := handleEcho(ctx, raw, opts, logger); err != nil {
			logger.Debug("session ended", "remote_addr", raw.RemoteAddr(), "error", err)
		}
	}))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// handleEcho runs one server-side session: answer the hello, install keys,
// then echo.
func handleEcho(ctx context.Context, raw *net.TCPConn, opts []seal.Option, logger seal.Logger) error {
	hs, err := newHandshake(kex.Server)
	if err != nil {
		raw.Close()
		return err
	}

	var conn *seal.Conn
	onMessage := func(m seal.Message) error {
		msg := m.(*envelope)
		if !hs.done {
			if msg.Kind != kindHello {
				return errors.Wrapf(errUnexpected, "%s during handshake", msg.Kind)
			}
			// The reply is sealed before the keys exist, so it goes out in
			// plaintext; everything after it is encrypted.
			if err := conn.WriteBlocking(ctx, hs.hello()); err != nil {
				return err
			}
			return hs.complete(conn, msg)
		}
		if msg.Kind != kindEcho {
			return errors.Wrapf(errUnexpected, "%s after handshake", msg.Kind)
		}
		logger.Debug("echo", "remote_addr", conn.Addr(), "bytes", len(msg.Text))
		return conn.WriteBlocking(ctx, msg)
	}

	connOpts := append([]seal.Option{
		seal.CustomCodecOption(newCodec()),
		seal.OnMessageOption(onMessage),
	}, opts...)
	conn, err = seal.NewConn(raw, connOpts...)
	if err != nil {
		raw.Close()
		return err
	}

	return conn.Run(ctx)
}
