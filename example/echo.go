package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/Zereker/seal"
)

// handler echoes every frame back to its sender in plaintext.
// See cmd/sealecho for the encrypted version with a key exchange.
type handler struct {
	logger seal.Logger
}

func (h *handler) Handle(raw *net.TCPConn) {
	var conn *seal.Conn

	codecOption := seal.CustomCodecOption(seal.RawCodec{})
	errorOption := seal.OnErrorOption(func(err error) seal.ErrorAction {
		h.logger.Error("connection error", "error", err)
		return seal.Disconnect
	})

	// Echo
	onMessageOption := seal.OnMessageOption(func(m seal.Message) error {
		return conn.Write(m)
	})

	conn, err := seal.NewConn(raw, codecOption, errorOption, onMessageOption,
		seal.LoggerOption(h.logger))
	if err != nil {
		raw.Close()
		h.logger.Error("failed to wrap connection", "error", err)
		return
	}

	_ = conn.Run(context.Background())
}

func main() {
	addr, err := net.ResolveTCPAddr("tcp", "127.0.0.1:12345")
	if err != nil {
		panic(err)
	}

	logger := seal.NewTextLogger(os.Stderr, slog.LevelDebug)
	server, err := seal.New(addr, seal.ServerLoggerOption(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		return
	}

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("server start", "addr", addr.String())
	if err := server.Serve(ctx, &handler{logger: logger}); err != nil {
		logger.Error("server error", "error", err)
	}
}
