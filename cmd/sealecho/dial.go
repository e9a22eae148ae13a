package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Zereker/seal"
	"github.com/Zereker/seal/kex"
)

func newDialCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "dial",
		Short: "Connect, complete the handshake and echo stdin lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return dial(ctx, cfg, logger, os.Stdin, os.Stdout)
		},
	}
}

// maxLineLength bounds one stdin line. Lines that fit here but not in a
// frame are skipped.
const maxLineLength = 1 << 20

// dial runs a client session: send hello, wait for the server's hello,
// then send every input line and print every echo.
func dial(ctx context.Context, cfg *Config, logger seal.Logger, in io.Reader, out io.Writer) error {
	hs, err := newHandshake(kex.Client)
	if err != nil {
		return err
	}

	opts, err := cfg.connOptions(logger)
	if err != nil {
		return err
	}

	ready := make(chan struct{})
	echoed := make(chan struct{}, 1)
	var received atomic.Int64
	var finished atomic.Bool

	var conn *seal.Conn
	onMessage := func(m seal.Message) error {
		msg := m.(*envelope)
		if !hs.done {
			if err := hs.complete(conn, msg); err != nil {
				return err
			}
			close(ready)
			return nil
		}
		if msg.Kind != kindEcho {
			return errors.Wrapf(errUnexpected, "%s after handshake", msg.Kind)
		}
		if _, err := fmt.Fprintln(out, msg.Text); err != nil {
			return err
		}
		received.Add(1)
		select {
		case echoed <- struct{}{}:
		default:
		}
		return nil
	}

	conn, err = seal.Dial(ctx, cfg.Addr, append([]seal.Option{
		seal.CustomCodecOption(newCodec()),
		seal.OnMessageOption(onMessage),
	}, opts...)...)
	if err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := conn.Run(ctx); err != nil && !finished.Load() {
			return err
		}
		return nil
	})
	group.Go(func() error {
		defer conn.Close()

		if err := conn.WriteBlocking(ctx, hs.hello()); err != nil {
			return err
		}

		select {
		case <-ready:
		case <-ctx.Done():
			return ctx.Err()
		}

		var sent int64
		scanner := bufio.NewScanner(in)
		scanner.Buffer(nil, maxLineLength)
		for scanner.Scan() {
			err := conn.WriteBlocking(ctx, &envelope{Kind: kindEcho, Text: scanner.Text()})
			if errors.Is(err, seal.ErrMessageTooLarge) {
				logger.Warn("line skipped", "bytes", len(scanner.Bytes()), "error", err)
				continue
			}
			if err != nil {
				return err
			}
			sent++
		}
		if err := scanner.Err(); err != nil {
			return err
		}

		// Wait for the outstanding echoes before hanging up.
		for received.Load() < sent {
			select {
			case <-echoed:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		finished.Store(true)
		return nil
	})

	err = group.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, seal.ErrConnectionClosed) {
		return nil
	}
	return err
}
