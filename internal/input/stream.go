package input

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
)

// Stream decodes r in the background. Malformed lines are logged and
// skipped. The channel closes at end of input or when ctx ends.
func Stream(ctx context.Context, r io.Reader, logger *slog.Logger) <-chan Event {
	out := make(chan Event, 64)
	go func() {
		defer close(out)
		pump(ctx, r, out, logger)
	}()
	return out
}

func pump(ctx context.Context, r io.Reader, out chan<- Event, logger *slog.Logger) {
	d := NewDecoder(r)
	for {
		ev, err := d.Next()
		var lineErr *LineError
		switch {
		case errors.As(err, &lineErr):
			logger.Warn("Skipping input line", "line", lineErr.Line, "error", lineErr.Err)
			continue
		case errors.Is(err, io.EOF):
			return
		case err != nil:
			if ctx.Err() == nil {
				logger.Warn("Input read failed", "error", err)
			}
			return
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// Listener accepts TCP clients and merges their event lines into one
// channel.
type Listener struct {
	ln     net.Listener
	logger *slog.Logger
	events chan Event
	wg     sync.WaitGroup
}

// Listen starts accepting input clients on addr. The event channel closes
// after ctx ends and every client has disconnected.
func Listen(ctx context.Context, addr string, logger *slog.Logger) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	l := &Listener{ln: ln, logger: logger, events: make(chan Event, 64)}
	logger.Info("Input listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	go l.serve(ctx)
	return l, nil
}

// Addr returns the listening address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Events returns the merged event channel.
func (l *Listener) Events() <-chan Event { return l.events }

func (l *Listener) serve(ctx context.Context) {
	defer func() {
		l.wg.Wait()
		close(l.events)
	}()
	for {
		c, err := l.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				l.logger.Info("Input listener stopped")
			} else {
				l.logger.Warn("Input accept error", "error", err)
			}
			return
		}
		l.wg.Add(1)
		go l.handleConn(ctx, c)
	}
}

func (l *Listener) handleConn(ctx context.Context, conn net.Conn) {
	defer l.wg.Done()
	defer conn.Close()

	connLogger := l.logger.With("remote", conn.RemoteAddr().String())
	connLogger.Info("Input client connected")
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	pump(ctx, conn, l.events, connLogger)
	connLogger.Info("Input client disconnected")
}
