package transport

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/openfab/fabdrive/device"
	"github.com/openfab/fabdrive/internal/pool"
	"github.com/openfab/fabdrive/logger"
)

// Client is the request/response contract of the telnet executor: one rendered
// line out, one raw reply in.
type Client interface {
	Do(ctx context.Context, line string) (string, error)
	Close() error
}

// TelnetExecutor drives a device over a request/response line client.
//
// A transport failure retries the identical line on a fixed backoff. Retries
// are bounded and stop immediately when the executor closes or the send
// context ends, so no retry can fire after teardown.
type TelnetExecutor struct {
	handlerSet

	client  Client
	backoff time.Duration
	limit   int
	logger  logger.Logger

	closeOnce sync.Once
	done      chan struct{}
}

var _ device.Executor = (*TelnetExecutor)(nil)

func newTelnet(ctx context.Context, spec device.ExecutorSpec, cfg *Config) (*TelnetExecutor, error) {
	client, err := cfg.dialClient(spec)
	if err != nil {
		return nil, fmt.Errorf("transport: dial telnet client for %s: %w", spec.Port, err)
	}

	e := &TelnetExecutor{
		client:  client,
		backoff: cfg.backoff,
		limit:   cfg.retryLimit,
		logger:  cfg.logger.With("device", spec.DeviceID, "transport", "telnet"),
		done:    make(chan struct{}),
	}

	if spec.Prime != "" {
		if _, err := client.Do(ctx, spec.Prime); err != nil {
			_ = client.Close()

			return nil, fmt.Errorf("transport: prime telnet endpoint %s: %w", spec.Port, err)
		}
	}

	return e, nil
}

// Send transmits the line and returns the raw reply, retrying transport
// failures up to the configured limit with a fixed backoff between attempts.
func (e *TelnetExecutor) Send(ctx context.Context, line string) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= e.limit; attempt++ {
		select {
		case <-e.done:
			return "", ErrClosed
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		reply, err := e.client.Do(ctx, line)
		if err == nil {
			return reply, nil
		}

		lastErr = err
		e.logger.Warn("telnet send failed", "attempt", attempt+1, "error", err)
		e.notifyError(err)

		if attempt == e.limit {
			break
		}

		if err := e.wait(ctx); err != nil {
			return "", err
		}
	}

	return "", fmt.Errorf("transport: telnet send failed after %d attempts: %w", e.limit+1, lastErr)
}

// wait blocks for one backoff period, aborting when the executor closes or the
// context ends.
func (e *TelnetExecutor) wait(ctx context.Context) error {
	timer := pool.GetTimer(e.backoff)
	defer pool.PutTimer(timer)

	select {
	case <-timer.C:
		return nil
	case <-e.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the underlying client and aborts any backoff in progress.
// Idempotent.
func (e *TelnetExecutor) Close() error {
	var err error
	e.closeOnce.Do(func() {
		close(e.done)
		err = e.client.Close()
	})

	return err
}

// tcpClient is the default Client: a lazily-dialing TCP connection speaking
// one line out, one line back. A failed exchange drops the connection so the
// next Do redials.
type tcpClient struct {
	addr string

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

var _ Client = (*tcpClient)(nil)

func newTCPClient(addr string) *tcpClient {
	return &tcpClient{addr: addr}
}

func (c *tcpClient) Do(ctx context.Context, line string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", c.addr)
		if err != nil {
			return "", err
		}

		c.conn = conn
		c.reader = bufio.NewReader(conn)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(deadline)
	}

	if _, err := c.conn.Write([]byte(line)); err != nil {
		c.dropLocked()

		return "", err
	}

	reply, err := c.reader.ReadString('\n')
	if err != nil {
		c.dropLocked()

		return "", err
	}

	return reply, nil
}

func (c *tcpClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	err := c.conn.Close()
	c.conn, c.reader = nil, nil

	return err
}

// dropLocked discards the broken connection. Caller must hold c.mu.
func (c *tcpClient) dropLocked() {
	_ = c.conn.Close()
	c.conn, c.reader = nil, nil
}
