package device

import (
	"context"
	"strings"
	"sync"

	"github.com/openfab/fabdrive/gcode"
	"github.com/openfab/fabdrive/internal/queue"
	"github.com/openfab/fabdrive/logger"
)

// TransformFunc rewrites a logical command before rendering, e.g. to apply the
// device's spatial offsets. It must be pure.
type TransformFunc func(cmd gcode.Command) gcode.Command

// queueEntry is a queued command plus its bookkeeping metadata.
type queueEntry struct {
	cmd     gcode.Command
	seq     uint64 // enqueue order
	retries int    // resend attempts so far
}

// CommandQueue sequences commands through one Executor, one at a time.
//
// Commands dispatch in FIFO order with a single exception: a command requeued by
// the retry path is reinserted at the head, ahead of not-yet-sent commands, and
// dispatches next. No two Send calls are ever concurrently outstanding for the
// same Executor.
type CommandQueue struct {
	mu        sync.Mutex
	pending   *queue.Deque[*queueEntry]
	inFlight  *queueEntry
	exec      Executor
	validator Validator
	transform TransformFunc
	logger    logger.Logger
	metrics   *Metrics

	ctx    context.Context
	cancel context.CancelFunc
	closed bool
	seq    uint64
}

// NewCommandQueue creates a CommandQueue bound to an Executor.
//
// The queue registers itself as the executor's data handler so that
// callback-delivered device output is treated as the reply to the in-flight
// command. SetValidator must be called before the first Enqueue.
func NewCommandQueue(ctx context.Context, exec Executor, transform TransformFunc, l logger.Logger, m *Metrics) *CommandQueue {
	if l == nil {
		l = logger.GetLogger()
	}

	q := &CommandQueue{
		pending:   queue.NewDeque[*queueEntry](16),
		exec:      exec,
		transform: transform,
		logger:    l,
		metrics:   m,
	}
	q.ctx, q.cancel = context.WithCancel(ctx)

	exec.SetDataHandler(q.handleData)

	return q
}

// SetValidator sets the reply validator. Must be called before the first
// Enqueue; the validator's Requeuer is normally this queue.
func (q *CommandQueue) SetValidator(v Validator) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.validator = v
}

// Enqueue appends a command to the tail. If the queue is idle, the command
// dispatches immediately.
func (q *CommandQueue) Enqueue(cmd gcode.Command) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	q.seq++
	q.pending.PushBack(&queueEntry{cmd: cmd, seq: q.seq})
	q.dispatchLocked()

	return nil
}

// Requeue inserts a command at the head of the queue, ahead of all pending
// commands. This is the retry path: the validator reinserts the resend copy of
// the in-flight command here. If the queue is idle, the command dispatches
// immediately.
func (q *CommandQueue) Requeue(cmd gcode.Command) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.seq++
	q.pending.PushFront(&queueEntry{cmd: cmd, seq: q.seq, retries: cmd.Attempt})
	q.dispatchLocked()
}

// Pending returns the number of commands waiting to dispatch.
func (q *CommandQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.pending.Len()
}

// Busy returns true while a command is in flight.
func (q *CommandQueue) Busy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.inFlight != nil
}

// Close tears the queue down. Pending commands are discarded and the in-flight
// command, if any, is abandoned without reply reconciliation. Close does not
// close the Executor; that is the owner's job.
func (q *CommandQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.inFlight = nil
	q.pending.Reset()
	q.mu.Unlock()

	q.cancel()
}

// dispatchLocked takes the head entry and hands it to the executor.
// Caller must hold q.mu.
func (q *CommandQueue) dispatchLocked() {
	if q.inFlight != nil || q.closed {
		return
	}

	entry, ok := q.pending.PopFront()
	if !ok {
		return
	}

	if !entry.cmd.IsRendered() {
		if q.transform != nil {
			entry.cmd = q.transform(entry.cmd)
		}
		entry.cmd = entry.cmd.Rendered()
	}

	q.inFlight = entry
	q.metrics.incCommandsDispatched()

	go q.sendEntry(entry)
}

// sendEntry performs the executor send for one entry and routes the outcome.
// Runs on its own goroutine; the await-reply step is the pipeline's only
// suspension point.
func (q *CommandQueue) sendEntry(entry *queueEntry) {
	reply, err := q.exec.Send(q.ctx, entry.cmd.Raw)
	if err != nil {
		if q.ctx.Err() != nil {
			return // queue torn down while sending
		}

		// Transport failures outside the telnet retry loop surface as an
		// unacknowledged command: log and advance.
		q.logger.Error("command send failed", "cmd", entry.cmd.String(), "error", err)
		q.advance(entry)

		return
	}

	if reply == "" {
		// Serial variant: the reply arrives through the data handler.
		return
	}

	q.classify(entry, reply)
}

// handleData receives callback-delivered device output. With a command in
// flight it is classified as that command's reply; otherwise it is out-of-band
// status data and only logged.
func (q *CommandQueue) handleData(line string) {
	q.mu.Lock()
	entry := q.inFlight
	q.mu.Unlock()

	if entry == nil {
		q.logger.Debug("out-of-band device data", "data", strings.TrimSpace(line))

		return
	}

	q.classify(entry, line)
}

// classify runs the validator on a reply and applies the verdict.
//
// The validator is invoked without holding q.mu: its retry path calls back into
// Requeue, which takes the lock. With a command in flight no dispatch can race
// the reinsertion.
func (q *CommandQueue) classify(entry *queueEntry, reply string) {
	verdict := q.validator.Classify(entry.cmd, reply)

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || q.inFlight != entry {
		return // stale reply after teardown or reset
	}

	switch verdict {
	case VerdictOk:
		q.metrics.incRepliesAccepted()
		q.inFlight = nil
		q.dispatchLocked()

	case VerdictRetry:
		// The resend copy already sits at the head; re-dispatch picks it up.
		q.inFlight = nil
		q.dispatchLocked()

	case VerdictUnrecognized:
		q.metrics.incRepliesUnrecognized()
		if q.validator.HoldsUnrecognized() {
			// Keep waiting for further data for the same command.
			q.logger.Debug("unrecognized reply, waiting",
				"cmd", entry.cmd.String(), "reply", strings.TrimSpace(reply))

			return
		}

		q.logger.Error("unrecognized reply, advancing",
			"cmd", entry.cmd.String(), "reply", strings.TrimSpace(reply))
		q.inFlight = nil
		q.dispatchLocked()
	}
}

// advance drops the given in-flight entry and dispatches the next command.
func (q *CommandQueue) advance(entry *queueEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || q.inFlight != entry {
		return
	}

	q.inFlight = nil
	q.dispatchLocked()
}
