package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rivet-gg/engine/internal/external"
	"github.com/rivet-gg/engine/internal/gatewayerr"
)

// faninRestartBackoff is the fixed delay before C6 restarts after a failure
// (spec §4.6).
const faninRestartBackoff = 2 * time.Second

// fanin runs C6 as a single task consuming both the ToWs and CloseWs
// subscriptions concurrently (spec §4.6, §9 "subscription fan-in").
// Grounded on internal/scheduler.Scheduler's Start/Stop/tick skeleton,
// adapted from a ticker loop to two subscription-read loops racing under
// one cancellable context.
type fanin struct {
	gateway *Gateway
	cancel  context.CancelFunc
	done    chan struct{}
}

func newFanin(g *Gateway) *fanin {
	return &fanin{gateway: g}
}

// Start launches the fan-in task.
func (f *fanin) Start(ctx context.Context) {
	ctx, f.cancel = context.WithCancel(ctx)
	f.done = make(chan struct{})

	go func() {
		defer close(f.done)
		f.runUntilCancelled(ctx)
	}()
}

// Stop cancels the fan-in task and waits for it to finish.
func (f *fanin) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
	if f.done != nil {
		<-f.done
	}
}

// runUntilCancelled restarts the two consumer loops after any failure,
// with a fixed backoff, without dropping established connections (spec
// §4.6, §5).
func (f *fanin) runUntilCancelled(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := f.runOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("gateway: fan-in task failed, restarting", "error", err, "backoff", faninRestartBackoff)
			select {
			case <-time.After(faninRestartBackoff):
			case <-ctx.Done():
				return
			}
		}
	}
}

// runOnce races the two subscriptions until one of them errors or ctx is
// done.
func (f *fanin) runOnce(ctx context.Context) error {
	errCh := make(chan error, 2)
	go func() { errCh <- f.consumeToWs(ctx) }()
	go func() { errCh <- f.consumeCloseWs(ctx) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fanin) consumeToWs(ctx context.Context) error {
	sub := f.gateway.commandBus.ToWsSubscriber()
	for {
		cmd, err := sub.Next(ctx)
		if err != nil {
			return err
		}
		f.handleToWs(cmd)
	}
}

func (f *fanin) consumeCloseWs(ctx context.Context) error {
	sub := f.gateway.commandBus.CloseWsSubscriber()
	for {
		cmd, err := sub.Next(ctx)
		if err != nil {
			return err
		}
		f.handleCloseWs(cmd)
	}
}

// handleToWs implements spec §4.6's ToWs branch: look up the runner,
// re-encode the command at the connection's version, and send it; absent
// runners drop the command with a debug log — no buffering.
func (f *fanin) handleToWs(cmd external.ToWsCommand) {
	conn, ok := f.gateway.registry.Lookup(cmd.RunnerId)
	if !ok {
		slog.Debug("gateway: dropping command for unknown runner", "runner_id", cmd.RunnerId.String())
		return
	}
	data, err := f.gateway.codec.EncodeToClient(conn.ProtocolVersion, &cmd.Inner)
	if err != nil {
		slog.Error("gateway: failed to encode command for runner", "runner_id", cmd.RunnerId.String(), "error", err)
		return
	}
	if err := conn.WriteBinary(data); err != nil {
		slog.Debug("gateway: failed to deliver command (connection likely gone)", "runner_id", cmd.RunnerId.String(), "error", err)
	}
}

// handleCloseWs implements spec §4.6's CloseWs branch: evict by sending a
// ws.eviction close frame; the read loop observes end-of-stream and runs
// its own cleanup (spec §4.4).
func (f *fanin) handleCloseWs(cmd external.CloseWsCommand) {
	conn, ok := f.gateway.registry.Lookup(cmd.RunnerId)
	if !ok {
		slog.Debug("gateway: eviction requested for unknown runner", "runner_id", cmd.RunnerId.String())
		return
	}
	gwErr := gatewayerr.New(gatewayerr.CodeEviction, "")
	code, reason := gwErr.CloseFrame()
	if err := conn.Close(code, reason); err != nil {
		slog.Debug("gateway: eviction close frame failed (connection likely already gone)", "runner_id", cmd.RunnerId.String(), "error", err)
	}
}
