package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/rivet-gg/engine/internal/domain"
	"github.com/rivet-gg/engine/internal/external"
)

// pingRestartBackoff is the fixed delay before C7 restarts after a
// failure (spec §4.7 step 5).
const pingRestartBackoff = 2 * time.Second

// pingAggregator runs C7 (spec §4.7): every PingInterval, snapshot every
// live connection's RTT, skip runners whose workflow has gone quiet,
// push a batched UpdatePing to the allocation index, and fan out
// CheckQueue signals for ReEligible transitions. Grounded almost
// verbatim on internal/scheduler.Scheduler's Start/Stop/tick skeleton.
type pingAggregator struct {
	gateway  *Gateway
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

func newPingAggregator(g *Gateway, interval time.Duration) *pingAggregator {
	return &pingAggregator{gateway: g, interval: interval}
}

// Start begins the background ping-aggregation goroutine.
func (p *pingAggregator) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)
		p.loop(ctx)
	}()
}

// Stop cancels the background goroutine and waits for it to finish.
func (p *pingAggregator) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	if p.done != nil {
		<-p.done
	}
}

func (p *pingAggregator) loop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.tick(ctx); err != nil {
				slog.Error("gateway: ping aggregator tick failed, restarting", "error", err, "backoff", pingRestartBackoff)
				select {
				case <-time.After(pingRestartBackoff):
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// tick implements spec §4.7 steps 1-4.
func (p *pingAggregator) tick(ctx context.Context) error {
	snapshot := p.gateway.registry.Snapshot()
	if len(snapshot) == 0 {
		return nil
	}

	actions := make([]external.AllocAction, 0, len(snapshot))
	byRunner := make(map[domain.RunnerId]domain.WorkflowId, len(snapshot))
	for _, s := range snapshot {
		status, ok, err := p.gateway.workflows.GetStatus(ctx, s.WorkflowId)
		if err != nil {
			slog.Warn("gateway: failed to check workflow status, skipping ping", "runner_id", s.RunnerId.String(), "workflow_id", s.WorkflowId, "error", err)
			continue
		}
		if !ok || !status.HasWakeCondition {
			slog.Debug("gateway: skipping ping for runner with no live workflow wake condition", "runner_id", s.RunnerId.String(), "workflow_id", s.WorkflowId)
			continue
		}
		actions = append(actions, external.AllocAction{
			RunnerId:   s.RunnerId,
			UpdatePing: &external.UpdatePingAction{RTT: s.LastRTT},
		})
		byRunner[s.RunnerId] = s.WorkflowId
	}
	if len(actions) == 0 {
		return nil
	}

	notifications, err := p.gateway.allocIndex.UpdateAllocIdx(ctx, actions)
	if err != nil {
		return err
	}

	for _, n := range notifications {
		if n.Eligibility != domain.EligibilityReEligible {
			continue
		}
		workflowId := n.WorkflowId
		if workflowId == "" {
			workflowId = byRunner[n.RunnerId]
		}
		if err := p.gateway.workflows.SignalCheckQueue(ctx, workflowId); err != nil {
			slog.Error("gateway: failed to signal CheckQueue", "runner_id", n.RunnerId.String(), "workflow_id", workflowId, "error", err)
		}
	}
	return nil
}
