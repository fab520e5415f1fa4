package pairing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/autopair-core/internal/bluetooth"
	"github.com/nerrad567/autopair-core/internal/device"
	"github.com/nerrad567/autopair-core/internal/display"
)

// Registry is the view of the device registry the orchestrator needs.
type Registry interface {
	StatusSetter
	Device(id string) (device.Device, error)
	SavedDevices() []device.Device
	Refresh(ctx context.Context) error
}

// Recorder receives every operation result. Implementations must not block.
type Recorder interface {
	RecordResult(res Result)
}

// Workflow names a per-device sequence of operations.
type Workflow string

const (
	// WorkflowPairConnect pairs, waits for the link to settle, then connects.
	WorkflowPairConnect Workflow = "pair_connect"
	WorkflowPair        Workflow = "pair"
	WorkflowConnect     Workflow = "connect"
	WorkflowUnpair      Workflow = "unpair"
)

// Policy holds the attempt bounds and delays for workflows.
type Policy struct {
	// DisplayPairAttempts bounds pairing when an external display appears.
	DisplayPairAttempts int

	// PairAttempts bounds manually requested pairing, including pair-all.
	PairAttempts int

	ConnectAttempts int
	RetryDelay      time.Duration

	// SettleDelay is the pause between a successful pair and the connect.
	SettleDelay time.Duration

	// MaxParallel caps concurrent workflows in one batch. 0 means no cap.
	MaxParallel int
}

// DefaultPolicy returns the stock attempt bounds and delays.
func DefaultPolicy() Policy {
	return Policy{
		DisplayPairAttempts: 30,
		PairAttempts:        1,
		ConnectAttempts:     5,
		RetryDelay:          time.Second,
		SettleDelay:         time.Second,
	}
}

// Outcome summarises one workflow for one device.
type Outcome struct {
	RunID    string   `json:"run_id"`
	DeviceID string   `json:"device_id"`
	Workflow Workflow `json:"workflow"`
	Success  bool     `json:"success"`

	// Superseded is set when a newer request for the device arrived before
	// this one started, so it was dropped without running.
	Superseded bool     `json:"superseded,omitempty"`
	Steps      []Result `json:"steps"`
}

// Orchestrator turns display changes and manual requests into device
// workflows.
type Orchestrator struct {
	registry Registry
	exec     *Executor
	policy   Policy
	recorder Recorder
	logger   Logger

	queuesMu sync.Mutex
	queues   map[string]*deviceQueue
}

// deviceQueue orders the requests for one device.
type deviceQueue struct {
	mu     sync.Mutex // held while a workflow runs
	seq    uint64
	latest *flight
}

// flight is one requested workflow for one device.
type flight struct {
	seq  uint64
	wf   Workflow
	fn   func(ctx context.Context, out *Outcome)
	done chan struct{}
	out  Outcome
}

// ticket is a caller's handle on a flight. Only the owner executes it.
type ticket struct {
	id    string
	q     *deviceQueue
	f     *flight
	owner bool
}

// NewOrchestrator creates an orchestrator running workflows through exec.
func NewOrchestrator(registry Registry, exec *Executor, policy Policy) *Orchestrator {
	return &Orchestrator{
		registry: registry,
		exec:     exec,
		policy:   policy,
		logger:   noopLogger{},
		queues:   make(map[string]*deviceQueue),
	}
}

// SetLogger sets the logger for the orchestrator.
func (o *Orchestrator) SetLogger(logger Logger) {
	o.logger = logger
}

// SetRecorder sets where operation results are reported.
func (o *Orchestrator) SetRecorder(r Recorder) {
	o.recorder = r
}

// Run handles display events until ctx is done or events is closed.
//
// Events are queued per device in the order they arrive and then run in
// the background; Run waits for them before returning.
func (o *Orchestrator) Run(ctx context.Context, events <-chan display.Event) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			tickets := o.queueDisplayChange(ev.External)
			wg.Add(1)
			go func() {
				defer wg.Done()
				o.await(ctx, tickets)
				o.refresh(ctx)
			}()
		}
	}
}

// HandleDisplayChange runs the workflow matching the new display state for
// every saved device, then refreshes the registry once.
func (o *Orchestrator) HandleDisplayChange(ctx context.Context, hasExternal bool) []Outcome {
	outcomes := o.await(ctx, o.queueDisplayChange(hasExternal))
	o.refresh(ctx)
	return outcomes
}

func (o *Orchestrator) queueDisplayChange(hasExternal bool) []ticket {
	o.logger.Info("display change", "external", hasExternal)

	if hasExternal {
		return o.queueSaved(WorkflowPairConnect, func(ctx context.Context, id string, out *Outcome) {
			o.pairConnect(ctx, id, o.policy.DisplayPairAttempts, out)
		})
	}
	return o.queueSaved(WorkflowUnpair, o.unpair)
}

// PairAllSaved pairs and connects every saved device using the manual
// pair bound, then refreshes once.
func (o *Orchestrator) PairAllSaved(ctx context.Context) []Outcome {
	outcomes := o.await(ctx, o.queueSaved(WorkflowPairConnect, func(ctx context.Context, id string, out *Outcome) {
		o.pairConnect(ctx, id, o.policy.PairAttempts, out)
	}))
	o.refresh(ctx)
	return outcomes
}

// UnpairAllSaved unpairs every saved device, then refreshes once.
func (o *Orchestrator) UnpairAllSaved(ctx context.Context) []Outcome {
	outcomes := o.await(ctx, o.queueSaved(WorkflowUnpair, o.unpair))
	o.refresh(ctx)
	return outcomes
}

// PairDevice pairs one device. The registry is refreshed only when the
// pair succeeded.
func (o *Orchestrator) PairDevice(ctx context.Context, id string) (Outcome, error) {
	if _, err := o.registry.Device(id); err != nil {
		return Outcome{}, fmt.Errorf("pairing %s: %w", id, err)
	}
	out := o.run(ctx, id, WorkflowPair, func(ctx context.Context, id string, out *Outcome) {
		o.setStatus(id, device.StatusPairing)
		defer o.setStatus(id, device.StatusIdle)
		res := o.step(ctx, out, bluetooth.OpPair, id, o.policy.PairAttempts)
		out.Success = res.Success
	})
	if out.Success {
		o.refresh(ctx)
	}
	return out, nil
}

// ConnectDevice connects one already paired device, then refreshes.
func (o *Orchestrator) ConnectDevice(ctx context.Context, id string) (Outcome, error) {
	if _, err := o.registry.Device(id); err != nil {
		return Outcome{}, fmt.Errorf("connecting %s: %w", id, err)
	}
	out := o.run(ctx, id, WorkflowConnect, func(ctx context.Context, id string, out *Outcome) {
		o.setStatus(id, device.StatusConnecting)
		defer o.setStatus(id, device.StatusIdle)
		res := o.step(ctx, out, bluetooth.OpConnect, id, o.policy.ConnectAttempts)
		out.Success = res.Success
	})
	o.refresh(ctx)
	return out, nil
}

// UnpairDevice unpairs one device, then refreshes.
func (o *Orchestrator) UnpairDevice(ctx context.Context, id string) (Outcome, error) {
	if _, err := o.registry.Device(id); err != nil {
		return Outcome{}, fmt.Errorf("unpairing %s: %w", id, err)
	}
	out := o.run(ctx, id, WorkflowUnpair, o.unpair)
	o.refresh(ctx)
	return out, nil
}

// RunWorkflow dispatches a single-device workflow by name.
func (o *Orchestrator) RunWorkflow(ctx context.Context, id string, wf Workflow) (Outcome, error) {
	switch wf {
	case WorkflowPair:
		return o.PairDevice(ctx, id)
	case WorkflowConnect:
		return o.ConnectDevice(ctx, id)
	case WorkflowUnpair:
		return o.UnpairDevice(ctx, id)
	}
	return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownWorkflow, wf)
}

// pairConnect goes pairing, idle, connecting, idle. The device is idle
// during the settle delay.
func (o *Orchestrator) pairConnect(ctx context.Context, id string, pairAttempts int, out *Outcome) {
	o.setStatus(id, device.StatusPairing)
	res := o.step(ctx, out, bluetooth.OpPair, id, pairAttempts)
	o.setStatus(id, device.StatusIdle)
	if !res.Success {
		return
	}
	if err := wait(ctx, o.policy.SettleDelay); err != nil {
		return
	}

	o.setStatus(id, device.StatusConnecting)
	defer o.setStatus(id, device.StatusIdle)
	res = o.step(ctx, out, bluetooth.OpConnect, id, o.policy.ConnectAttempts)
	out.Success = res.Success
}

func (o *Orchestrator) unpair(ctx context.Context, id string, out *Outcome) {
	o.setStatus(id, device.StatusUnpairing)
	defer o.setStatus(id, device.StatusIdle)

	res := o.step(ctx, out, bluetooth.OpUnpair, id, 1)
	out.Success = res.Success
}

func (o *Orchestrator) step(ctx context.Context, out *Outcome, op bluetooth.Operation, id string, attempts int) Result {
	res := o.exec.Attempt(ctx, op, id, attempts, o.policy.RetryDelay)
	out.Steps = append(out.Steps, res)
	if o.recorder != nil {
		o.recorder.RecordResult(res)
	}
	return res
}

// run executes fn as workflow wf for id and waits for it.
func (o *Orchestrator) run(ctx context.Context, id string, wf Workflow, fn func(ctx context.Context, id string, out *Outcome)) Outcome {
	return o.await(ctx, []ticket{o.submit(id, wf, fn)})[0]
}

// submit queues wf as the newest request for id.
//
// A request for the same workflow as the newest unfinished one joins it
// instead. Every older request still waiting for the device is dropped
// when its turn comes.
func (o *Orchestrator) submit(id string, wf Workflow, fn func(ctx context.Context, id string, out *Outcome)) ticket {
	o.queuesMu.Lock()
	defer o.queuesMu.Unlock()

	q, ok := o.queues[id]
	if !ok {
		q = &deviceQueue{}
		o.queues[id] = q
	}
	if f := q.latest; f != nil && f.wf == wf {
		select {
		case <-f.done:
		default:
			o.logger.Debug("joined pending workflow", "device_id", id, "workflow", wf)
			return ticket{id: id, q: q, f: f}
		}
	}

	q.seq++
	f := &flight{
		seq:  q.seq,
		wf:   wf,
		fn:   func(ctx context.Context, out *Outcome) { fn(ctx, id, out) },
		done: make(chan struct{}),
	}
	q.latest = f
	return ticket{id: id, q: q, f: f, owner: true}
}

// execute runs an owned flight once the device is free.
func (o *Orchestrator) execute(ctx context.Context, t ticket) {
	defer close(t.f.done)

	t.q.mu.Lock()
	defer t.q.mu.Unlock()

	out := Outcome{RunID: uuid.NewString(), DeviceID: t.id, Workflow: t.f.wf}
	if o.superseded(t) {
		out.Superseded = true
		o.logger.Info("workflow superseded", "run_id", out.RunID, "device_id", t.id, "workflow", t.f.wf)
		t.f.out = out
		return
	}

	o.logger.Debug("workflow started", "run_id", out.RunID, "device_id", t.id, "workflow", t.f.wf)
	t.f.fn(ctx, &out)
	o.logger.Info("workflow finished", "run_id", out.RunID, "device_id", t.id, "workflow", t.f.wf, "success", out.Success)
	t.f.out = out
}

func (o *Orchestrator) superseded(t ticket) bool {
	o.queuesMu.Lock()
	defer o.queuesMu.Unlock()
	return t.q.seq != t.f.seq
}

// queueSaved submits wf for every saved device.
func (o *Orchestrator) queueSaved(wf Workflow, fn func(ctx context.Context, id string, out *Outcome)) []ticket {
	saved := o.registry.SavedDevices()
	tickets := make([]ticket, 0, len(saved))
	for _, d := range saved {
		if d.ID == "" {
			o.logger.Warn("skipping device with no address")
			continue
		}
		tickets = append(tickets, o.submit(d.ID, wf, fn))
	}
	return tickets
}

// await executes the owned tickets in parallel, bounded by
// Policy.MaxParallel, then waits for the joined ones.
func (o *Orchestrator) await(ctx context.Context, tickets []ticket) []Outcome {
	var g errgroup.Group
	if o.policy.MaxParallel > 0 {
		g.SetLimit(o.policy.MaxParallel)
	}
	for _, t := range tickets {
		if !t.owner {
			continue
		}
		g.Go(func() error {
			o.execute(ctx, t)
			return nil
		})
	}
	_ = g.Wait()

	outcomes := make([]Outcome, len(tickets))
	for i, t := range tickets {
		<-t.f.done
		outcomes[i] = t.f.out
	}
	return outcomes
}

func (o *Orchestrator) setStatus(id string, status device.OperationStatus) {
	if err := o.registry.SetOperationStatus(id, status); err != nil && !errors.Is(err, device.ErrDeviceNotFound) {
		o.logger.Warn("status update rejected", "device_id", id, "status", status, "error", err)
	}
}

func (o *Orchestrator) refresh(ctx context.Context) {
	if err := o.registry.Refresh(ctx); err != nil {
		o.logger.Debug("post-workflow refresh skipped", "error", err)
	}
}
