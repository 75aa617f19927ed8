// Package workqueue distributes per-file backup/restore jobs across worker
// processes over Redis, the way the teacher's internal/queue package
// distributes backtest/screening jobs: push a job onto a list and subscribe
// to a per-job pubsub channel for status. The package does not watch for a
// worker going silent; Requeue pushes a job back only when it is called.
//
// Every message that crosses Redis — the queued job and its status updates —
// is a serialized pack.Pack rather than ad hoc JSON, giving the filter
// pipeline's own wire format an actual cross-process transport.
package workqueue

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"pgbr/pack"
)

// Update is one status change pushed for a queued job.
type Update struct {
	JobID     string
	Status    string // queued|running|completed|error|cancelled
	Manifest  string
	Error     string
	UpdatedAt time.Time
}

const (
	fieldUpdateJobID = iota + 1
	fieldUpdateStatus
	fieldUpdateManifest
	fieldUpdateError
	fieldUpdateUpdatedAt
)

// ToPack renders an Update as a Pack, the wire form carried over Redis
// pubsub.
func (u Update) ToPack() *pack.Pack {
	p := pack.New().
		AddStr(fieldUpdateJobID, u.JobID).
		AddStr(fieldUpdateStatus, u.Status)
	if u.Manifest != "" {
		p.AddStr(fieldUpdateManifest, u.Manifest)
	}
	if u.Error != "" {
		p.AddStr(fieldUpdateError, u.Error)
	}
	return p.AddTime(fieldUpdateUpdatedAt, u.UpdatedAt)
}

// updateFromPack reconstructs an Update from its wire Pack.
func updateFromPack(p *pack.Pack) Update {
	var u Update
	if f, ok := p.Get(fieldUpdateJobID); ok {
		u.JobID = f.Str()
	}
	if f, ok := p.Get(fieldUpdateStatus); ok {
		u.Status = f.Str()
	}
	if f, ok := p.Get(fieldUpdateManifest); ok {
		u.Manifest = f.Str()
	}
	if f, ok := p.Get(fieldUpdateError); ok {
		u.Error = f.Str()
	}
	if f, ok := p.Get(fieldUpdateUpdatedAt); ok {
		u.UpdatedAt = f.Time()
	}
	return u
}

// FileJob is one file's worth of backup or restore work, dispatched to
// whichever worker pulls it off the queue.
type FileJob struct {
	JobID      string
	Operation  string // backup|restore
	Path       string
	Stanza     string
	References []string
	BlockSize  int
	CreatedAt  string
	StatusID   string
	HighPri    bool
}

const (
	fieldJobJobID = iota + 1
	fieldJobOperation
	fieldJobPath
	fieldJobStanza
	fieldJobReferences
	fieldJobBlockSize
	fieldJobCreatedAt
	fieldJobStatusID
)

// ToPack renders a FileJob as a Pack. HighPri never crosses the wire — it
// only selects which Redis list Enqueue/Requeue push onto.
func (j FileJob) ToPack() *pack.Pack {
	p := pack.New().
		AddStr(fieldJobJobID, j.JobID).
		AddStr(fieldJobOperation, j.Operation).
		AddStr(fieldJobPath, j.Path).
		AddStr(fieldJobStanza, j.Stanza)
	if len(j.References) > 0 {
		refs := make([]*pack.Pack, len(j.References))
		for i, r := range j.References {
			refs[i] = pack.New().AddStr(1, r)
		}
		p.AddArray(fieldJobReferences, refs)
	}
	return p.
		AddU32(fieldJobBlockSize, uint32(j.BlockSize)).
		AddStr(fieldJobCreatedAt, j.CreatedAt).
		AddStr(fieldJobStatusID, j.StatusID)
}

// fileJobFromPack reconstructs a FileJob from its wire Pack.
func fileJobFromPack(p *pack.Pack) FileJob {
	var j FileJob
	if f, ok := p.Get(fieldJobJobID); ok {
		j.JobID = f.Str()
	}
	if f, ok := p.Get(fieldJobOperation); ok {
		j.Operation = f.Str()
	}
	if f, ok := p.Get(fieldJobPath); ok {
		j.Path = f.Str()
	}
	if f, ok := p.Get(fieldJobStanza); ok {
		j.Stanza = f.Str()
	}
	if f, ok := p.Get(fieldJobReferences); ok {
		elems := f.Array()
		j.References = make([]string, len(elems))
		for i, e := range elems {
			if rf, ok := e.Get(1); ok {
				j.References[i] = rf.Str()
			}
		}
	}
	if f, ok := p.Get(fieldJobBlockSize); ok {
		j.BlockSize = int(f.U32())
	}
	if f, ok := p.Get(fieldJobCreatedAt); ok {
		j.CreatedAt = f.Str()
	}
	if f, ok := p.Get(fieldJobStatusID); ok {
		j.StatusID = f.Str()
	}
	return j
}

const (
	queueNormal = "pgbr:jobs"
	queueHigh   = "pgbr:jobs:priority"
)

// Handle lets the caller await a job's terminal status or cancel it early.
type Handle struct {
	Updates <-chan Update

	jobID      string
	statusID   string
	client     *redis.Client
	updatesCh  chan Update
	cancelCh   chan struct{}
	doneCh     chan struct{}
	cancelOnce sync.Once
	pubsub     *redis.PubSub
}

// Enqueue pushes a file job onto the queue and returns a Handle for
// following its progress.
func Enqueue(ctx context.Context, client *redis.Client, job FileJob) (*Handle, error) {
	job.JobID = uuid.New().String()
	job.StatusID = uuid.New().String()
	job.CreatedAt = time.Now().Format(time.RFC3339)

	payload := job.ToPack().Encode()

	queueName := queueNormal
	if job.HighPri {
		queueName = queueHigh
	}
	if err := client.RPush(ctx, queueName, payload).Err(); err != nil {
		return nil, fmt.Errorf("push job to %s: %w", queueName, err)
	}

	updatesCh := make(chan Update, 10)
	h := &Handle{
		Updates:   updatesCh,
		jobID:     job.JobID,
		statusID:  job.StatusID,
		client:    client,
		updatesCh: updatesCh,
		cancelCh:  make(chan struct{}),
		doneCh:    make(chan struct{}),
	}

	go h.subscribe(ctx)

	log.Printf("queued %s job %s for %s to %s", job.Operation, job.JobID, job.Path, queueName)
	return h, nil
}

// Cancel stops following this job: it closes the status subscription, and
// Await then returns a "cancelled" update. The worker processing the job is
// not notified and runs it to the end.
func (h *Handle) Cancel() {
	h.cancelOnce.Do(func() {
		if h.pubsub != nil {
			h.pubsub.Close()
		}
		close(h.cancelCh)
	})
}

// Await blocks until a terminal update (completed/error/cancelled) arrives
// or ctx is cancelled.
func (h *Handle) Await(ctx context.Context) (Update, error) {
	for {
		select {
		case <-ctx.Done():
			return Update{}, ctx.Err()
		case <-h.cancelCh:
			return Update{JobID: h.jobID, Status: "cancelled", UpdatedAt: time.Now()}, nil
		case u, ok := <-h.updatesCh:
			if !ok {
				return Update{}, fmt.Errorf("job %s: subscription closed without a final status", h.jobID)
			}
			if isTerminal(u.Status) {
				return u, nil
			}
		}
	}
}

func isTerminal(status string) bool {
	return status == "completed" || status == "error" || status == "cancelled"
}

func (h *Handle) subscribe(ctx context.Context) {
	defer close(h.doneCh)
	defer close(h.updatesCh)

	channel := fmt.Sprintf("pgbr:status:%s", h.statusID)
	pubsub := h.client.Subscribe(ctx, channel)
	h.pubsub = pubsub
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.cancelCh:
			return
		case msg, ok := <-ch:
			if !ok || msg == nil {
				continue
			}
			p, perr := pack.Decode([]byte(msg.Payload))
			if perr != nil {
				log.Printf("workqueue: bad status payload for job %s: %v", h.jobID, perr)
				continue
			}
			u := updateFromPack(p)
			if u.JobID != h.jobID {
				continue
			}
			select {
			case h.updatesCh <- u:
			default:
			}
			if isTerminal(u.Status) {
				return
			}
		}
	}
}

// Publish is called by the worker side to report a status change for a job.
func Publish(ctx context.Context, client *redis.Client, statusID string, u Update) error {
	u.UpdatedAt = time.Now()
	payload := u.ToPack().Encode()
	channel := fmt.Sprintf("pgbr:status:%s", statusID)
	return client.Publish(ctx, channel, payload).Err()
}

// Dequeue blocks (up to timeout) for the next job from the priority queue,
// falling back to the normal queue.
func Dequeue(ctx context.Context, client *redis.Client, timeout time.Duration) (*FileJob, error) {
	result, err := client.BLPop(ctx, timeout, queueHigh, queueNormal).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}
	if len(result) != 2 {
		return nil, fmt.Errorf("dequeue: unexpected BLPOP reply shape")
	}
	p, perr := pack.Decode([]byte(result[1]))
	if perr != nil {
		return nil, fmt.Errorf("decode job: %w", perr)
	}
	job := fileJobFromPack(p)
	return &job, nil
}

// Requeue pushes a job back onto its queue, for worker-failure retry the
// way the teacher's watchdog retries a task after a dead worker.
func Requeue(ctx context.Context, client *redis.Client, job FileJob) error {
	payload := job.ToPack().Encode()
	queueName := queueNormal
	if job.HighPri {
		queueName = queueHigh
	}
	return client.RPush(ctx, queueName, payload).Err()
}
