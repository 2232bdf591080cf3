package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/forgehq/sidecar/pkg/models"
)

// CustomFunc is a user-authored verifier function loaded from the
// configured verifiers directory: (toolName, args, result) -> outcome.
type CustomFunc func(ctx context.Context, toolName string, args, result json.RawMessage) (models.VerifierOutcome, string, error)

const (
	defaultQueueCap = 200
	defaultTimeout  = 2 * time.Second
)

type job struct {
	id       int64
	fn       CustomFunc
	toolName string
	args     json.RawMessage
	result   json.RawMessage
	role     models.VerifierRole
	resultCh chan EvalResult
}

// WorkerPool is a fixed-size pool dispatching sandboxed custom verifier
// calls, per §4.5. A worker whose call times out is treated as stuck: Go
// cannot forcibly kill a goroutine, so the pool spawns a replacement to
// keep capacity at size and abandons the stuck goroutine, which still
// resolves its own call (harmlessly, since the caller has already moved on
// with the timeout outcome). A call that panics is recovered inside its
// worker, which resolves it to the role-mapped outcome and keeps serving.
type WorkerPool struct {
	size     int
	timeout  time.Duration
	queueCap int

	jobs   chan job
	nextID int64

	mu       sync.Mutex
	shutdown bool
	wg       sync.WaitGroup
}

// NewWorkerPool builds a pool. size <= 0 defaults to min(4, NumCPU); timeout
// <= 0 defaults to 2s; queueCap <= 0 defaults to 200.
func NewWorkerPool(size int, timeout time.Duration, queueCap int) *WorkerPool {
	if size <= 0 {
		size = runtime.NumCPU()
		if size > 4 {
			size = 4
		}
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if queueCap <= 0 {
		queueCap = defaultQueueCap
	}

	p := &WorkerPool{
		size:     size,
		timeout:  timeout,
		queueCap: queueCap,
		jobs:     make(chan job, queueCap),
	}
	for i := 0; i < size; i++ {
		p.spawnWorker()
	}
	return p
}

func (p *WorkerPool) spawnWorker() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for j := range p.jobs {
			p.execute(j)
		}
	}()
}

func (p *WorkerPool) execute(j job) {
	defer func() {
		if r := recover(); r != nil {
			deliver(j.resultCh, EvalResult{
				Outcome: models.RoleMappedOutcome(j.role),
				Message: fmt.Sprintf("verifier crashed: %v", r),
			})
		}
	}()

	outcome, message, err := j.fn(context.Background(), j.toolName, j.args, j.result)
	if err != nil {
		deliver(j.resultCh, EvalResult{Outcome: models.RoleMappedOutcome(j.role), Message: err.Error()})
		return
	}
	deliver(j.resultCh, EvalResult{Outcome: outcome, Message: message})
}

// deliver sends without blocking forever: Dispatch may have already given up
// waiting (timeout path), in which case the buffered channel absorbs the
// late result and it is simply discarded by the garbage collector.
func deliver(ch chan EvalResult, res EvalResult) {
	select {
	case ch <- res:
	default:
	}
}

// Dispatch runs fn in the pool and returns its resolved outcome. If the
// queue is at capacity the call is dropped without ever running, per the
// role-mapped "queue full" outcome.
func (p *WorkerPool) Dispatch(ctx context.Context, fn CustomFunc, toolName string, args, result json.RawMessage, role models.VerifierRole) EvalResult {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return EvalResult{Outcome: models.RoleMappedOutcome(role), Message: "shutting down"}
	}
	p.mu.Unlock()

	j := job{
		id:       atomic.AddInt64(&p.nextID, 1),
		fn:       fn,
		toolName: toolName,
		args:     args,
		result:   result,
		role:     role,
		resultCh: make(chan EvalResult, 1),
	}

	select {
	case p.jobs <- j:
	default:
		return EvalResult{Outcome: models.RoleMappedOutcome(role), Message: "queue full — dropped"}
	}

	select {
	case res := <-j.resultCh:
		return res
	case <-time.After(p.timeout):
		p.spawnWorker() // the stuck worker is abandoned, not stopped
		return EvalResult{Outcome: models.RoleMappedOutcome(role), Message: fmt.Sprintf("verifier timed out after %v", p.timeout)}
	case <-ctx.Done():
		return EvalResult{Outcome: models.RoleMappedOutcome(role), Message: ctx.Err().Error()}
	}
}

// Shutdown resolves every queued-but-undispatched call to its role-mapped
// outcome and stops accepting new work. Workers already executing a call
// are left to finish on their own.
func (p *WorkerPool) Shutdown() {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return
	}
	p.shutdown = true
	p.mu.Unlock()

	close(p.jobs)
	for j := range p.jobs {
		deliver(j.resultCh, EvalResult{Outcome: models.RoleMappedOutcome(j.role), Message: "shutting down"})
	}
	p.wg.Wait()
}
