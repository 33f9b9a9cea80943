package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tdimeji/mmsgate/internal/logging"
	"github.com/tdimeji/mmsgate/internal/request"
)

// pool runs dispatched requests on a fixed set of worker goroutines. Its
// internal queue is unbounded so dispatching never blocks the scheduler
// lock holder; parallelism is bounded by the worker count.
type pool struct {
	name    string
	workers int
	run     func(context.Context, *request.Request)

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []*request.Request
	closed bool
	wg     sync.WaitGroup
}

func newPool(name string, workers int, run func(context.Context, *request.Request)) *pool {
	if workers <= 0 {
		workers = 4
	}
	p := &pool{name: name, workers: workers, run: run}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *pool) start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		worker := fmt.Sprintf("%s-%d", p.name, i)
		go p.loop(logging.ContextWithWorker(ctx, worker), worker)
	}
}

func (p *pool) loop(ctx context.Context, worker string) {
	defer p.wg.Done()
	slog.InfoContext(ctx, "Transfer worker starting")
	for {
		req, ok := p.next()
		if !ok {
			slog.InfoContext(ctx, "Transfer worker stopping")
			return
		}
		p.run(ctx, req)
	}
}

func (p *pool) next() (*request.Request, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) == 0 && !p.closed {
		p.cond.Wait()
	}
	if len(p.queue) == 0 {
		return nil, false
	}
	req := p.queue[0]
	p.queue = p.queue[1:]
	return req, true
}

func (p *pool) submit(req *request.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.queue = append(p.queue, req)
	p.cond.Signal()
}

// stop drains nothing: queued requests still run, then workers exit.
func (p *pool) stop() {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
}
