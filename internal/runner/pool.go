package runner

import "sync"

// workerPool is a lazily built goroutine pool shared by all runs. The
// workers start when the first run acquires the pool and are torn down
// when no runs remain active.
type workerPool struct {
	size int

	mu   sync.Mutex
	refs int
	jobs chan func()
	wg   sync.WaitGroup
}

func newWorkerPool(size int) *workerPool {
	if size < 1 {
		size = 1
	}
	return &workerPool{size: size}
}

// acquire registers an active run, spinning up workers on first use.
func (p *workerPool) acquire() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.refs++
	if p.jobs != nil {
		return
	}

	p.jobs = make(chan func())
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go func(jobs chan func()) {
			defer p.wg.Done()
			for job := range jobs {
				job()
			}
		}(p.jobs)
	}
}

// release drops an active run; the last release tears the pool down.
func (p *workerPool) release() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.refs--
	if p.refs > 0 || p.jobs == nil {
		return
	}

	close(p.jobs)
	p.jobs = nil
	p.wg.Wait()
}

// submit queues a job; blocks until a worker accepts it.
func (p *workerPool) submit(job func()) {
	p.mu.Lock()
	jobs := p.jobs
	p.mu.Unlock()

	if jobs == nil {
		// Pool not acquired; run inline rather than lose the job.
		job()
		return
	}
	jobs <- job
}
