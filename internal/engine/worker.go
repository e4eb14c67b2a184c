package engine

import "sync"

// #region worker

// worker drains a serialized task queue on one background goroutine. Posting
// never blocks, so engine code may post while holding the engine lock.
type worker struct {
	mu    sync.Mutex
	tasks []func()
	wake  chan struct{}
	quit  chan struct{}
	done  chan struct{}
}

func newWorker() *worker {
	w := &worker{
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go w.run()
	return w
}

// Post enqueues a task for the worker goroutine.
func (w *worker) Post(task func()) {
	w.mu.Lock()
	w.tasks = append(w.tasks, task)
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *worker) run() {
	defer close(w.done)
	for {
		select {
		case <-w.quit:
			return
		case <-w.wake:
			for {
				w.mu.Lock()
				if len(w.tasks) == 0 {
					w.mu.Unlock()
					break
				}
				task := w.tasks[0]
				w.tasks = w.tasks[1:]
				w.mu.Unlock()
				task()
			}
		}
	}
}

// barrier blocks until every task posted before it has run.
func (w *worker) barrier() {
	done := make(chan struct{})
	w.Post(func() { close(done) })
	<-done
}

// Close stops the worker after the current task, dropping anything queued.
func (w *worker) Close() {
	close(w.quit)
	<-w.done
}

// #endregion
