package strategy

import (
	"container/heap"
	"context"
	"sync"

	"github.com/npipeline/engine/pipe"
	"golang.org/x/sync/semaphore"
)

// Parallel runs apply across cfg.Degree concurrent workers pulling
// from a bounded queue of length cfg.QueueLength governed by
// cfg.QueuePolicy. With PreserveOrdering, completions are buffered
// and released in input order; otherwise they are emitted as soon as
// they are ready.
func Parallel[In, Out any](cfg ParallelConfig, apply ApplyFunc[In, Out]) StreamApplyFunc[In, Out] {
	degree := cfg.Degree
	if degree < 1 {
		degree = 1
	}

	return func(ctx context.Context, in pipe.Pipe[In]) (pipe.Pipe[Out], error) {
		runCtx, cancel := context.WithCancel(ctx)
		out := make(chan Out, max1(cfg.QueueLength))
		errCh := make(chan error, 1)
		sem := semaphore.NewWeighted(int64(degree))
		queue := newBoundedQueue[seqItem[In]](cfg.QueueLength, cfg.QueuePolicy)

		var wg sync.WaitGroup
		var emitMu sync.Mutex
		emitter := &orderedEmitter[Out]{enabled: cfg.PreserveOrdering}

		reportErr := func(err error) {
			select {
			case errCh <- err:
			default:
			}
			cancel()
		}

		// Feeder: sequentially pulls input items, assigns sequence
		// numbers, and pushes them onto the bounded queue.
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer queue.Close()
			seq := 0
			for {
				item, err := in.Next(runCtx)
				if err != nil {
					if !pipe.IsEOF(err) {
						reportErr(err)
					}
					return
				}
				if !queue.Push(seqItem[In]{seq: seq, val: item}) {
					return
				}
				seq++
			}
		}()

		// Workers: pop queued items, apply, and emit completions.
		var workersWG sync.WaitGroup
		for i := 0; i < degree; i++ {
			workersWG.Add(1)
			go func() {
				defer workersWG.Done()
				for {
					si, ok := queue.Pop()
					if !ok {
						return
					}
					if err := sem.Acquire(runCtx, 1); err != nil {
						return
					}
					result, err := apply(runCtx, si.val)
					sem.Release(1)
					if err != nil {
						if isItemSkipped(err) {
							emitMu.Lock()
							emitter.Skip(si.seq, out)
							emitMu.Unlock()
							continue
						}
						reportErr(err)
						return
					}
					emitMu.Lock()
					emitter.Emit(si.seq, result, out)
					emitMu.Unlock()
				}
			}()
		}

		go func() {
			workersWG.Wait()
			close(out)
		}()

		dispose := func(context.Context) error {
			cancel()
			return in.Dispose(context.Background())
		}
		return pipe.FromChannel(in.StreamName()+"/parallel", out, errCh, dispose), nil
	}
}

func max1(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

type seqItem[T any] struct {
	seq int
	val T
}

// orderedEmitter releases completions in input-sequence order when
// enabled; otherwise it forwards them immediately. Callers must hold
// an external mutex around Emit since multiple workers call it
// concurrently and the heap is not itself safe for concurrent use.
type orderedEmitter[Out any] struct {
	enabled bool
	next    int
	pending resultHeap[Out]
}

func (e *orderedEmitter[Out]) Emit(seq int, val Out, out chan<- Out) {
	if !e.enabled {
		out <- val
		return
	}
	heap.Push(&e.pending, seqResult[Out]{seq: seq, val: val, present: true})
	e.drain(out)
}

// Skip records that seq was dropped (skipped/dead-lettered) without a
// value, so ordered emission does not stall waiting for it forever.
func (e *orderedEmitter[Out]) Skip(seq int, out chan<- Out) {
	if !e.enabled {
		return
	}
	heap.Push(&e.pending, seqResult[Out]{seq: seq, present: false})
	e.drain(out)
}

func (e *orderedEmitter[Out]) drain(out chan<- Out) {
	for e.pending.Len() > 0 && e.pending[0].seq == e.next {
		item := heap.Pop(&e.pending).(seqResult[Out])
		if item.present {
			out <- item.val
		}
		e.next++
	}
}

type seqResult[T any] struct {
	seq     int
	val     T
	present bool
}

type resultHeap[T any] []seqResult[T]

func (h resultHeap[T]) Len() int            { return len(h) }
func (h resultHeap[T]) Less(i, j int) bool  { return h[i].seq < h[j].seq }
func (h resultHeap[T]) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *resultHeap[T]) Push(x interface{}) { *h = append(*h, x.(seqResult[T])) }
func (h *resultHeap[T]) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
