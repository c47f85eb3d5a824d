package graph

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-graph/engine/graph/node"
	"github.com/Carmen-Shannon/oxy-graph/engine/scene"
)

// Recorder records nodes in parallel on a worker pool. Each (node, kernel) pair is one task;
// the kernel index selects which secondary buffer and scratch data the task owns.
type Recorder struct {
	pool    worker.DynamicWorkerPool
	kernels int
	taskID  atomic.Int64
}

// NewRecorder creates a recorder with one worker per kernel.
//
// Parameters:
//   - kernels: the kernel count, normally Renderer.KernelsCount
//
// Returns:
//   - *Recorder: the recorder
func NewRecorder(kernels int) *Recorder {
	return &Recorder{
		pool:    worker.NewDynamicWorkerPool(kernels, 256, 1*time.Second),
		kernels: kernels,
	}
}

// Kernels returns the kernel count.
func (rc *Recorder) Kernels() int { return rc.kernels }

// Record runs Record(kernel, frame, view) for every node and kernel and waits for all of
// them. A panicking task is re-panicked on the caller's goroutine once every task is done.
//
// Parameters:
//   - nodes: the nodes to record
//   - frame: the frame-in-flight index
//   - view: the scene snapshot
//
// Returns:
//   - error: every task error joined
func (rc *Recorder) Record(nodes []node.Node, frame int, view scene.View) error {
	var wg sync.WaitGroup
	errs := make([]error, len(nodes)*rc.kernels)
	var panicked atomic.Value

	for i, n := range nodes {
		for k := range rc.kernels {
			wg.Add(1)
			slot := i*rc.kernels + k
			nCap, kCap := n, k
			rc.pool.SubmitTask(worker.Task{
				ID: int(rc.taskID.Add(1)),
				Do: func() (any, error) {
					defer wg.Done()
					defer func() {
						if r := recover(); r != nil {
							panicked.CompareAndSwap(nil, fmt.Sprint(r))
						}
					}()
					errs[slot] = nCap.Record(kCap, frame, view)
					return nil, errs[slot]
				},
			})
		}
	}
	wg.Wait()

	if p := panicked.Load(); p != nil {
		panic(p)
	}
	return errors.Join(errs...)
}
