package paranormal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// NormalImage is a published composite of a layer tree. Generation orders
// images: a higher generation was scheduled after every lower one.
//
// A NormalImage is immutable once published.
type NormalImage struct {
	Raster     *Raster
	Generation uint64
}

// Compositor renders layer tree snapshots into normal images on a dedicated
// worker goroutine.
//
// Requests coalesce: at most one render runs at a time and at most one
// request waits behind it. A new request replaces a waiting one, so a burst
// of edits costs at most two renders. Results are published only if they
// are newer than the current image. A failed render is logged and the
// previous image is kept.
//
// The overlay filter, and any GPU accelerator behind it, is only called from
// the worker goroutine.
type Compositor struct {
	filter *OverlayFilter

	// Changed is emitted on the worker goroutine after each publication.
	Changed Signal[*NormalImage]

	current atomic.Pointer[NormalImage]

	mu        sync.Mutex
	pending   *renderRequest
	nextGen   uint64
	processed uint64
	progress  chan struct{} // closed and replaced when processed advances
	lastErr   error

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

type renderRequest struct {
	gen  uint64
	root *Layer
}

// NewCompositor starts a compositor that renders with filter.
// Call Close to stop its worker.
func NewCompositor(filter *OverlayFilter) *Compositor {
	c := &Compositor{
		filter:   filter,
		progress: make(chan struct{}),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	c.wg.Add(1)
	go c.run()
	return c
}

// Schedule snapshots tree and queues a render of it. It never blocks on
// rendering and returns the generation assigned to the request.
func (c *Compositor) Schedule(tree *Tree) uint64 {
	return c.ScheduleSnapshot(tree.Snapshot())
}

// ScheduleSnapshot queues a render of root, which must not be modified
// afterwards. Use Tree.Snapshot to obtain one.
func (c *Compositor) ScheduleSnapshot(root *Layer) uint64 {
	c.mu.Lock()
	c.nextGen++
	gen := c.nextGen
	if c.pending != nil {
		Logger().Debug("compositor: request superseded", "gen", c.pending.gen, "by", gen)
	}
	c.pending = &renderRequest{gen: gen, root: root}
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return gen
}

func (c *Compositor) run() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case <-c.wake:
		}

		c.mu.Lock()
		req := c.pending
		c.pending = nil
		c.mu.Unlock()
		if req != nil {
			c.render(req)
		}
	}
}

func (c *Compositor) render(req *renderRequest) {
	start := time.Now()
	raster, err := RenderLayer(req.root, c.filter)
	if err != nil {
		Logger().Warn("compositor: render failed, keeping previous image", "gen", req.gen, "err", err)
		c.finish(req.gen, err)
		return
	}

	img := &NormalImage{Raster: raster, Generation: req.gen}
	if c.publish(img) {
		Logger().Debug("compositor: published", "gen", req.gen, "elapsed", time.Since(start))
		c.Changed.Emit(img)
	}
	c.finish(req.gen, nil)
}

// publish swaps img in unless an image of the same or a newer generation
// is already current.
func (c *Compositor) publish(img *NormalImage) bool {
	for {
		cur := c.current.Load()
		if cur != nil && cur.Generation >= img.Generation {
			Logger().Debug("compositor: discarded stale result", "gen", img.Generation, "current", cur.Generation)
			return false
		}
		if c.current.CompareAndSwap(cur, img) {
			return true
		}
	}
}

func (c *Compositor) finish(gen uint64, err error) {
	c.mu.Lock()
	if gen > c.processed {
		c.processed = gen
	}
	c.lastErr = err
	close(c.progress)
	c.progress = make(chan struct{})
	c.mu.Unlock()
}

// Current returns the most recently published image, or nil before the
// first render completes.
func (c *Compositor) Current() *NormalImage {
	return c.current.Load()
}

// Err returns the error of the most recent render, or nil if it succeeded.
func (c *Compositor) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Generation returns the generation of the most recently scheduled request.
func (c *Compositor) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextGen
}

// Wait blocks until the request of generation gen, or a newer one that
// superseded it, has been processed. A processed request may have failed;
// see Err.
func (c *Compositor) Wait(ctx context.Context, gen uint64) error {
	for {
		c.mu.Lock()
		if c.processed >= gen {
			c.mu.Unlock()
			return nil
		}
		progress := c.progress
		c.mu.Unlock()

		select {
		case <-progress:
		case <-c.done:
			return ErrCompositorClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops the worker after any render in progress. Pending requests
// are dropped. Close is idempotent.
func (c *Compositor) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	c.wg.Wait()
}
