package paranormal

import (
	"context"
	"errors"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/gogpu/paranormal/internal/blend"
)

func waitGen(t *testing.T, c *Compositor, gen uint64) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Wait(ctx, gen); err != nil {
		t.Fatalf("Wait(%d): %v", gen, err)
	}
}

func TestCompositorPublishes(t *testing.T) {
	tree := mustTree(t, 4, 4)
	l, _ := tree.AddChild(tree.Root())
	_ = tree.UpdateFromRenderedContext(l, mustRaster(t, 4, 4, opaqueRed))

	c := NewCompositor(cpuFilter(BlendSourceOver))
	defer c.Close()

	if c.Current() != nil {
		t.Fatal("no image should be published before the first render")
	}
	var got []*NormalImage
	var mu sync.Mutex
	c.Changed.Subscribe(func(img *NormalImage) {
		mu.Lock()
		got = append(got, img)
		mu.Unlock()
	})

	gen := c.Schedule(tree)
	waitGen(t, c, gen)

	img := c.Current()
	if img == nil || img.Generation != gen {
		t.Fatalf("Current() = %v, want generation %d", img, gen)
	}
	if img.Raster.RGBAAt(2, 2) != opaqueRed {
		t.Errorf("composite pixel = %v, want red", img.Raster.RGBAAt(2, 2))
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != img {
		t.Errorf("Changed delivered %d images, want the published one", len(got))
	}
}

func TestCompositorLaterEditWins(t *testing.T) {
	tree := mustTree(t, 2, 2)
	l, _ := tree.AddChild(tree.Root())

	c := NewCompositor(cpuFilter(BlendSourceOver))
	defer c.Close()

	_ = tree.UpdateFromRenderedContext(l, mustRaster(t, 2, 2, opaqueRed))
	first := c.Schedule(tree)
	_ = tree.UpdateFromRenderedContext(l, mustRaster(t, 2, 2, opaqueBlue))
	second := c.Schedule(tree)
	if second <= first {
		t.Fatalf("generations not increasing: %d then %d", first, second)
	}
	waitGen(t, c, second)

	img := c.Current()
	if img.Generation != second {
		t.Errorf("published generation = %d, want %d", img.Generation, second)
	}
	if img.Raster.RGBAAt(0, 0) != opaqueBlue {
		t.Errorf("published pixel = %v, want the later edit (blue)", img.Raster.RGBAAt(0, 0))
	}
}

func TestCompositorCoalesces(t *testing.T) {
	started := make(chan struct{})
	gate := make(chan struct{})
	var once sync.Once
	filter := cpuFilter(BlendSourceOver)
	filter.blendFn = func(sr, sg, sb, sa, dr, dg, db, da byte) (byte, byte, byte, byte) {
		once.Do(func() {
			close(started)
			<-gate
		})
		return blend.Get(blend.ModeSourceOver)(sr, sg, sb, sa, dr, dg, db, da)
	}

	tree := mustTree(t, 2, 2)
	l, _ := tree.AddChild(tree.Root())

	c := NewCompositor(filter)
	defer c.Close()

	var mu sync.Mutex
	var published []uint64
	c.Changed.Subscribe(func(img *NormalImage) {
		mu.Lock()
		published = append(published, img.Generation)
		mu.Unlock()
	})

	first := c.Schedule(tree)
	<-started

	var last uint64
	for i := 0; i < 10; i++ {
		_ = tree.UpdateFromRenderedContext(l, mustRaster(t, 2, 2, color.RGBA{G: uint8(i), A: 255}))
		last = c.Schedule(tree)
	}
	close(gate)
	waitGen(t, c, last)

	mu.Lock()
	defer mu.Unlock()
	if len(published) != 2 || published[0] != first || published[1] != last {
		t.Errorf("published generations = %v, want [%d %d]", published, first, last)
	}
	if c.Current().Raster.RGBAAt(1, 1) != (color.RGBA{G: 9, A: 255}) {
		t.Errorf("final pixel = %v, want the last edit", c.Current().Raster.RGBAAt(1, 1))
	}
}

func TestCompositorKeepsLastGoodOnError(t *testing.T) {
	tree := mustTree(t, 2, 2)
	_ = tree.UpdateFromRenderedContext(tree.Root(), mustRaster(t, 2, 2, opaqueRed))

	c := NewCompositor(cpuFilter(BlendSourceOver))
	defer c.Close()

	good := c.Schedule(tree)
	waitGen(t, c, good)

	// A hand-built snapshot whose child does not match the canvas.
	broken := tree.Snapshot()
	bad, _ := CreateEmpty(Size{Width: 3, Height: 3})
	bad.parent = broken
	broken.children = append(broken.children, bad)

	gen := c.ScheduleSnapshot(broken)
	waitGen(t, c, gen)

	if !errors.Is(c.Err(), ErrDimensionMismatch) {
		t.Errorf("Err() = %v, want ErrDimensionMismatch", c.Err())
	}
	img := c.Current()
	if img.Generation != good || img.Raster.RGBAAt(0, 0) != opaqueRed {
		t.Errorf("failed render should keep generation %d, got %d", good, img.Generation)
	}

	again := c.Schedule(tree)
	waitGen(t, c, again)
	if c.Err() != nil {
		t.Errorf("Err() after a good render = %v, want nil", c.Err())
	}
}

func TestCompositorPublishDiscardsStale(t *testing.T) {
	c := NewCompositor(cpuFilter(BlendSourceOver))
	defer c.Close()

	newer := &NormalImage{Raster: mustRaster(t, 1, 1, opaqueBlue), Generation: 5}
	older := &NormalImage{Raster: mustRaster(t, 1, 1, opaqueRed), Generation: 3}
	if !c.publish(newer) {
		t.Fatal("first publish should succeed")
	}
	if c.publish(older) {
		t.Error("an older generation must not replace a newer image")
	}
	if c.publish(&NormalImage{Generation: 5}) {
		t.Error("an equal generation must not replace the current image")
	}
	if c.Current() != newer {
		t.Error("current image changed by a stale publish")
	}
}

func TestCompositorWaitContext(t *testing.T) {
	c := NewCompositor(cpuFilter(BlendSourceOver))
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Wait(ctx, 42); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait for unscheduled generation = %v, want DeadlineExceeded", err)
	}
}

func TestCompositorClose(t *testing.T) {
	c := NewCompositor(cpuFilter(BlendSourceOver))
	c.Close()
	c.Close()

	if err := c.Wait(context.Background(), 1); !errors.Is(err, ErrCompositorClosed) {
		t.Errorf("Wait after Close = %v, want ErrCompositorClosed", err)
	}
}
