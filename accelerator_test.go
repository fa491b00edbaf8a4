package paranormal

import (
	"errors"
	"log/slog"
	"sync"
	"testing"
)

// mockAccelerator implements OverlayAccelerator for testing.
type mockAccelerator struct {
	name     string
	initErr  error
	closed   bool
	provider any
	logger   *slog.Logger
	mu       sync.Mutex
}

func (m *mockAccelerator) Name() string { return m.name }

func (m *mockAccelerator) Init() error { return m.initErr }

func (m *mockAccelerator) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

func (m *mockAccelerator) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockAccelerator) Overlay(_ ShaderProgram, _, _, _ GPURenderTarget) error {
	return ErrFallbackToCPU
}

func (m *mockAccelerator) SetDeviceProvider(provider any) error {
	m.mu.Lock()
	m.provider = provider
	m.mu.Unlock()
	return nil
}

func (m *mockAccelerator) SetLogger(l *slog.Logger) {
	m.mu.Lock()
	m.logger = l
	m.mu.Unlock()
}

// resetAccelerator clears the global accelerator state between tests.
func resetAccelerator() {
	accelMu.Lock()
	accel = nil
	accelMu.Unlock()
}

func TestRegisterAcceleratorNil(t *testing.T) {
	resetAccelerator()

	err := RegisterAccelerator(nil)
	if err == nil {
		t.Fatal("expected error when registering nil accelerator")
	}
	if err.Error() != "paranormal: accelerator must not be nil" {
		t.Errorf("unexpected error message: %s", err.Error())
	}
	if Accelerator() != nil {
		t.Error("accelerator should remain nil after failed registration")
	}
}

func TestRegisterAcceleratorInitError(t *testing.T) {
	resetAccelerator()

	initErr := errors.New("no vulkan adapter")
	err := RegisterAccelerator(&mockAccelerator{name: "failing", initErr: initErr})
	if !errors.Is(err, initErr) {
		t.Errorf("expected init error, got: %v", err)
	}
	if Accelerator() != nil {
		t.Error("accelerator should remain nil after Init failure")
	}
}

func TestRegisterAcceleratorReplacesOld(t *testing.T) {
	resetAccelerator()
	defer resetAccelerator()

	first := &mockAccelerator{name: "first"}
	second := &mockAccelerator{name: "second"}
	if err := RegisterAccelerator(first); err != nil {
		t.Fatalf("registering first: %v", err)
	}
	if err := RegisterAccelerator(second); err != nil {
		t.Fatalf("registering second: %v", err)
	}

	if !first.isClosed() {
		t.Error("first accelerator should be closed after replacement")
	}
	if second.isClosed() {
		t.Error("second accelerator should not be closed")
	}
	if a := Accelerator(); a == nil || a.Name() != "second" {
		t.Errorf("Accelerator() = %v, want second", a)
	}
}

func TestUnregisterAccelerator(t *testing.T) {
	resetAccelerator()

	m := &mockAccelerator{name: "gone"}
	if err := RegisterAccelerator(m); err != nil {
		t.Fatal(err)
	}
	UnregisterAccelerator()
	if Accelerator() != nil {
		t.Error("accelerator should be nil after UnregisterAccelerator")
	}
	if !m.isClosed() {
		t.Error("unregistered accelerator should be closed")
	}
	UnregisterAccelerator() // no-op
}

func TestSetAcceleratorDeviceProvider(t *testing.T) {
	resetAccelerator()
	defer resetAccelerator()

	if err := SetAcceleratorDeviceProvider("device"); err != nil {
		t.Errorf("without accelerator: %v", err)
	}

	m := &mockAccelerator{name: "shared"}
	if err := RegisterAccelerator(m); err != nil {
		t.Fatal(err)
	}
	if err := SetAcceleratorDeviceProvider("device"); err != nil {
		t.Fatal(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.provider != "device" {
		t.Errorf("provider = %v, want %q", m.provider, "device")
	}
}

func TestAcceleratorReceivesLogger(t *testing.T) {
	resetAccelerator()
	defer resetAccelerator()
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	m := &mockAccelerator{name: "logged"}
	if err := RegisterAccelerator(m); err != nil {
		t.Fatal(err)
	}

	l := slog.New(slog.NewTextHandler(nil, nil))
	SetLogger(l)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.logger != l {
		t.Error("SetLogger should propagate to the registered accelerator")
	}
}

func TestErrFallbackToCPUWrapped(t *testing.T) {
	wrapped := errors.Join(ErrFallbackToCPU, errors.New("texture too large"))
	if !errors.Is(wrapped, ErrFallbackToCPU) {
		t.Error("wrapped ErrFallbackToCPU should be detectable with errors.Is")
	}
}

func BenchmarkAcceleratorNilCheck(b *testing.B) {
	resetAccelerator()

	b.ReportAllocs()
	for b.Loop() {
		if Accelerator() != nil {
			b.Fatal("should be nil")
		}
	}
}
