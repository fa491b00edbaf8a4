package paranormal

import (
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/paranormal/internal/blend"
)

// cpuFilter returns a filter that skips shader validation, for tests that
// only exercise the CPU blend path.
func cpuFilter(mode BlendMode) *OverlayFilter {
	return &OverlayFilter{
		program: ShaderProgram{Name: "test-" + mode.String()},
		mode:    mode,
		blendFn: blend.Get(blend.Mode(mode)),
		pool:    defaultPool(),
	}
}

// skipIfCompilerLimited skips the test when naga reports a missing feature
// rather than a genuine shader error.
func skipIfCompilerLimited(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		return
	}
	var se *ShaderError
	if !errors.As(err, &se) {
		return
	}
	msg := se.Err.Error()
	if strings.Contains(msg, "not yet implemented") || strings.Contains(msg, "not supported") {
		t.Skipf("Skipping: naga feature not yet implemented: %v", err)
	}
}
