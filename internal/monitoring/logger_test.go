package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLogger(t *testing.T) {
	orig := Logf
	defer func() { Logf = orig }()

	var got string
	SetLogger(func(format string, v ...any) {
		got = fmt.Sprintf(format, v...)
	})
	Logf("level=%d", 3)
	if got != "level=3" {
		t.Errorf("got %q, want %q", got, "level=3")
	}

	SetLogger(nil)
	Logf("ignored %d", 1)
	if got != "level=3" {
		t.Errorf("no-op logger should not write, got %q", got)
	}
}
