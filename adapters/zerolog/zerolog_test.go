package zerologadapter

import (
	"testing"

	"github.com/galemark/ratelimitgw/ratelimit"
)

func TestZerologLogger_ImplementsRatelimitLogger(t *testing.T) {
	var _ ratelimit.Logger = New(nil)
}

func TestZerologLogger_NilLoggerDoesNotPanic(t *testing.T) {
	l := New(nil)
	l.Debugf("test %s", "debug")
	l.Warnf("test %s", "warn")
	l.Errorf("test %s", "error")
}
