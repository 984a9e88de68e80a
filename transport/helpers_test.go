package transport

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mfkiwl/SRAM-Acquisition/logger"
)

func newTestLogger() logger.Logger {
	return logger.NewSlogWriter(io.Discard, logger.ErrorLevel, false)
}

func newTestLinks(t *testing.T) (*Link, *Link) {
	t.Helper()

	a, b := NewPipe()
	la := NewLink("a", a, newTestLogger())
	lb := NewLink("b", b, newTestLogger())
	t.Cleanup(func() {
		_ = la.Close()
		_ = lb.Close()
	})

	return la, lb
}

func mustWrite(t *testing.T, l *Link, data []byte) {
	t.Helper()
	require.NoError(t, l.Write(data))
}
