package logger

import (
	"bytes"
	"errors"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevFlags := log.Writer(), log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
	})
	return &buf
}

func TestSuccessDropsDetail(t *testing.T) {
	out := captureLog(t)

	Begin("job1")
	Append("job1", "loading styles")
	Success("job1", "layer ready")
	Sync()

	assert.NotContains(t, out.String(), "loading styles")
	assert.Contains(t, out.String(), "[job1  ][Render] ✔ layer ready")
}

func TestFlushErrorReplaysDetail(t *testing.T) {
	out := captureLog(t)

	Begin("job2")
	Append("job2", "step one")
	Append("job2", "step two")
	FlushError("job2", errors.New("boom"))
	Sync()

	assert.Equal(t, "step one\nstep two\n[job2  ][ERROR] boom\n", out.String())
}

func TestAppendWithoutBufferLogsImmediately(t *testing.T) {
	out := captureLog(t)

	Append("nobuf", "direct line")
	Sync()

	assert.Equal(t, "direct line\n", out.String())
}
