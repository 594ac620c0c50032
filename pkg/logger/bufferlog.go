// Package logger keeps a per-job in-memory log buffer for the render
// pipeline.
//
// Detail lines are buffered while a layer is being built.
//   - On failure the buffer is replayed followed by the final error.
//   - On success the buffer is dropped and one short line is written.
//
// All state lives in a single goroutine fed by a command channel, so callers
// never share the buffers directly.
package logger

import (
	"bytes"
	"log"
	"strings"
)

type action int

const (
	actBegin action = iota
	actAppend
	actSuccess
	actFlushErr
	actSync
)

type cmd struct {
	act     action
	jobID   string
	message string // Append
	summary string // Success
	err     error  // FlushError
	done    chan struct{}
}

var ch = make(chan cmd, 128)

// Begin starts buffering for jobID.
func Begin(jobID string) { ch <- cmd{act: actBegin, jobID: jobID} }

// Append adds a detail line. Without an open buffer the line is logged at once.
func Append(jobID, msg string) { ch <- cmd{act: actAppend, jobID: jobID, message: msg} }

// Success drops the buffer and logs a one-line summary.
func Success(jobID, summary string) { ch <- cmd{act: actSuccess, jobID: jobID, summary: summary} }

// FlushError replays the buffer and logs err.
func FlushError(jobID string, err error) { ch <- cmd{act: actFlushErr, jobID: jobID, err: err} }

// Sync blocks until every command sent before it has been handled.
func Sync() {
	done := make(chan struct{})
	ch <- cmd{act: actSync, done: done}
	<-done
}

func init() { go runloop() }

func runloop() {
	buffers := make(map[string]*bytes.Buffer)

	for c := range ch {
		switch c.act {
		case actBegin:
			buffers[c.jobID] = &bytes.Buffer{}

		case actAppend:
			if b := buffers[c.jobID]; b != nil {
				_, _ = b.WriteString(c.message + "\n")
			} else {
				log.Print(c.message)
			}

		case actSuccess:
			log.Printf("[%-6s][Render] ✔ %s", c.jobID, c.summary)
			delete(buffers, c.jobID)

		case actFlushErr:
			if b := buffers[c.jobID]; b != nil {
				for _, ln := range strings.Split(strings.TrimRight(b.String(), "\n"), "\n") {
					if ln != "" {
						log.Print(ln)
					}
				}
				delete(buffers, c.jobID)
			}
			log.Printf("[%-6s][ERROR] %v", c.jobID, c.err)

		case actSync:
			close(c.done)
		}
	}
}
