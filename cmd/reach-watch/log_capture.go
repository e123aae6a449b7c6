package main

import (
	"bytes"
	"log"
	"slices"
	"sync"
)

// logInterceptor keeps the most recent lines written to the standard
// logger, so they do not garble the terminal UI.
type logInterceptor struct {
	keep     int
	messages []string
	mtx      sync.Mutex
}

func (li *logInterceptor) Write(p []byte) (n int, err error) {
	li.mtx.Lock()
	defer li.mtx.Unlock()

	li.messages = append(li.messages, string(bytes.TrimSpace(p)))
	if li.keep > 0 {
		li.truncate()
	}

	return len(p), nil
}

func interceptLog(keep int) *logInterceptor {
	li := &logInterceptor{keep: keep}
	log.SetOutput(li)
	return li
}

func (li *logInterceptor) truncate() {
	if delta := len(li.messages) - li.keep; delta > 0 {
		li.messages = li.messages[delta:]
	}
}

// Messages returns a copy of the kept lines, oldest first.
func (li *logInterceptor) Messages() []string {
	li.mtx.Lock()
	defer li.mtx.Unlock()
	return slices.Clone(li.messages)
}
