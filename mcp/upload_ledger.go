package mcp

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

type uploadKind string

const (
	uploadKindJobInput uploadKind = "job_input"
	uploadKindFile     uploadKind = "file"
)

type uploadTerminalState string

const (
	uploadCommitted uploadTerminalState = "committed"
	uploadCancelled uploadTerminalState = "cancelled"
)

const defaultUploadLedgerSize = 1024

type ledgerKey struct {
	kind  uploadKind
	token string
}

type ledgerEntry struct {
	state uploadTerminalState
	at    time.Time
}

// uploadLedger remembers upload tokens this process has seen reach a terminal
// state. It only short-circuits calls on those tokens; the server decides for
// every other token.
type uploadLedger struct {
	mu      sync.Mutex
	max     int
	order   []ledgerKey
	entries map[ledgerKey]ledgerEntry
	now     func() time.Time
}

func newUploadLedger(capacity int) *uploadLedger {
	if capacity <= 0 {
		capacity = defaultUploadLedgerSize
	}
	return &uploadLedger{
		max:     capacity,
		entries: make(map[ledgerKey]ledgerEntry),
		now:     time.Now,
	}
}

// check fails when token already reached a terminal state through this
// process.
func (l *uploadLedger) check(kind uploadKind, token string) error {
	key := ledgerKey{kind: kind, token: strings.TrimSpace(token)}
	l.mu.Lock()
	entry, ok := l.entries[key]
	l.mu.Unlock()
	if !ok {
		return nil
	}
	return fmt.Errorf("%w: %s upload token %q was %s at %s; start a new upload",
		errUploadTokenTerminal, kind, key.token, entry.state, entry.at.UTC().Format(time.RFC3339))
}

// record marks token terminal. Call only after the server confirmed the
// commit or cancel.
func (l *uploadLedger) record(kind uploadKind, token string, state uploadTerminalState) {
	key := ledgerKey{kind: kind, token: strings.TrimSpace(token)}
	if key.token == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[key]; !ok {
		l.order = append(l.order, key)
	}
	l.entries[key] = ledgerEntry{state: state, at: l.now()}
	for len(l.order) > l.max {
		oldest := l.order[0]
		l.order = l.order[1:]
		delete(l.entries, oldest)
	}
}

func (l *uploadLedger) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
