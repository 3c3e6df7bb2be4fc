// Package ledger keeps the capped, rank-ordered list of high scores.
package ledger

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

const (
	// DefaultCapacity is the number of entries kept when none is configured.
	DefaultCapacity = 10

	// ReplyPrefix starts every serialized ranking.
	ReplyPrefix = "HIGH$$ "

	// Separator splits name and score on the wire and on disk.
	Separator = "&"
)

var (
	ErrInvalidName  = errors.New("invalid name")
	ErrInvalidScore = errors.New("invalid score")
	ErrMissingField = errors.New("missing separator")
)

// Entry is one name/score pair. It is never modified after insertion.
type Entry struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// String renders the entry in its persisted form "name & score &".
func (e Entry) String() string {
	return e.Name + " " + Separator + " " + strconv.Itoa(e.Score) + " " + Separator
}

// Outcome describes what an Insert did.
type Outcome struct {
	Added   bool
	Rank    int    // 0-based position of the new entry, -1 if not added
	Evicted *Entry // entry dropped from the tail to make room
}

// Ledger is safe for concurrent use. Entries are ordered by descending
// score; equal scores keep arrival order.
type Ledger struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
}

// New returns an empty ledger holding at most capacity entries.
func New(capacity int) *Ledger {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Ledger{
		entries:  make([]Entry, 0, capacity),
		capacity: capacity,
	}
}

// Insert places a new entry before the first entry with a strictly lower
// score. A full ledger drops its last entry to make room; a score that
// would land past the end is not added and no error is returned.
func (l *Ledger) Insert(name string, score int) (Outcome, error) {
	name, err := normalizeName(name)
	if err != nil {
		return Outcome{Rank: -1}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	i := 0
	for i < len(l.entries) && l.entries[i].Score >= score {
		i++
	}
	if i == l.capacity {
		return Outcome{Rank: -1}, nil
	}

	out := Outcome{Added: true, Rank: i}
	if len(l.entries) == l.capacity {
		last := l.entries[len(l.entries)-1]
		out.Evicted = &last
		l.entries = l.entries[:len(l.entries)-1]
	}

	l.entries = append(l.entries, Entry{})
	copy(l.entries[i+1:], l.entries[i:])
	l.entries[i] = Entry{Name: name, Score: score}
	return out, nil
}

// Serialize returns "HIGH$$ " followed by "name & score & " per entry.
func (l *Ledger) Serialize() string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var b strings.Builder
	b.WriteString(ReplyPrefix)
	for _, e := range l.entries {
		b.WriteString(e.String())
		b.WriteByte(' ')
	}
	return b.String()
}

// Entries returns a copy of the ranking, highest score first.
func (l *Ledger) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func (l *Ledger) Capacity() int {
	return l.capacity
}

// ParseEntry reads "name & score &". Text after the second separator is
// ignored and the trailing separator itself is optional.
func ParseEntry(text string) (Entry, error) {
	parts := strings.SplitN(text, Separator, 3)
	if len(parts) < 2 {
		return Entry{}, fmt.Errorf("%w in %q", ErrMissingField, text)
	}
	name, err := normalizeName(parts[0])
	if err != nil {
		return Entry{}, err
	}
	raw := strings.TrimSpace(parts[1])
	score, err := strconv.Atoi(raw)
	if err != nil {
		return Entry{}, fmt.Errorf("%w %q: %v", ErrInvalidScore, raw, err)
	}
	return Entry{Name: name, Score: score}, nil
}

// normalizeName trims the name and rejects what the line format cannot carry.
func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if strings.ContainsAny(name, Separator+"\r\n") {
		return "", fmt.Errorf("%w %q: contains separator or line break", ErrInvalidName, name)
	}
	return name, nil
}
