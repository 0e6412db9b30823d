package journal

import "time"

type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeveritySuccess Severity = "SUCCESS"
	SeverityWarning Severity = "WARNING"
	SeverityDanger  Severity = "DANGER"
)

// LogEntry is one user-visible audit message.
type LogEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
}

// DefaultLogCapacity is how many entries a LogBook keeps when none is given.
const DefaultLogCapacity = 200

// LogBook is an append-only audit log that keeps only the newest entries.
// It is not safe for concurrent use; the engine guards it with its own lock.
type LogBook struct {
	capacity int
	entries  []LogEntry
}

func NewLogBook(capacity int) *LogBook {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &LogBook{capacity: capacity}
}

// Add appends e, dropping the oldest entry once the book is full.
func (b *LogBook) Add(e LogEntry) {
	b.entries = append(b.entries, e)
	if over := len(b.entries) - b.capacity; over > 0 {
		// copy down so the backing array does not grow without bound
		n := copy(b.entries, b.entries[over:])
		b.entries = b.entries[:n]
	}
}

// Entries returns a copy, oldest first.
func (b *LogBook) Entries() []LogEntry {
	out := make([]LogEntry, len(b.entries))
	copy(out, b.entries)
	return out
}

func (b *LogBook) Len() int { return len(b.entries) }

func (b *LogBook) Capacity() int { return b.capacity }

// Last returns the newest entry.
func (b *LogBook) Last() (LogEntry, bool) {
	if len(b.entries) == 0 {
		return LogEntry{}, false
	}
	return b.entries[len(b.entries)-1], true
}

// Reset replaces the contents, keeping only the newest capacity entries.
func (b *LogBook) Reset(entries []LogEntry) {
	b.entries = b.entries[:0]
	for _, e := range entries {
		b.Add(e)
	}
}
