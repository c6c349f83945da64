package messaging

import (
	"strconv"
	"strings"
	"time"
)

// Cursor marks a position in the newest-first message order. Items strictly
// older than the cursor come after it.
type Cursor struct {
	At time.Time
	ID MessageID
}

func (c Cursor) String() string {
	return strconv.FormatInt(c.At.UnixNano(), 10) + "|" + string(c.ID)
}

func ParseCursor(raw string) (Cursor, error) {
	nanos, id, ok := strings.Cut(strings.TrimSpace(raw), "|")
	if !ok || id == "" {
		return Cursor{}, ErrInvalidCursor
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil || n < 0 {
		return Cursor{}, ErrInvalidCursor
	}
	return Cursor{At: time.Unix(0, n).UTC(), ID: MessageID(id)}, nil
}

// Precedes reports whether m sorts after the cursor.
func (c Cursor) Precedes(m *Message) bool {
	if m.CreatedAt.Before(c.At) {
		return true
	}
	return m.CreatedAt.Equal(c.At) && m.ID < c.ID
}
