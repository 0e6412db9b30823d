package journal

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogBookKeepsNewest(t *testing.T) {
	t.Parallel()

	b := NewLogBook(3)
	for i := 0; i < 5; i++ {
		b.Add(LogEntry{ID: fmt.Sprint(i), Severity: SeverityInfo})
	}

	require.Equal(t, 3, b.Len())
	got := b.Entries()
	assert.Equal(t, "2", got[0].ID)
	assert.Equal(t, "4", got[2].ID)

	last, ok := b.Last()
	require.True(t, ok)
	assert.Equal(t, "4", last.ID)
}

func TestLogBookDefaultCapacity(t *testing.T) {
	t.Parallel()

	b := NewLogBook(0)
	assert.Equal(t, DefaultLogCapacity, b.Capacity())

	for i := 0; i < 250; i++ {
		b.Add(LogEntry{ID: fmt.Sprint(i)})
	}
	assert.Equal(t, 200, b.Len())
	assert.Equal(t, "50", b.Entries()[0].ID)
}

func TestLogBookEntriesIsCopy(t *testing.T) {
	t.Parallel()

	b := NewLogBook(10)
	b.Add(LogEntry{ID: "a", Message: "hello", Timestamp: time.Unix(0, 0)})

	got := b.Entries()
	got[0].Message = "changed"
	assert.Equal(t, "hello", b.Entries()[0].Message)
}

func TestLogBookReset(t *testing.T) {
	t.Parallel()

	b := NewLogBook(2)
	b.Add(LogEntry{ID: "old"})
	b.Reset([]LogEntry{{ID: "1"}, {ID: "2"}, {ID: "3"}})

	got := b.Entries()
	require.Len(t, got, 2)
	assert.Equal(t, "2", got[0].ID)
	assert.Equal(t, "3", got[1].ID)

	_, ok := NewLogBook(1).Last()
	assert.False(t, ok)
}

func TestTradeLogClone(t *testing.T) {
	t.Parallel()

	price := 101.0
	profit := 5.0
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	rec := TradeLog{EntryID: "E1", ExitPrice: &price, ProfitUSDT: &profit, ExitTime: &now, Status: StatusClosed}

	c := rec.Clone()
	*c.ExitPrice = 1
	*c.ProfitUSDT = 1

	assert.Equal(t, 101.0, *rec.ExitPrice)
	assert.Equal(t, 5.0, rec.Profit())
	assert.True(t, rec.Closed())
	assert.Equal(t, 0.0, TradeLog{}.Profit())
	assert.Nil(t, CloneTradeLogs(nil))
}
