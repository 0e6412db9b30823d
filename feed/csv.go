package feed

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/hedger/market"
)

// CSVFeed replays a price file.
//
// Expected columns:
// time,symbol,price[,event,p1,p2,p3]
// A header row is allowed. Consecutive rows with the same timestamp form
// one frame; an empty price only carries an event.
type CSVFeed struct {
	f    *os.File
	r    *csv.Reader
	from time.Time
	to   time.Time

	sawFirst bool
	pending  *row
	last     time.Time
	line     int
}

type row struct {
	time   time.Time
	symbol string
	price  float64
	event  *Event
}

// NewCSVFeed opens path. A zero from or to leaves that end open.
func NewCSVFeed(path string, from, to time.Time) (*CSVFeed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.Comment = '#'
	return &CSVFeed{f: f, r: r, from: from, to: to}, nil
}

func (c *CSVFeed) Close() error {
	if c.f != nil {
		return c.f.Close()
	}
	return nil
}

func (c *CSVFeed) Next() (Frame, bool, error) {
	first := c.pending
	c.pending = nil
	if first == nil {
		r, ok, err := c.read()
		if err != nil || !ok {
			return Frame{}, false, err
		}
		first = r
	}

	fr := Frame{Time: first.time, Prices: market.Prices{}}
	if !c.last.IsZero() && first.time.After(c.last) {
		fr.Delay = first.time.Sub(c.last)
	}
	c.last = first.time
	fr.add(first)

	for {
		r, ok, err := c.read()
		if err != nil {
			return Frame{}, false, err
		}
		if !ok {
			break
		}
		if !r.time.Equal(first.time) {
			c.pending = r
			break
		}
		fr.add(r)
	}
	return fr, true, nil
}

func (fr *Frame) add(r *row) {
	if r.price > 0 {
		fr.Prices[r.symbol] = r.price
	}
	if r.event != nil {
		fr.Events = append(fr.Events, *r.event)
	}
}

// read returns the next in-range row.
func (c *CSVFeed) read() (*row, bool, error) {
	for {
		rec, err := c.r.Read()
		if err == io.EOF {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		c.line++
		if len(rec) == 0 {
			continue
		}

		if !c.sawFirst {
			c.sawFirst = true
			if strings.EqualFold(strings.TrimSpace(rec[0]), "time") {
				continue
			}
		}

		if len(rec) < 3 {
			return nil, false, fmt.Errorf("line %d: want time,symbol,price: %v", c.line, rec)
		}
		if len(rec) > 7 {
			return nil, false, fmt.Errorf("line %d: too many columns (expected <=7): %v", c.line, rec)
		}

		r, err := parseRow(rec)
		if err != nil {
			return nil, false, fmt.Errorf("line %d: %w", c.line, err)
		}
		if r == nil || !inRange(r.time, c.from, c.to) {
			continue
		}
		return r, true, nil
	}
}

func parseRow(rec []string) (*row, error) {
	ts := strings.TrimSpace(rec[0])
	if ts == "" {
		return nil, nil
	}
	t, err := ParseTime(ts)
	if err != nil {
		return nil, err
	}

	sym := strings.ToUpper(strings.TrimSpace(rec[1]))
	if sym == "" {
		return nil, nil
	}
	r := &row{time: t, symbol: sym}

	if s := strings.TrimSpace(rec[2]); s != "" {
		r.price, err = strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("bad price %q: %w", rec[2], err)
		}
		if r.price <= 0 {
			return nil, fmt.Errorf("price must be positive: %q", rec[2])
		}
	}

	if len(rec) >= 4 && strings.TrimSpace(rec[3]) != "" {
		ev := Event{Name: strings.ToUpper(strings.TrimSpace(rec[3])), Symbol: sym}
		for _, p := range rec[4:] {
			ev.Args = append(ev.Args, strings.TrimSpace(p))
		}
		r.event = &ev
	}

	if r.price == 0 && r.event == nil {
		return nil, nil
	}
	return r, nil
}

// ParseTime accepts RFC3339 with or without fractional seconds.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t2, err2 := time.Parse(time.RFC3339Nano, s)
		if err2 != nil {
			return time.Time{}, fmt.Errorf("bad time %q: %w", s, err)
		}
		t = t2
	}
	return t, nil
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}
