// Tests for the display log [Ring]: bounded length, FIFO eviction, resizing
// and level mapping.
package logger

import (
	"fmt"
	"testing"
	"time"
)

// ///////////////////////////////////////////////
// Eviction
// ///////////////////////////////////////////////

func TestRing_NeverExceedsMax(t *testing.T) {
	r := NewRing(10)
	base := time.UnixMilli(1_700_000_000_000)

	for i := 0; i < 37; i++ {
		r.Append(NewEntry(base.Add(time.Duration(i)*time.Second), Info, fmt.Sprintf("msg %d", i)))
		if r.Len() > 10 {
			t.Fatalf("after %d appends Len() = %d, want <= 10", i+1, r.Len())
		}
	}

	got := r.Entries()
	if len(got) != 10 {
		t.Fatalf("len = %d, want 10", len(got))
	}
	// Oldest dropped first, newest always present.
	for i, e := range got {
		if want := fmt.Sprintf("msg %d", 27+i); e.Message != want {
			t.Errorf("entry %d = %q, want %q", i, e.Message, want)
		}
	}
	if last := got[len(got)-1]; last.Message != "msg 36" {
		t.Errorf("newest entry = %q, want msg 36", last.Message)
	}
}

func TestRing_SetMaxTruncatesFront(t *testing.T) {
	r := NewRing(100)
	for i := 0; i < 50; i++ {
		r.Append(Entry{Message: fmt.Sprint(i)})
	}

	r.SetMax(20)

	got := r.Entries()
	if len(got) != 20 || got[0].Message != "30" || got[19].Message != "49" {
		t.Errorf("after SetMax(20): len=%d first=%q last=%q", len(got), got[0].Message, got[len(got)-1].Message)
	}
	if r.Max() != 20 {
		t.Errorf("Max() = %d, want 20", r.Max())
	}
}

func TestRing_MinimumCapacity(t *testing.T) {
	r := NewRing(0)
	r.Append(Entry{Message: "a"})
	r.Append(Entry{Message: "b"})
	if got := r.Entries(); len(got) != 1 || got[0].Message != "b" {
		t.Errorf("entries = %+v, want only b", got)
	}
}

// ///////////////////////////////////////////////
// Copies and Clear
// ///////////////////////////////////////////////

func TestRing_EntriesIsCopy(t *testing.T) {
	r := NewRing(5)
	r.Append(Entry{Message: "original"})

	got := r.Entries()
	got[0].Message = "mutated"

	if r.Entries()[0].Message != "original" {
		t.Error("Entries() exposed internal storage")
	}
}

func TestRing_Clear(t *testing.T) {
	r := NewRing(5)
	r.Append(Entry{Message: "x"})
	r.Clear()
	if r.Len() != 0 {
		t.Errorf("Len() after Clear = %d", r.Len())
	}
	if got := r.Entries(); len(got) != 0 {
		t.Errorf("Entries() after Clear = %+v", got)
	}
}

// ///////////////////////////////////////////////
// Levels
// ///////////////////////////////////////////////

func TestLevel_Slog(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{Info, "INFO"},
		{Warn, "WARN"},
		{Error, "ERROR"},
		{Success, "SUCCESS"},
		{Level("other"), "INFO"},
	}
	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			if got := levelName(tt.level.Slog()); got != tt.want {
				t.Errorf("%q maps to %s, want %s", tt.level, got, tt.want)
			}
		})
	}
}

func TestNewEntry(t *testing.T) {
	at := time.UnixMilli(1_700_000_123_456)
	e := NewEntry(at, Success, "Connected to Steam API")
	if e.Timestamp != 1_700_000_123_456 || e.Level != Success || e.Message != "Connected to Steam API" {
		t.Errorf("NewEntry = %+v", e)
	}
}
