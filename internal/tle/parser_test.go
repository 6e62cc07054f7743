package tle

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

const issTLEText = `ISS (ZARYA)
1 25544U 98067A   25045.18032407  .00016717  00000+0  30099-3 0  9996
2 25544  51.6412 193.5765 0003457 126.2851 233.8519 15.49874301495057`

func TestParseSingleEntry(t *testing.T) {
	entries, err := Parse(strings.NewReader(issTLEText), testLogger)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}

	e := entries[0]
	if e.NORADID != 25544 {
		t.Errorf("NORADID = %d, want 25544", e.NORADID)
	}
	if e.Name != "ISS (ZARYA)" {
		t.Errorf("Name = %q, want ISS (ZARYA)", e.Name)
	}
	// Epoch 25045.18032407: day 45 of 2025 plus ~4.3 hours.
	if e.Epoch.Year() != 2025 || e.Epoch.YearDay() != 45 {
		t.Errorf("Epoch = %v, want day 45 of 2025", e.Epoch)
	}
}

func TestParseSkipsMalformedTriplet(t *testing.T) {
	text := `GARBAGE NAME
not a tle line
also not a tle line
` + issTLEText

	entries, err := Parse(strings.NewReader(text), testLogger)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1 (malformed triplet skipped)", len(entries))
	}
	if entries[0].NORADID != 25544 {
		t.Errorf("surviving entry NORADID = %d, want 25544", entries[0].NORADID)
	}
}

func TestParseInvalidNORADID(t *testing.T) {
	text := `BAD SAT
1 XXXXXU 98067A   25045.18032407  .00016717  00000+0  30099-3 0  9993
2 XXXXX  51.6412 193.5765 0003457 126.2851 233.8519 15.49874301495058`

	entries, err := Parse(strings.NewReader(text), testLogger)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("got %d entries, want 0", len(entries))
	}
}

func TestParseEpochCentury(t *testing.T) {
	tests := []struct {
		epochStr string
		wantYear int
	}{
		{"25045.50000000", 2025},
		{"99365.00000000", 1999},
		{"57001.00000000", 1957},
		{"00001.00000000", 2000},
	}

	for _, tt := range tests {
		got, err := parseEpoch(tt.epochStr)
		if err != nil {
			t.Errorf("parseEpoch(%q) error: %v", tt.epochStr, err)
			continue
		}
		if got.Year() != tt.wantYear {
			t.Errorf("parseEpoch(%q).Year() = %d, want %d", tt.epochStr, got.Year(), tt.wantYear)
		}
	}
}

func TestParseEmptyInput(t *testing.T) {
	entries, err := Parse(strings.NewReader(""), testLogger)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("got %d entries, want 0", len(entries))
	}
}

func TestNewDatasetEpochRange(t *testing.T) {
	early := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
	late := time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC)

	ds := NewDataset("test", time.Now(), []Entry{
		{NORADID: 1, Epoch: late},
		{NORADID: 2, Epoch: early},
		{NORADID: 3, Epoch: late.Add(-time.Hour)},
	})

	if !ds.EpochRange.Min.Equal(early) {
		t.Errorf("EpochRange.Min = %v, want %v", ds.EpochRange.Min, early)
	}
	if !ds.EpochRange.Max.Equal(late) {
		t.Errorf("EpochRange.Max = %v, want %v", ds.EpochRange.Max, late)
	}
}

func TestStoreAge(t *testing.T) {
	s := NewStore()
	if s.AgeSeconds() != -1 {
		t.Error("empty store should report age -1")
	}

	s.Set(NewDataset("test", time.Now().Add(-10*time.Second), nil))
	age := s.AgeSeconds()
	if age < 9 || age > 12 {
		t.Errorf("age = %.1f s, want ~10", age)
	}
}
