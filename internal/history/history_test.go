package history

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"modelfetch/internal/catalog"
	"modelfetch/internal/download"
)

func TestWriter_OnOutcome(t *testing.T) {
	dir := t.TempDir()
	model := filepath.Join(dir, "ggml-tiny.bin")
	if err := os.WriteFile(model, make([]byte, 4000), 0o600); err != nil {
		t.Fatal(err)
	}

	w := NewWriter(filepath.Join(dir, "state"), nil)
	tiny := catalog.Variant{ID: "tiny"}

	w.OnOutcome(download.Outcome{Kind: download.OutcomeSuccess, Variant: tiny, Path: model, Source: "https://m.invalid/t", Elapsed: 2 * time.Second})
	w.OnOutcome(download.Outcome{Kind: download.OutcomeError, Variant: tiny, Err: errors.New("network down")})
	w.OnOutcome(download.Outcome{Kind: download.OutcomeCancelled, Variant: tiny})

	records, err := Read(w.Path(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}

	ok := records[0]
	if ok.Outcome != "success" || ok.Bytes != 4000 || ok.BytesPerSecond != 2000 || ok.Source != "https://m.invalid/t" {
		t.Errorf("Unexpected success record %+v", ok)
	}
	if records[1].Outcome != "error" || records[1].Error != "network down" {
		t.Errorf("Unexpected error record %+v", records[1])
	}
	if records[2].Outcome != "cancelled" || records[2].Error != "" {
		t.Errorf("Unexpected cancelled record %+v", records[2])
	}
}

func TestRead_LastN(t *testing.T) {
	w := NewWriter(t.TempDir(), nil)
	for _, v := range []string{"tiny", "base", "small"} {
		if err := w.Write(Record{Variant: v, Outcome: "success"}); err != nil {
			t.Fatal(err)
		}
	}

	// A torn line is skipped
	f, err := os.OpenFile(w.Path(), os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(`{"variant":"med`); err != nil {
		t.Fatal(err)
	}
	f.Close()

	records, err := Read(w.Path(), 2)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, r := range records {
		got = append(got, r.Variant)
	}
	if strings.Join(got, ",") != "base,small" {
		t.Errorf("Read(2) = %v", got)
	}
}

func TestRead_Missing(t *testing.T) {
	records, err := Read(filepath.Join(t.TempDir(), FileName), 10)
	if err != nil || records != nil {
		t.Errorf("Expected no records and no error, got %v, %v", records, err)
	}
}
