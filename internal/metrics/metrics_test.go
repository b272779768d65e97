package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_RecordFile(t *testing.T) {
	c := New()

	c.RecordFile("translated")
	c.RecordFile("translated")
	c.RecordFile("failed")

	if got := testutil.ToFloat64(c.filesTotal.WithLabelValues("translated")); got != 2 {
		t.Errorf("expected 2 translated, got %v", got)
	}
	if got := testutil.ToFloat64(c.filesTotal.WithLabelValues("failed")); got != 1 {
		t.Errorf("expected 1 failed, got %v", got)
	}
}

func TestCollector_RecordTranslation(t *testing.T) {
	c := New()

	c.RecordTranslation("google", 1200, 250*time.Millisecond)
	c.RecordTranslation("", 10, time.Millisecond)

	if n := testutil.CollectAndCount(c.translateDuration); n != 2 {
		t.Errorf("expected 2 duration series, got %d", n)
	}
	if n := testutil.CollectAndCount(c.sourceBytes); n != 1 {
		t.Errorf("expected 1 size series, got %d", n)
	}
}

func TestCollector_Nil(t *testing.T) {
	var c *Collector

	c.RecordFile("translated")
	c.RecordTranslation("google", 1, time.Second)
}

func TestCollector_WriteTextfile(t *testing.T) {
	c := New()
	c.RecordFile("cached")

	path := filepath.Join(t.TempDir(), "gtrans.prom")
	if err := c.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read metrics file: %v", err)
	}
	if !strings.Contains(string(data), `gtrans_files_total{status="cached"} 1`) {
		t.Errorf("expected files counter in output, got:\n%s", data)
	}
}

func TestCollector_WriteTextfile_BadPath(t *testing.T) {
	c := New()

	if err := c.WriteTextfile(filepath.Join(t.TempDir(), "missing", "gtrans.prom")); err == nil {
		t.Error("expected error for missing directory")
	}
}
