package telemetry

import (
	"errors"
	"testing"

	"github.com/nerrad567/sqlworker/internal/infrastructure/config"
)

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestCounters_SnapshotAndReset(t *testing.T) {
	var c statementCounters

	counterHook(&c.selects)("SELECT 1", nil)
	counterHook(&c.selects)("SELECT 2", nil)
	counterHook(&c.inserts)("INSERT", nil)
	counterHook(&c.deletes)("DELETE", nil)

	counts := c.snapshotAndReset()
	if counts["select"] != 2 || counts["insert"] != 1 || counts["update"] != 0 || counts["delete"] != 1 {
		t.Errorf("snapshot = %v, want select:2 insert:1 update:0 delete:1", counts)
	}
	if total(counts) != 4 {
		t.Errorf("total = %d, want 4", total(counts))
	}

	// The snapshot drains the counters.
	counts = c.snapshotAndReset()
	if total(counts) != 0 {
		t.Errorf("second snapshot total = %d, want 0", total(counts))
	}
}

func TestWritePoint_Disconnected(t *testing.T) {
	r := &Recorder{}

	// Must be a no-op, not a panic, when never connected.
	r.WritePoint("statements", nil, map[string]interface{}{"select": int64(1)})
}
