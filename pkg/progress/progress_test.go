package progress

import (
	"path/filepath"
	"testing"

	"dwagent/pkg/persistence"
	"dwagent/pkg/proto"
)

func newTestRecorder(t *testing.T) (*Recorder, string) {
	t.Helper()
	dir := t.TempDir()

	store, err := persistence.Open(filepath.Join(dir, "engine.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	logDir := filepath.Join(dir, "progress")
	rec, err := NewRecorder(store, logDir)
	if err != nil {
		t.Fatalf("failed to create recorder: %v", err)
	}
	t.Cleanup(func() { _ = rec.Close() })

	return rec, logDir
}

func TestRecordAssignsMonotonicSeq(t *testing.T) {
	rec, _ := newTestRecorder(t)

	var last int64
	for i := 1; i <= 3; i++ {
		entry := &Entry{
			SessionID: "sess-1",
			Iteration: i,
			Phase:     0,
			Step:      "validate_warehouse_connection",
			Status:    "ok",
			ToolName:  "validate_warehouse_connection",
			Attempts:  1,
		}
		if err := rec.Record(entry); err != nil {
			t.Fatalf("Record: %v", err)
		}
		if entry.Seq <= last {
			t.Errorf("seq not monotonic: %d after %d", entry.Seq, last)
		}
		last = entry.Seq
	}
}

func TestHistoryPreservesAppendOrder(t *testing.T) {
	rec, _ := newTestRecorder(t)

	call := proto.NewToolCall("execute_warehouse_query", map[string]any{"sql": "SELECT 1"})
	result := proto.ToolResult{CallID: call.ID, Status: proto.ResultOK, Attempts: 1}

	if err := rec.RecordInfo("sess-2", 0, 0, "phase_0_infrastructure", StepSessionStarted, ""); err != nil {
		t.Fatalf("RecordInfo: %v", err)
	}
	if err := rec.RecordToolCall("sess-2", 1, 0, "phase_0_infrastructure", &call, &result); err != nil {
		t.Fatalf("RecordToolCall: %v", err)
	}
	if err := rec.RecordInfo("sess-2", 1, 1, "phase_1_discovery", StepPhaseAdvanced, "phase_0_infrastructure -> phase_1_discovery"); err != nil {
		t.Fatalf("RecordInfo: %v", err)
	}

	entries, err := rec.History("sess-2")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Step != StepSessionStarted || entries[2].Step != StepPhaseAdvanced {
		t.Errorf("entries out of order: %v", entries)
	}
	if entries[1].ToolName != "execute_warehouse_query" || entries[1].Status != "ok" {
		t.Errorf("tool entry mangled: %+v", entries[1])
	}
}

func TestSummarize(t *testing.T) {
	rec, _ := newTestRecorder(t)

	for i := 1; i <= 15; i++ {
		phase := 0
		if i > 8 {
			phase = 1
		}
		if err := rec.RecordInfo("sess-3", i, phase, "", StepNote, ""); err != nil {
			t.Fatalf("RecordInfo: %v", err)
		}
	}

	s, err := rec.Summarize("sess-3")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if s.Entries != 15 || s.LastIteration != 15 || s.LastPhase != 1 {
		t.Errorf("unexpected summary: %+v", s)
	}
	if len(s.Recent) != summaryRecentEntries {
		t.Errorf("expected %d recent entries, got %d", summaryRecentEntries, len(s.Recent))
	}
	if s.Recent[len(s.Recent)-1].Iteration != 15 {
		t.Errorf("recent should end with the newest entry")
	}
}

func TestJSONLMirror(t *testing.T) {
	rec, logDir := newTestRecorder(t)

	if err := rec.RecordInfo("sess-4", 1, 0, "phase_0_infrastructure", StepSessionStarted, ""); err != nil {
		t.Fatalf("RecordInfo: %v", err)
	}

	files, err := ListLogFiles(logDir)
	if err != nil {
		t.Fatalf("ListLogFiles: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 log file, got %d", len(files))
	}

	entries, err := ReadEntries(files[0])
	if err != nil {
		t.Fatalf("ReadEntries: %v", err)
	}
	if len(entries) != 1 || entries[0].SessionID != "sess-4" {
		t.Errorf("unexpected mirrored entries: %v", entries)
	}
	if entries[0].Seq == 0 {
		t.Error("mirrored entry should carry its assigned seq")
	}
}
