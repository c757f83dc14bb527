package stream

import "testing"

func TestPushAndDrainOrdersBySequence(t *testing.T) {
	m := New(10)
	m.Open("t1")
	m.Push("t1", 0, "hello ", false)
	m.Push("t1", 1, "world", false)

	frames, lastSeq, closed := m.Drain("t1", 0)
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[0].Payload != "hello " || frames[1].Payload != "world" {
		t.Errorf("unexpected frame order: %+v", frames)
	}
	if closed {
		t.Error("queue should not report closed while open with frames")
	}
	if lastSeq != 2 {
		t.Errorf("lastSeq = %d, want 2", lastSeq)
	}
}

func TestDrainOnlyReturnsFramesAfterSince(t *testing.T) {
	m := New(10)
	m.Open("t1")
	m.Push("t1", 0, "a", false)
	m.Push("t1", 0, "b", false)

	frames, _, _ := m.Drain("t1", 1)
	if len(frames) != 1 || frames[0].Payload != "b" {
		t.Errorf("expected only the second frame, got %+v", frames)
	}
}

func TestOverflowDropsOldestNonTerminalFrame(t *testing.T) {
	m := New(2)
	m.Open("t1")
	m.Push("t1", 0, "first", false)
	m.Push("t1", 0, "second", false)
	m.Push("t1", 0, "third", false) // overflow: "first" should become DROPPED

	frames, _, _ := m.Drain("t1", 0)
	if len(frames) != 2 {
		t.Fatalf("expected capacity-bounded queue to hold 2 frames, got %d", len(frames))
	}
	if frames[0].Marker != "DROPPED" {
		t.Errorf("expected oldest frame marked DROPPED, got %+v", frames[0])
	}
	if frames[1].Payload != "third" {
		t.Errorf("expected newest frame retained, got %+v", frames[1])
	}
}

func TestPushMarkerAndClose(t *testing.T) {
	m := New(10)
	m.Open("t1")
	m.PushMarker("t1", 0, "ATTEMPT_RESTART")
	m.Close("t1")

	frames, _, closed := m.Drain("t1", 0)
	if len(frames) != 1 || frames[0].Marker != "ATTEMPT_RESTART" {
		t.Errorf("expected ATTEMPT_RESTART marker, got %+v", frames)
	}
	if !m.IsClosed("t1") {
		t.Error("IsClosed should report true after Close")
	}
	_ = closed

	// further pushes after close are ignored
	m.Push("t1", 0, "ignored", false)
	frames, _, _ = m.Drain("t1", 1)
	if len(frames) != 0 {
		t.Errorf("expected no frames pushed after close, got %+v", frames)
	}
}

func TestDrainUnknownTaskReportsClosed(t *testing.T) {
	m := New(10)
	_, _, closed := m.Drain("missing", 0)
	if !closed {
		t.Error("draining an unknown task should report closed")
	}
}
