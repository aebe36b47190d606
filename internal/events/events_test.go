package events

import (
	"fmt"
	"testing"
)

func TestLog_RecordAndRecent(t *testing.T) {
	l := NewLog(8, nil)

	l.Record(Info, KindMission, 0, "mission started")
	l.Record(Warning, KindGeofenceBreach, 2, "spray drone outside zone")
	l.Record(Info, KindDetection, 1, "crop detection")

	if l.Total() != 3 {
		t.Fatalf("Expected 3 events recorded, got %d", l.Total())
	}

	recent := l.Recent(2)
	if len(recent) != 2 {
		t.Fatalf("Expected 2 recent events, got %d", len(recent))
	}
	if recent[0].Kind != KindGeofenceBreach || recent[1].Kind != KindDetection {
		t.Errorf("Unexpected recent order: %s, %s", recent[0].Kind, recent[1].Kind)
	}
	if recent[1].Seq != 3 {
		t.Errorf("Expected newest seq 3, got %d", recent[1].Seq)
	}

	// Asking for more than recorded returns what exists.
	if got := l.Recent(100); len(got) != 3 {
		t.Errorf("Expected 3 events, got %d", len(got))
	}
}

func TestLog_RingOverwritesOldest(t *testing.T) {
	l := NewLog(4, nil)

	for i := 1; i <= 10; i++ {
		l.Record(Info, KindMission, 0, fmt.Sprintf("event %d", i))
	}

	recent := l.Recent(4)
	if len(recent) != 4 {
		t.Fatalf("Expected ring to retain 4 events, got %d", len(recent))
	}
	for i, want := range []uint64{7, 8, 9, 10} {
		if recent[i].Seq != want {
			t.Errorf("Slot %d: expected seq %d, got %d", i, want, recent[i].Seq)
		}
	}
}

func TestLog_Since(t *testing.T) {
	l := NewLog(4, nil)

	for i := 1; i <= 6; i++ {
		l.Record(Info, KindMission, 0, fmt.Sprintf("event %d", i))
	}

	// Ring retains seq 3..6; a consumer at seq 4 gets 5 and 6.
	got := l.Since(4)
	if len(got) != 2 || got[0].Seq != 5 || got[1].Seq != 6 {
		t.Fatalf("Expected seq [5 6], got %+v", got)
	}

	// A consumer that fell behind the ring gets everything retained; the
	// sequence numbers expose the gap.
	behind := l.Since(1)
	if len(behind) != 4 || behind[0].Seq != 3 {
		t.Fatalf("Expected retained seq 3..6, got %+v", behind)
	}

	// Caught up: nothing to return.
	if got := l.Since(6); got != nil {
		t.Errorf("Expected nil for a caught-up consumer, got %+v", got)
	}
}

func TestLog_OnEvent(t *testing.T) {
	l := NewLog(8, nil)

	var seen []Event
	l.OnEvent(func(ev Event) { seen = append(seen, ev) })

	l.Record(Alert, KindPersistenceFailure, 0, "write failed")
	l.Record(Info, KindCommand, 2, "SPRAY_ON acknowledged")

	if len(seen) != 2 {
		t.Fatalf("Expected hook to see 2 events, got %d", len(seen))
	}
	if seen[0].Severity != Alert || seen[0].Kind != KindPersistenceFailure {
		t.Errorf("Unexpected first hooked event: %+v", seen[0])
	}
	if seen[1].DroneID != 2 {
		t.Errorf("Expected drone 2 on second event, got %d", seen[1].DroneID)
	}
}
