package emit

import (
	"sync"
	"testing"
)

func TestBufferedEmitter_History(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(Event{RunID: "run-1", Seq: 1, Msg: MsgRunStarted})
	b.Emit(Event{RunID: "run-1", Seq: 1, Role: "RequirementAnalysisAgent", Msg: MsgTurnStarted})
	b.Emit(Event{RunID: "run-2", Seq: 1, Msg: MsgRunStarted})

	t.Run("returns events per run in order", func(t *testing.T) {
		got := b.GetHistory("run-1")
		if len(got) != 2 {
			t.Fatalf("expected 2 events, got %d", len(got))
		}
		if got[0].Msg != MsgRunStarted || got[1].Msg != MsgTurnStarted {
			t.Errorf("unexpected order: %+v", got)
		}
	})

	t.Run("unknown run returns empty slice", func(t *testing.T) {
		got := b.GetHistory("missing")
		if got == nil || len(got) != 0 {
			t.Errorf("expected empty non-nil slice, got %#v", got)
		}
	})

	t.Run("returned slice is a copy", func(t *testing.T) {
		got := b.GetHistory("run-1")
		got[0].Msg = "mutated"
		if b.GetHistory("run-1")[0].Msg != MsgRunStarted {
			t.Error("expected buffer to be unaffected by caller mutation")
		}
	})

	t.Run("lists run IDs", func(t *testing.T) {
		if len(b.RunIDs()) != 2 {
			t.Errorf("expected 2 runs, got %v", b.RunIDs())
		}
	})
}

func TestBufferedEmitter_Filter(t *testing.T) {
	b := NewBufferedEmitter()
	for seq := 1; seq <= 6; seq++ {
		role := "CodingAgent"
		if seq%2 == 0 {
			role = "CodeReviewAgent"
		}
		b.Emit(Event{RunID: "run", Seq: seq, Role: role, Msg: MsgTurnCompleted})
	}
	b.Emit(Event{RunID: "run", Seq: 4, Role: "CodeReviewAgent", Msg: MsgReviewRetry})

	tests := []struct {
		name   string
		filter HistoryFilter
		want   int
	}{
		{"empty filter", HistoryFilter{}, 7},
		{"by role", HistoryFilter{Role: "CodeReviewAgent"}, 4},
		{"by msg", HistoryFilter{Msg: MsgReviewRetry}, 1},
		{"role and msg", HistoryFilter{Role: "CodingAgent", Msg: MsgReviewRetry}, 0},
		{"seq range", HistoryFilter{MinSeq: intPtr(2), MaxSeq: intPtr(4)}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := b.GetHistoryWithFilter("run", tt.filter); len(got) != tt.want {
				t.Errorf("expected %d events, got %d", tt.want, len(got))
			}
		})
	}
}

func TestBufferedEmitter_Clear(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(Event{RunID: "a"})
	b.Emit(Event{RunID: "b"})

	b.Clear("a")
	if len(b.GetHistory("a")) != 0 || len(b.GetHistory("b")) != 1 {
		t.Error("expected only run a cleared")
	}

	b.Clear("")
	if len(b.RunIDs()) != 0 {
		t.Error("expected all runs cleared")
	}
}

func TestBufferedEmitter_Concurrent(t *testing.T) {
	b := NewBufferedEmitter()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b.Emit(Event{RunID: "run", Seq: i})
		}(i)
	}
	wg.Wait()

	if len(b.GetHistory("run")) != 50 {
		t.Errorf("expected 50 events, got %d", len(b.GetHistory("run")))
	}
}

func intPtr(v int) *int { return &v }
