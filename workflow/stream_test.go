package workflow

import (
	"context"
	"testing"
)

func TestRun_Stream(t *testing.T) {
	t.Run("yields messages with state as turns complete", func(t *testing.T) {
		c, _ := New(DefaultRegistry(), newFakeInvoker(completingReply))
		run, err := c.NewRun(fibonacci)
		if err != nil {
			t.Fatalf("NewRun: %v", err)
		}

		var seqs []int
		var last State
		for msg, st := range run.Stream(context.Background()) {
			seqs = append(seqs, msg.Seq)
			if st.Iteration != msg.Seq {
				t.Errorf("state iteration %d does not match seq %d", st.Iteration, msg.Seq)
			}
			if msg.Seq == 1 && (st.Phase != PhaseAnalyzing || st.Role != RoleRequirementAnalysis) {
				t.Errorf("unexpected state for seed: %+v", st)
			}
			if msg.Source == RoleCodeReview && st.Phase != PhaseReviewing {
				t.Errorf("expected Reviewing for review message, got %s", st.Phase)
			}
			last = st
		}

		if len(seqs) != 8 {
			t.Fatalf("expected 8 messages, got %d", len(seqs))
		}
		if !last.Terminated || last.Reason != ReasonCompletionSignal {
			t.Errorf("last yielded state should be terminal, got %+v", last)
		}
		if run.Outcome().State != last {
			t.Errorf("outcome state %+v differs from last yielded %+v", run.Outcome().State, last)
		}
	})

	t.Run("nothing runs until ranged", func(t *testing.T) {
		inv := newFakeInvoker(completingReply)
		c, _ := New(DefaultRegistry(), inv)
		run, _ := c.NewRun(fibonacci)

		_ = run.Stream(context.Background())
		if len(inv.Calls()) != 0 {
			t.Errorf("expected lazy stream, got %d calls", len(inv.Calls()))
		}
		if run.Outcome().RunID != "" {
			t.Error("expected no outcome before streaming")
		}
	})

	t.Run("restart yields an independent conversation", func(t *testing.T) {
		inv := newFakeInvoker(completingReply)
		c, _ := New(DefaultRegistry(), inv)
		run, _ := c.NewRun(fibonacci)

		count := func() int {
			n := 0
			for range run.Stream(context.Background()) {
				n++
			}
			return n
		}

		first := count()
		firstID := run.Outcome().RunID
		second := count()
		secondID := run.Outcome().RunID

		if first != 8 || second != 8 {
			t.Errorf("expected 8 messages per run, got %d and %d", first, second)
		}
		if firstID == secondID {
			t.Error("expected distinct run IDs")
		}
		if len(inv.Calls()) != 14 {
			t.Errorf("expected 14 invocations, got %d", len(inv.Calls()))
		}
		if got := run.Outcome().Conversation[1].Seq; got != 2 {
			t.Errorf("second run should restart sequence numbers, got %d", got)
		}
	})

	t.Run("consumer break cancels the run", func(t *testing.T) {
		inv := newFakeInvoker(completingReply)
		c, _ := New(DefaultRegistry(), inv)
		run, _ := c.NewRun(fibonacci)

		for msg := range run.Stream(context.Background()) {
			if msg.Source == RoleCoding {
				break
			}
		}

		out := run.Outcome()
		if out.State.Reason != ReasonCancelled || out.State.Phase != PhaseAborted {
			t.Errorf("expected Aborted(Cancelled), got %s/%s", out.State.Phase, out.State.Reason)
		}
		if out.Err != nil {
			t.Errorf("a consumer break is not an error, got %v", out.Err)
		}
		if len(out.Conversation) != 3 {
			t.Errorf("expected 3 messages, got %d", len(out.Conversation))
		}
		if len(inv.Calls()) != 2 {
			t.Errorf("expected no further invocations after break, got %d", len(inv.Calls()))
		}
	})

	t.Run("history passed to roles is the conversation so far", func(t *testing.T) {
		inv := newFakeInvoker(completingReply)
		c, _ := New(DefaultRegistry(), inv)
		out, _ := c.Run(context.Background(), fibonacci)

		for i, h := range inv.histories {
			if len(h) != i+1 {
				t.Errorf("call %d saw %d messages, want %d", i, len(h), i+1)
			}
		}
		if len(inv.histories) != len(out.Conversation)-1 {
			t.Errorf("expected one invocation per role message")
		}
	})
}

func TestOutcome(t *testing.T) {
	c, _ := New(DefaultRegistry(), newFakeInvoker(completingReply))
	out, _ := c.Run(context.Background(), fibonacci)

	if out.Duration() < 0 {
		t.Errorf("negative duration %v", out.Duration())
	}
	if out.StartedAt.IsZero() || out.FinishedAt.Before(out.StartedAt) {
		t.Errorf("unexpected timestamps %v..%v", out.StartedAt, out.FinishedAt)
	}
	if out.Requirement != fibonacci {
		t.Errorf("unexpected requirement %q", out.Requirement)
	}
}
