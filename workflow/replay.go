package workflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/dshills/codecrew/workflow/model"
)

// ReplayModelName is reported as the model of replayed turns.
const ReplayModelName = "replay"

// ReplayInvoker answers each role with the messages that role produced in
// a recorded run, in recorded order. Re-running the same requirement with
// the same cap and selector reproduces the recorded conversation without
// calling a model.
type ReplayInvoker struct {
	mu     sync.Mutex
	byRole map[string][]Message
	served map[string]int
}

// NewReplayInvoker indexes recorded by source. User messages are skipped.
func NewReplayInvoker(recorded []Message) *ReplayInvoker {
	r := &ReplayInvoker{
		byRole: make(map[string][]Message),
		served: make(map[string]int),
	}
	for _, m := range recorded {
		if m.Source == SourceUser {
			continue
		}
		r.byRole[m.Source] = append(r.byRole[m.Source], m)
	}
	return r
}

// Invoke implements Invoker.
func (r *ReplayInvoker) Invoke(ctx context.Context, role Role, _ []Message) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.served[role.Name]
	turns := r.byRole[role.Name]
	if i >= len(turns) {
		return model.ChatOut{}, fmt.Errorf("%w: %s turn %d", ErrReplayExhausted, role.Name, i+1)
	}
	r.served[role.Name] = i + 1

	m := turns[i]
	return model.ChatOut{Text: m.Content, Model: ReplayModelName, Usage: m.Usage}, nil
}

// Remaining returns how many recorded turns have not been served.
func (r *ReplayInvoker) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for name, turns := range r.byRole {
		n += len(turns) - r.served[name]
	}
	return n
}

// Digest hashes the sources and contents of messages in order. The result
// has the form "sha256:<hex>".
func Digest(messages []Message) string {
	h := sha256.New()
	for _, m := range messages {
		h.Write([]byte(m.Source))
		h.Write([]byte{0})
		h.Write([]byte(m.Content))
		h.Write([]byte{0})
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}

// VerifyReplay reports ErrReplayMismatch naming the first message where
// replayed differs from recorded.
func VerifyReplay(recorded, replayed []Message) error {
	if Digest(recorded) == Digest(replayed) {
		return nil
	}
	n := min(len(recorded), len(replayed))
	for i := 0; i < n; i++ {
		if recorded[i].Source != replayed[i].Source || recorded[i].Content != replayed[i].Content {
			return fmt.Errorf("%w at message %d: recorded %s, replayed %s",
				ErrReplayMismatch, i+1, recorded[i].Source, replayed[i].Source)
		}
	}
	return fmt.Errorf("%w: recorded %d messages, replayed %d", ErrReplayMismatch, len(recorded), len(replayed))
}
