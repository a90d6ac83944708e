package emit

import (
	"context"
	"log/slog"
	"sort"
)

// LogEmitter implements Emitter by writing each event as a structured slog
// record. Failure events (turn_failed, and run_terminated carrying an
// "error" key) are logged at Warn, retries at Info, everything else at Debug.
//
//	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
//	emitter := emit.NewLogEmitter(logger)
//
// Example JSON output:
//
//	{"level":"DEBUG","msg":"turn_completed","run_id":"1f0c...","seq":3,"role":"CodeReviewAgent","duration_ms":812}
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter creates a LogEmitter. A nil logger uses slog.Default().
func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger}
}

// Emit implements Emitter.
func (l *LogEmitter) Emit(event Event) {
	attrs := []slog.Attr{
		slog.String("run_id", event.RunID),
		slog.Int("seq", event.Seq),
	}
	if event.Role != "" {
		attrs = append(attrs, slog.String("role", event.Role))
	}

	keys := make([]string, 0, len(event.Meta))
	for k := range event.Meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, event.Meta[k]))
	}

	l.logger.LogAttrs(context.Background(), levelFor(event), event.Msg, attrs...)
}

func levelFor(event Event) slog.Level {
	switch event.Msg {
	case MsgTurnFailed:
		return slog.LevelWarn
	case MsgTurnRetry, MsgReviewRetry:
		return slog.LevelInfo
	case MsgRunStarted:
		return slog.LevelInfo
	case MsgRunTerminated:
		if _, failed := event.Meta["error"]; failed {
			return slog.LevelWarn
		}
		return slog.LevelInfo
	}
	return slog.LevelDebug
}
