package synth

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-advisor/internal/action"
	"github.com/nerrad567/gray-logic-advisor/internal/completion"
	"github.com/nerrad567/gray-logic-advisor/internal/deadline"
	"github.com/nerrad567/gray-logic-advisor/internal/deviation"
	"github.com/nerrad567/gray-logic-advisor/internal/learning"
	"github.com/nerrad567/gray-logic-advisor/internal/readings"
	"github.com/nerrad567/gray-logic-advisor/internal/series"
)

// DefaultCompletionTimeout bounds one completion call.
const DefaultCompletionTimeout = 15 * time.Second

// Logger defines the logging interface used by the Synthesizer.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Input is everything one synthesis pass looks at.
type Input struct {
	Now        time.Time
	Live       readings.Readings
	Aggregates map[string]series.Aggregate
	Deviations []deviation.Deviation
	Stats      map[string]learning.KeyStats
}

// Result is the merged candidate list plus per-generator counts.
type Result struct {
	Actions   []action.Action
	LiveRule  int
	Deviation int
	Suggested int
}

// Synthesizer runs the three generators and merges their output.
type Synthesizer struct {
	rules     RuleThresholds
	completer completion.Completer
	timeout   time.Duration
	logger    Logger
}

// New creates a Synthesizer. completer may be nil to disable model
// suggestions.
func New(rules RuleThresholds, completer completion.Completer, timeout time.Duration, logger Logger) *Synthesizer {
	if timeout <= 0 {
		timeout = DefaultCompletionTimeout
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Synthesizer{rules: rules, completer: completer, timeout: timeout, logger: logger}
}

// Synthesize returns the deduplicated candidates for in. It never fails:
// completion errors are logged and yield no suggestions.
func (s *Synthesizer) Synthesize(ctx context.Context, in Input) Result {
	live := LiveRules(in.Live, s.rules)
	mapped := FromDeviations(in.Deviations, in.Live)
	base := Merge(live, mapped)

	suggested := s.suggest(ctx, in, base)
	merged := Merge(base, suggested)

	snapshot := in.Live.Map()
	for i := range merged {
		if merged[i].Context == nil {
			merged[i].Context = snapshot
		}
	}

	return Result{
		Actions:   merged,
		LiveRule:  len(live),
		Deviation: len(mapped),
		Suggested: len(suggested),
	}
}

func (s *Synthesizer) suggest(ctx context.Context, in Input, candidates []action.Action) []action.Action {
	if s.completer == nil {
		return nil
	}

	prompt, err := BuildPrompt(Bundle{
		GeneratedAt:   in.Now,
		Readings:      in.Live.Map(),
		Aggregates:    in.Aggregates,
		Deviations:    in.Deviations,
		Candidates:    candidates,
		LearningStats: in.Stats,
	})
	if err != nil {
		s.logger.Warn("building completion prompt failed", "error", err)
		return nil
	}

	reply, err := deadline.Race(ctx, s.timeout, func(ctx context.Context) (string, error) {
		return s.completer.Complete(ctx, prompt)
	})
	if err != nil {
		s.logger.Warn("completion request failed, continuing without suggestions", "error", err)
		return nil
	}

	out, err := ParseSuggestions(reply)
	if err != nil {
		s.logger.Warn("completion reply unusable, continuing without suggestions", "error", err)
		return nil
	}
	s.logger.Debug("model suggestions parsed", "count", len(out))
	return out
}
