package progress

import "fmt"

// Stage identifies what a long-running workspace operation is doing.
type Stage string

const (
	StageLoading     Stage = "loading"
	StageCopying     Stage = "copying"
	StageSerializing Stage = "serializing"
	StageDelivering  Stage = "delivering"
	StageComplete    Stage = "complete"
	StageFailed      Stage = "failed"
)

// Event is one progress report. Done counts items fully processed out of Total.
type Event struct {
	Stage    Stage
	Done     int
	Total    int
	Percent  int
	Document string
	Message  string
}

// Reporter receives progress events. Implementations must not block for long;
// reports are emitted from the sequential processing loop.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Event)

func (f ReporterFunc) Report(e Event) { f(e) }

// Nop discards events.
var Nop Reporter = ReporterFunc(func(Event) {})

// OrNop returns r, or Nop when r is nil.
func OrNop(r Reporter) Reporter {
	if r == nil {
		return Nop
	}
	return r
}

// Scale maps done/total onto [0, ceiling], rounding down.
func Scale(done, total, ceiling int) int {
	if total <= 0 {
		return 0
	}
	return done * ceiling / total
}

// Format renders an event as a single log-friendly line.
func Format(e Event) string {
	switch e.Stage {
	case StageLoading, StageCopying:
		if e.Document != "" {
			return fmt.Sprintf("%s %d/%d: %s (%d%%)", e.Stage, e.Done, e.Total, e.Document, e.Percent)
		}
		return fmt.Sprintf("%s %d/%d (%d%%)", e.Stage, e.Done, e.Total, e.Percent)
	case StageFailed:
		return fmt.Sprintf("failed: %s", e.Message)
	default:
		return fmt.Sprintf("%s (%d%%)", e.Stage, e.Percent)
	}
}
