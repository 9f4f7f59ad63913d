package repair

import "fmt"

// Outcome is one itemized result from a repair pass: the atom location it
// concerns and what happened there. Skipped outcomes are requested updates
// the engine could not perform; they surface as warnings in the run
// summary so nothing is dropped silently.
type Outcome struct {
	Location string
	Detail   string
	Skipped  bool
}

// Report accumulates outcomes across every repair pass in order.
type Report struct {
	Outcomes []Outcome
}

// Change records a completed update.
func (r *Report) Change(location, format string, args ...any) {
	r.Outcomes = append(r.Outcomes, Outcome{Location: location, Detail: fmt.Sprintf(format, args...)})
}

// Skip records an update that was requested but not performed.
func (r *Report) Skip(location, format string, args ...any) {
	r.Outcomes = append(r.Outcomes, Outcome{Location: location, Detail: fmt.Sprintf(format, args...), Skipped: true})
}

// Changes returns the completed updates in order.
func (r *Report) Changes() []Outcome {
	return r.filter(false)
}

// Skips returns the reported omissions in order.
func (r *Report) Skips() []Outcome {
	return r.filter(true)
}

func (r *Report) filter(skipped bool) []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Skipped == skipped {
			out = append(out, o)
		}
	}
	return out
}
