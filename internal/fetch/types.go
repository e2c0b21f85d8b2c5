package fetch

import (
	"strings"
	"time"
)

// Source is where a task's image comes from: a direct URL, or an ordered list
// of alternative topics that must be resolved to an image URL first.
type Source struct {
	URL    string   `json:"url,omitempty"`
	Topics []string `json:"topics,omitempty"`
}

// DirectSource returns a source that is already a fetchable URL.
func DirectSource(rawURL string) Source { return Source{URL: rawURL} }

// TopicSource returns a lookup source trying topics in order.
func TopicSource(topics ...string) Source { return Source{Topics: topics} }

// IsLookup reports whether the source needs topic resolution.
func (s Source) IsLookup() bool { return s.URL == "" && len(s.Topics) > 0 }

func (s Source) String() string {
	if s.IsLookup() {
		return "topic:" + strings.Join(s.Topics, "|")
	}
	return s.URL
}

// Task is one target file and the source that fills it. Target identifies the task.
type Task struct {
	Target string `json:"target"`
	Source Source `json:"source"`
}

type State string

const (
	StateSkipped State = "skipped"
	StateFetched State = "fetched"
	StateFailed  State = "failed"
)

// Outcome is what happened to a single task.
type Outcome struct {
	Target string `json:"target"`
	State  State  `json:"state"`
	URL    string `json:"url,omitempty"`
	Bytes  int64  `json:"bytes,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Result aggregates one batch. Skipped tasks are also counted in Succeeded.
type Result struct {
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
	Bytes     int64     `json:"bytes"`
	Outcomes  []Outcome `json:"outcomes,omitempty"`

	// pause still owed after the last task, see Runner.Settle.
	pause time.Duration
}

func (r *Result) record(o Outcome) {
	switch o.State {
	case StateSkipped:
		r.Succeeded++
		r.Skipped++
	case StateFetched:
		r.Succeeded++
		r.Bytes += o.Bytes
	default:
		r.Failed++
	}
	r.Outcomes = append(r.Outcomes, o)
}

// Merge folds other into r, keeping outcome order.
func (r *Result) Merge(other Result) {
	r.Succeeded += other.Succeeded
	r.Failed += other.Failed
	r.Skipped += other.Skipped
	r.Bytes += other.Bytes
	r.Outcomes = append(r.Outcomes, other.Outcomes...)
	r.pause = other.pause
}

// Written returns the targets of tasks whose file is present after the run.
func (r Result) Written() []string {
	targets := make([]string, 0, r.Succeeded)
	for _, o := range r.Outcomes {
		if o.State != StateFailed {
			targets = append(targets, o.Target)
		}
	}
	return targets
}
