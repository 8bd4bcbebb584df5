package importer

import (
	"time"

	"github.com/maltedev/parts-catalog-importer/internal/models"
)

// State is a step of a single import attempt.
type State string

const (
	StatePending          State = "PENDING"
	StateResolving        State = "RESOLVING"
	StateFetching         State = "FETCHING"
	StateExtracting       State = "EXTRACTING"
	StateNormalizing      State = "NORMALIZING"
	StateCommitted        State = "COMMITTED"
	StateSkippedDuplicate State = "SKIPPED_DUPLICATE"
	StateFailed           State = "FAILED"
)

func (s State) Terminal() bool {
	return s == StateCommitted || s == StateSkippedDuplicate || s == StateFailed
}

// Status values reported to callers.
const (
	StatusCommitted = "committed"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

// Outcome is the result of importing one query. Record is set on commit,
// Existing when the article was already in the catalog, Reason and Error on
// failure and skip.
type Outcome struct {
	Query    string                `json:"query"`
	Status   string                `json:"status"`
	State    State                 `json:"state"`
	URL      string                `json:"url,omitempty"`
	Record   *models.ProductRecord `json:"record,omitempty"`
	Existing *models.ProductRecord `json:"existing,omitempty"`
	Reason   string                `json:"reason,omitempty"`
	Error    string                `json:"error,omitempty"`
	Duration time.Duration         `json:"duration_ns"`

	Err error `json:"-"`
}

// Summary groups batch outcomes by status. Outcomes keeps input order.
type Summary struct {
	Total     int        `json:"total"`
	Committed []*Outcome `json:"committed"`
	Skipped   []*Outcome `json:"skipped"`
	Failed    []*Outcome `json:"failed"`
	Outcomes  []*Outcome `json:"outcomes"`
}

func Summarize(outcomes []*Outcome) *Summary {
	s := &Summary{
		Total:     len(outcomes),
		Committed: []*Outcome{},
		Skipped:   []*Outcome{},
		Failed:    []*Outcome{},
		Outcomes:  outcomes,
	}
	for _, o := range outcomes {
		switch o.Status {
		case StatusCommitted:
			s.Committed = append(s.Committed, o)
		case StatusSkipped:
			s.Skipped = append(s.Skipped, o)
		default:
			s.Failed = append(s.Failed, o)
		}
	}
	return s
}
