package domain

import "fmt"

// Direction is which way records flow.
type Direction string

const (
	TabularToDocument Direction = "tabular->document"
	DocumentToTabular Direction = "document->tabular"
)

// ParseDirection accepts the CLI spellings of a direction.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "sql-to-mongo", "tabular-to-document", string(TabularToDocument):
		return TabularToDocument, nil
	case "mongo-to-sql", "document-to-tabular", string(DocumentToTabular):
		return DocumentToTabular, nil
	}
	return "", fmt.Errorf("unknown direction: %q", s)
}

// CollisionPolicy decides what happens when the target entity already exists.
type CollisionPolicy string

const (
	PolicyAsk       CollisionPolicy = "ask"       // interactive decision
	PolicyOverwrite CollisionPolicy = "overwrite" // drop and rewrite
	PolicySkip      CollisionPolicy = "skip"      // leave the target alone
)

// ParsePolicy validates a policy string; empty means ask.
func ParsePolicy(s string) (CollisionPolicy, error) {
	switch CollisionPolicy(s) {
	case "":
		return PolicyAsk, nil
	case PolicyAsk, PolicyOverwrite, PolicySkip:
		return CollisionPolicy(s), nil
	}
	return "", fmt.Errorf("unknown collision policy: %q", s)
}

// EntityRef points at a source: a named entity or an explicit query.
type EntityRef struct {
	Name  string `json:"name,omitempty"`
	Query string `json:"query,omitempty"`
}

// Label is the display name of the reference.
func (r EntityRef) Label() string {
	if r.Query != "" && r.Name == "" {
		return "custom_query"
	}
	return r.Name
}

// ConversionJob converts one source entity into one target entity.
// It is passed by value and never mutated after submission.
type ConversionJob struct {
	Direction Direction       `json:"direction"`
	Source    EntityRef       `json:"source"`
	Target    string          `json:"target"`
	Policy    CollisionPolicy `json:"policy"`
}

// Validate checks the job is complete.
func (j ConversionJob) Validate() error {
	switch {
	case j.Direction != TabularToDocument && j.Direction != DocumentToTabular:
		return fmt.Errorf("invalid direction %q", j.Direction)
	case j.Source.Name == "" && j.Source.Query == "":
		return fmt.Errorf("source entity or query is required")
	case j.Source.Query != "" && j.Direction == DocumentToTabular:
		return fmt.Errorf("explicit queries are only supported for tabular sources")
	case j.Target == "":
		return fmt.Errorf("target name is required")
	}
	return nil
}

// EntityPair maps one source entity to its target name.
type EntityPair struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// BatchJob converts every entity of a source store under one policy.
type BatchJob struct {
	Direction Direction       `json:"direction"`
	Pairs     []EntityPair    `json:"pairs"`
	Policy    CollisionPolicy `json:"policy"`
	// IsolateFailures records a failing entity and moves on instead of
	// halting the whole batch.
	IsolateFailures bool `json:"isolateFailures,omitempty"`
}

// Status is the terminal state of one entity conversion.
type Status string

const (
	StatusConverted Status = "converted"
	StatusSkipped   Status = "skipped"
	StatusAborted   Status = "aborted"
	StatusEmpty     Status = "empty"
	StatusFailed    Status = "failed"
)

// ConversionResult is the outcome of converting one entity.
type ConversionResult struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	Status       Status `json:"status"`
	Written      int    `json:"written"`
	SkippedEmpty int    `json:"skippedEmpty"`
	Err          error  `json:"-"`
	Error        string `json:"error,omitempty"`
}

// Fail marks the result failed and records err.
func (r *ConversionResult) Fail(err error) {
	r.Status = StatusFailed
	r.Err = err
	if err != nil {
		r.Error = err.Error()
	}
}

// BatchResult aggregates a batch run.
type BatchResult struct {
	Converted int                `json:"converted"`
	Skipped   int                `json:"skipped"`
	Failed    int                `json:"failed"`
	Results   []ConversionResult `json:"results"`
}
