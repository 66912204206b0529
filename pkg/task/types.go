// Package task defines the typed payloads callers submit against an
// external system and the canonical result envelope every handler's
// native output is normalized into.
package task

import "time"

// Type identifies one executable task kind within an adapter
// (e.g. "execute_query", "send_message").
type Type string

// ResultShape tags which payload of the canonical envelope is populated
type ResultShape string

const (
	// ShapeTable is ordered rows of named string columns
	ShapeTable ResultShape = "table"
	// ShapeText is a single free-text payload
	ShapeText ResultShape = "text"
	// ShapeLogs is table-shaped log output
	ShapeLogs ResultShape = "logs"
	// ShapeCommandOutput is an ordered list of (command, output) pairs
	ShapeCommandOutput ResultShape = "command_output"
	// ShapeUnknown is an empty envelope
	ShapeUnknown ResultShape = "unknown"
)

// TimeRange is a half-open interval [GEq, Lt) in epoch seconds.
// Callers construct it well-formed; the core does not validate the
// ordering, so handlers treat out-of-order ranges defensively.
type TimeRange struct {
	GEq int64 `json:"time_geq"`
	Lt  int64 `json:"time_lt"`
}

// Start returns the inclusive lower bound as a time.Time
func (tr TimeRange) Start() time.Time { return time.Unix(tr.GEq, 0).UTC() }

// End returns the exclusive upper bound as a time.Time
func (tr TimeRange) End() time.Time { return time.Unix(tr.Lt, 0).UTC() }

// Payload is the discriminated task payload union. Type selects the
// variant; exactly one variant field is populated.
type Payload struct {
	Type Type `json:"type"`

	Query   *QueryPayload   `json:"query,omitempty"`
	Logs    *LogsPayload    `json:"logs,omitempty"`
	Message *MessagePayload `json:"message,omitempty"`
	Command *CommandPayload `json:"command,omitempty"`
}

// QueryPayload carries parameters for query-execution tasks
type QueryPayload struct {
	Query          string `json:"query"`
	Database       string `json:"database,omitempty"`
	Limit          int64  `json:"limit,omitempty"`
	Offset         int64  `json:"offset,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// LogsPayload carries parameters for log-search tasks
type LogsPayload struct {
	Query          string `json:"query"`
	Limit          int64  `json:"limit,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// MessagePayload carries parameters for chat-message tasks
type MessagePayload struct {
	Channel        string `json:"channel"`
	Text           string `json:"text"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// CommandPayload carries parameters for command-style tasks against a
// named target resource (topic, bucket, consumer group)
type CommandPayload struct {
	Target         string   `json:"target"`
	Args           []string `json:"args,omitempty"`
	TimeoutSeconds int      `json:"timeout_seconds,omitempty"`
}

// Timeout returns the variant's declared timeout, or zero when the
// payload leaves it unset and the executor default applies.
func (p *Payload) Timeout() time.Duration {
	if p == nil {
		return 0
	}
	var secs int
	switch {
	case p.Query != nil:
		secs = p.Query.TimeoutSeconds
	case p.Logs != nil:
		secs = p.Logs.TimeoutSeconds
	case p.Message != nil:
		secs = p.Message.TimeoutSeconds
	case p.Command != nil:
		secs = p.Command.TimeoutSeconds
	}
	if secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// QueryText returns the effective query or target text of the payload,
// used for audit logging. Never secret material.
func (p *Payload) QueryText() string {
	if p == nil {
		return ""
	}
	switch {
	case p.Query != nil:
		return p.Query.Query
	case p.Logs != nil:
		return p.Logs.Query
	case p.Message != nil:
		return p.Message.Channel
	case p.Command != nil:
		return p.Command.Target
	}
	return ""
}

// Field is one named string column value within a row
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Row is an ordered list of fields
type Row struct {
	Fields []Field `json:"fields"`
}

// Table is the canonical tabular payload. Every field value is
// stringified regardless of native type so the envelope never encodes
// arbitrary types.
type Table struct {
	RawQuery string `json:"raw_query,omitempty"`
	Rows     []Row  `json:"rows"`
	Total    int64  `json:"total"`
	Limit    int64  `json:"limit,omitempty"`
	Offset   int64  `json:"offset,omitempty"`
}

// CommandOutput is one (command, output) pair
type CommandOutput struct {
	Command string `json:"command"`
	Output  string `json:"output"`
}

// Result is the canonical result envelope. Shape tags which payload is
// populated; a Result is produced once per execution and never mutated.
type Result struct {
	Shape ResultShape `json:"shape"`

	Table    *Table          `json:"table,omitempty"`
	Text     string          `json:"text,omitempty"`
	Logs     *Table          `json:"logs,omitempty"`
	Commands []CommandOutput `json:"commands,omitempty"`
}

// Raw is a handler's native return value before normalization. Handlers
// populate the field matching their TaskSpec's result shape; the
// executor stringifies and wraps it into a Result.
type Raw struct {
	Table    *RawTable
	Text     string
	Commands []CommandOutput
}

// RawTable is native tabular output: typed cells plus a handler-supplied
// total count. The executor does not recompute Total from the row count.
type RawTable struct {
	RawQuery string
	Columns  []string
	Rows     [][]interface{}
	Total    int64
	Limit    int64
	Offset   int64
}
