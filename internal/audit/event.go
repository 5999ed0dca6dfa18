package audit

import (
	"encoding/json"
	"time"
)

// ISO8601Format is the time format used for audit event timestamps.
const ISO8601Format = time.RFC3339

// eventJSON is the wire form of AuditEvent. Optional strings are pointers so
// empty values are omitted rather than written as "".
type eventJSON struct {
	Timestamp       string            `json:"timestamp"`
	RunID           RunID             `json:"runId"`
	EventType       EventType         `json:"eventType"`
	Status          OperationStatus   `json:"status"`
	Group           *string           `json:"group,omitempty"`
	SourcePath      *string           `json:"sourcePath,omitempty"`
	DestinationPath *string           `json:"destinationPath,omitempty"`
	ErrorDetails    *ErrorDetails     `json:"errorDetails,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// MarshalJSON writes the timestamp in ISO 8601 and omits empty optional fields.
func (e AuditEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventJSON{
		Timestamp:       e.Timestamp.Format(ISO8601Format),
		RunID:           e.RunID,
		EventType:       e.EventType,
		Status:          e.Status,
		Group:           optional(e.Group),
		SourcePath:      optional(e.SourcePath),
		DestinationPath: optional(e.DestinationPath),
		ErrorDetails:    e.ErrorDetails,
		Metadata:        e.Metadata,
	})
}

// UnmarshalJSON parses the form written by MarshalJSON.
func (e *AuditEvent) UnmarshalJSON(data []byte) error {
	var ej eventJSON
	if err := json.Unmarshal(data, &ej); err != nil {
		return err
	}

	t, err := time.Parse(ISO8601Format, ej.Timestamp)
	if err != nil {
		return err
	}

	*e = AuditEvent{
		Timestamp:       t,
		RunID:           ej.RunID,
		EventType:       ej.EventType,
		Status:          ej.Status,
		Group:           deref(ej.Group),
		SourcePath:      deref(ej.SourcePath),
		DestinationPath: deref(ej.DestinationPath),
		ErrorDetails:    ej.ErrorDetails,
		Metadata:        ej.Metadata,
	}
	return nil
}

// UnmarshalJSONLine unmarshals one line of the log.
func UnmarshalJSONLine(data []byte) (*AuditEvent, error) {
	var e AuditEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
