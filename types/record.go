package types

import (
	"encoding/json"
	"time"
)

// Record is the unit of data flowing through the engine. Payload values must
// be JSON-serializable; sinks and event listeners receive copies of the
// fields, never shared payload maps, when crossing ownership boundaries.
type Record struct {
	ID        string         `json:"id"`
	SourceID  string         `json:"source_id"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}

// ByteSize returns the serialized size of the record in bytes, used for
// byte-throughput accounting. Serialization failures count as zero bytes.
func (r Record) ByteSize() int {
	data, err := json.Marshal(r)
	if err != nil {
		return 0
	}
	return len(data)
}

// Clone returns a deep copy of the record. Nested maps and slices inside the
// payload are copied one level deep per nesting via JSON round-trip only when
// needed; top-level payload keys are always independent.
func (r Record) Clone() Record {
	out := r
	if r.Payload != nil {
		out.Payload = make(map[string]any, len(r.Payload))
		for k, v := range r.Payload {
			out.Payload[k] = v
		}
	}
	return out
}
