package reports

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

const timestampKey = "timestamp"

// Report is a client-submitted JSON object. Values are kept as raw JSON and
// keys keep the order they were submitted in, so a report round-trips
// unchanged.
type Report struct {
	keys   []string
	fields map[string]json.RawMessage
}

// Get returns the raw value stored under key.
func (r Report) Get(key string) (json.RawMessage, bool) {
	v, ok := r.fields[key]
	return v, ok
}

// Set stores v under key. A new key goes last; an existing key keeps its
// position.
func (r *Report) Set(key string, v json.RawMessage) {
	if r.fields == nil {
		r.fields = make(map[string]json.RawMessage)
	}
	if _, ok := r.fields[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.fields[key] = v
}

// Keys returns the field names in order.
func (r Report) Keys() []string {
	return append([]string(nil), r.keys...)
}

func (r Report) Len() int { return len(r.keys) }

// Timestamp returns the raw timestamp string, if the report has one.
func (r Report) Timestamp() (string, bool) {
	raw, ok := r.fields[timestampKey]
	if !ok || string(raw) == "null" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// Time parses the report timestamp into a naive wall-clock value.
func (r Report) Time() (time.Time, bool) {
	s, ok := r.Timestamp()
	if !ok {
		return time.Time{}, false
	}
	t, err := ParseTimestamp(s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (r Report) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		if v := r.fields[k]; len(v) > 0 {
			buf.Write(v)
		} else {
			buf.WriteString("null")
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts a JSON object only. Duplicate keys keep their first
// position and their last value.
func (r *Report) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.Errorf("report must be a JSON object, got %s", bytes.TrimSpace(b))
	}
	out := Report{fields: make(map[string]json.RawMessage)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return errors.Errorf("unexpected object key %v", tok)
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return err
		}
		out.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*r = out
	return nil
}

// Document is the persisted unit: every entry ever submitted plus any other
// top-level keys already present in the file. Entries are kept raw so that
// values which are not objects survive a rewrite.
type Document struct {
	Entries []json.RawMessage

	extra map[string]json.RawMessage
}

// Reports returns the entries that are JSON objects, in order.
func (d Document) Reports() []Report {
	out := make([]Report, 0, len(d.Entries))
	for _, raw := range d.Entries {
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			continue
		}
		var r Report
		if err := json.Unmarshal(trimmed, &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Add appends r as the last entry.
func (d *Document) Add(r Report) error {
	b, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "encode report")
	}
	d.Entries = append(d.Entries, b)
	return nil
}

func (d Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(d.extra)+1)
	for k, v := range d.extra {
		out[k] = v
	}
	entries := d.Entries
	if entries == nil {
		entries = []json.RawMessage{}
	}
	out["reports"] = entries
	return json.Marshal(out)
}

func (d *Document) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	if fields == nil {
		return errors.New("document is null")
	}
	d.Entries = []json.RawMessage{}
	if raw, ok := fields["reports"]; ok {
		if err := json.Unmarshal(raw, &d.Entries); err != nil {
			return errors.Wrap(err, "decode reports")
		}
		if d.Entries == nil {
			d.Entries = []json.RawMessage{}
		}
		delete(fields, "reports")
	}
	d.extra = fields
	return nil
}
