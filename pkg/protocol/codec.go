package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FramingError describes a single delimited segment that could not be parsed
// as a JSON object. It poisons only that segment; decoding continues with the
// next one.
type FramingError struct {
	Segment []byte
	Err     error
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("malformed frame %q: %v", e.Segment, e.Err)
}

func (e *FramingError) Unwrap() error { return e.Err }

// Encode serializes a message to compact JSON followed by the newline
// delimiter. JSON string escaping guarantees the delimiter cannot appear
// inside the frame.
func Encode(m Message) ([]byte, error) {
	if m.Payload == nil {
		m.Payload = map[string]any{}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Type, err)
	}
	return append(data, '\n'), nil
}

// Decode scans buf for newline-delimited JSON objects. It returns the decoded
// messages, the unconsumed trailing bytes (a partial frame awaiting more
// input), and one FramingError per malformed segment. Empty or
// whitespace-only segments are skipped silently.
//
// Decode holds no state of its own: callers append newly arrived bytes to the
// returned remainder and call again, which makes framing independent of chunk
// boundaries.
func Decode(buf []byte) (msgs []Message, rest []byte, errs []error) {
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			return msgs, buf, errs
		}
		segment := buf[:i]
		buf = buf[i+1:]

		trimmed := bytes.TrimSpace(segment)
		if len(trimmed) == 0 {
			continue
		}
		if trimmed[0] != '{' {
			errs = append(errs, &FramingError{
				Segment: append([]byte(nil), segment...),
				Err:     fmt.Errorf("not a JSON object"),
			})
			continue
		}

		var m Message
		if err := json.Unmarshal(trimmed, &m); err != nil {
			errs = append(errs, &FramingError{
				Segment: append([]byte(nil), segment...),
				Err:     err,
			})
			continue
		}
		if m.Payload == nil {
			m.Payload = map[string]any{}
		}
		msgs = append(msgs, m)
	}
}
