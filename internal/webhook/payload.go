package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Payload is the top-level webhook body. Entries are kept raw so that one
// malformed entry or record can be skipped without rejecting the batch.
type Payload struct {
	Object string            `json:"object"`
	Entry  []json.RawMessage `json:"entry"`
}

// Skip describes a record that was not turned into an event.
type Skip struct {
	Entry  int
	Reason string
}

// Decode parses a webhook body. Only a body that is not a JSON object, or an
// entry field that is not an array, is an error.
func Decode(body []byte) (*Payload, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("webhook body is not a JSON object")
	}
	var p Payload
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return nil, fmt.Errorf("failed to parse webhook body: %w", err)
	}
	return &p, nil
}

// HasEntries reports whether the payload carried an entry list.
func (p *Payload) HasEntries() bool {
	return p.Entry != nil
}

// fields is one JSON object with its members left raw. Accessors decode a
// member only when it has the expected JSON type and report the zero value
// otherwise, so one odd field never costs the whole record.
type fields map[string]json.RawMessage

func decodeObject(raw json.RawMessage) (fields, bool) {
	if !isObject(raw) {
		return nil, false
	}
	var f fields
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, false
	}
	return f, true
}

// str returns a string or numeric member as text.
func (f fields) str(key string) string {
	raw, ok := f[key]
	if !ok {
		return ""
	}
	var s flexString
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return string(s)
}

func (f fields) object(key string) fields {
	obj, _ := decodeObject(f[key])
	return obj
}

// flag accepts true and "true".
func (f fields) flag(key string) bool {
	raw, ok := f[key]
	if !ok {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	return f.str(key) == "true"
}

func (f fields) list(key string) ([]json.RawMessage, bool) {
	raw, ok := f[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, true
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	return items, true
}

// Events flattens the payload in arrival order: for every entry its changes
// come first, then its messaging records. Records that carry no comment or
// message (reads, deliveries, postbacks, echoes of the page's own messages)
// are returned as skips and never reach the audit log.
func (p *Payload) Events() ([]Event, []Skip) {
	var events []Event
	var skips []Skip

	for i, raw := range p.Entry {
		e, ok := decodeObject(raw)
		if !ok {
			skips = append(skips, Skip{Entry: i, Reason: "malformed entry"})
			continue
		}

		changes, ok := e.list("changes")
		if !ok {
			skips = append(skips, Skip{Entry: i, Reason: "malformed changes"})
		}
		for _, rc := range changes {
			ev, reason := decodeChange(rc)
			if ev == nil {
				skips = append(skips, Skip{Entry: i, Reason: reason})
				continue
			}
			events = append(events, ev)
		}

		records, ok := e.list("messaging")
		if !ok {
			skips = append(skips, Skip{Entry: i, Reason: "malformed messaging"})
		}
		for _, rm := range records {
			ev, reason := decodeMessaging(rm)
			if ev == nil {
				skips = append(skips, Skip{Entry: i, Reason: reason})
				continue
			}
			events = append(events, ev)
		}
	}
	return events, skips
}

func decodeChange(raw json.RawMessage) (Event, string) {
	c, ok := decodeObject(raw)
	if !ok {
		return nil, "malformed change"
	}
	if field := c.str("field"); field != "comments" {
		return nil, "unsupported change field " + strconv.Quote(field)
	}
	v, ok := decodeObject(c["value"])
	if !ok {
		return nil, "comment change without value"
	}
	return CommentEvent{
		CommentID:  commentID(v),
		Text:       firstNonEmpty(v.str("text"), v.str("message")),
		AuthorName: authorName(v),
		PostTitle:  firstNonEmpty(v.object("media").str("caption"), DefaultPostTitle),
	}, ""
}

func decodeMessaging(raw json.RawMessage) (Event, string) {
	m, ok := decodeObject(raw)
	if !ok {
		return nil, "malformed messaging record"
	}
	msg := m.object("message")
	if msg == nil {
		return nil, "messaging record without message"
	}
	if msg.flag("is_echo") {
		return nil, "echo of page message"
	}
	return MessageEvent{
		SenderID: m.object("sender").str("id"),
		Text:     msg.str("text"),
	}, ""
}

// commentID: value.id, then value.comment_id, then value.comment.id.
func commentID(v fields) string {
	return firstNonEmpty(v.str("id"), v.str("comment_id"), v.object("comment").str("id"))
}

// authorName: value.from.username, then value.username, then value.from_name,
// then DefaultAuthorName.
func authorName(v fields) string {
	return firstNonEmpty(v.object("from").str("username"), v.str("username"), v.str("from_name"), DefaultAuthorName)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// flexString accepts both JSON strings and numbers; platform ids show up as
// either depending on the API version.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = flexString(n.String())
	return nil
}
