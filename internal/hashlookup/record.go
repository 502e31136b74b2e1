package hashlookup

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
)

// Record is the detailed hashlookup entry for a digest. Every field is optional;
// nil means the service did not return it (or returned it with an unusable type).
type Record struct {
	Trust          *int
	FileName       *string
	Source         *string
	ParentTotal    *int
	KnownMalicious *string // bool, count or source list, kept as text
	ProductCode    json.RawMessage
	Parents        []json.RawMessage

	MD5      string
	SHA1     string
	SHA256   string
	FileSize string
}

// Hashes are the digests and size the service reports for a record.
type Hashes struct {
	MD5      string `json:"md5,omitempty"`
	SHA1     string `json:"sha1,omitempty"`
	SHA256   string `json:"sha256,omitempty"`
	FileSize string `json:"file_size,omitempty"`
}

// Hashes returns the pass-through hash fields of r.
func (r Record) Hashes() Hashes {
	return Hashes{MD5: r.MD5, SHA1: r.SHA1, SHA256: r.SHA256, FileSize: r.FileSize}
}

// recordWire mirrors the field names used by the hashlookup API.
type recordWire struct {
	Trust          json.RawMessage `json:"hashlookup:trust"`
	FileName       json.RawMessage `json:"FileName"`
	Source         json.RawMessage `json:"source"`
	ParentTotal    json.RawMessage `json:"hashlookup:parent-total"`
	KnownMalicious json.RawMessage `json:"KnownMalicious"`
	ProductCode    json.RawMessage `json:"ProductCode"`
	Parents        json.RawMessage `json:"parents"`
	MD5            json.RawMessage `json:"MD5"`
	SHA1           json.RawMessage `json:"SHA-1"`
	SHA256         json.RawMessage `json:"SHA-256"`
	FileSize       json.RawMessage `json:"FileSize"`
}

// UnmarshalJSON decodes a hashlookup response body. The body must be a JSON
// object; individual fields of an unexpected type are dropped rather than
// failing the whole record.
func (r *Record) UnmarshalJSON(data []byte) error {
	if trimmed := bytes.TrimSpace(data); len(trimmed) == 0 || trimmed[0] != '{' {
		return errors.New("hashlookup record is not a JSON object")
	}
	var wire recordWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*r = Record{
		Trust:          decodeInt(wire.Trust),
		FileName:       decodeString(wire.FileName),
		Source:         decodeString(wire.Source),
		ParentTotal:    decodeInt(wire.ParentTotal),
		KnownMalicious: decodeText(wire.KnownMalicious),
		ProductCode:    compact(wire.ProductCode),
		Parents:        decodeList(wire.Parents),
		MD5:            stringValue(wire.MD5),
		SHA1:           stringValue(wire.SHA1),
		SHA256:         stringValue(wire.SHA256),
		FileSize:       stringValue(wire.FileSize),
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// decodeInt accepts numbers and numeric strings.
func decodeInt(raw json.RawMessage) *int {
	if isNull(raw) {
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil
	}
	if i, err := n.Int64(); err == nil {
		v := int(i)
		return &v
	}
	f, err := n.Float64()
	if err != nil {
		return nil
	}
	v := int(math.Round(f))
	return &v
}

// decodeString accepts strings and numbers.
func decodeString(raw json.RawMessage) *string {
	if isNull(raw) {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return &s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		s = n.String()
		return &s
	}
	return nil
}

func stringValue(raw json.RawMessage) string {
	if s := decodeString(raw); s != nil {
		return *s
	}
	return ""
}

// decodeText renders any scalar as text and anything else as compact JSON.
func decodeText(raw json.RawMessage) *string {
	if isNull(raw) {
		return nil
	}
	if s := decodeString(raw); s != nil {
		return s
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		s := strconv.FormatBool(b)
		return &s
	}
	if c := compact(raw); c != nil {
		s := string(c)
		return &s
	}
	return nil
}

func decodeList(raw json.RawMessage) []json.RawMessage {
	if isNull(raw) {
		return nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil
	}
	for i := range list {
		list[i] = compact(list[i])
	}
	return list
}

func compact(raw json.RawMessage) json.RawMessage {
	if isNull(raw) {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil
	}
	return json.RawMessage(buf.Bytes())
}
