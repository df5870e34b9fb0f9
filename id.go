package jsonrpc

import (
	"encoding/json"
	"strconv"
)

type idKind uint8

const (
	idUndefined idKind = iota
	idNull
	idString
	idNumber
)

// ID represents a request or response identifier.
// The zero value is undefined, which marks a notification on requests and is
// never written to the wire on responses.
type ID struct {
	kind idKind
	str  string      // str is the value of a string identifier.
	num  json.Number // num keeps the textual form of a numeric identifier.
}

// StringID returns a string identifier.
func StringID(s string) ID {
	return ID{kind: idString, str: s}
}

// NumberID returns a numeric identifier with the given JSON text.
func NumberID(n json.Number) ID {
	return ID{kind: idNumber, num: n}
}

// IntID returns a numeric identifier.
func IntID(i int64) ID {
	return NumberID(json.Number(strconv.FormatInt(i, 10)))
}

// NullID returns the null identifier used by error responses whose request id is unknown.
func NullID() ID {
	return ID{kind: idNull}
}

// idFromRaw converts a deserialized JSON value into an identifier.
// It returns false when the value is neither a string nor a number.
func idFromRaw(raw any) (ID, bool) {
	switch v := raw.(type) {
	case string:
		return StringID(v), true
	case json.Number:
		return NumberID(v), true
	case float64:
		return NumberID(json.Number(strconv.FormatFloat(v, 'g', -1, 64))), true
	case float32:
		return NumberID(json.Number(strconv.FormatFloat(float64(v), 'g', -1, 32))), true
	case int:
		return IntID(int64(v)), true
	case int32:
		return IntID(int64(v)), true
	case int64:
		return IntID(v), true
	case uint64:
		return NumberID(json.Number(strconv.FormatUint(v, 10))), true
	}
	return ID{}, false
}

// IsUndefined reports whether the identifier is absent.
func (id ID) IsUndefined() bool { return id.kind == idUndefined }

// IsNull reports whether the identifier is the JSON null.
func (id ID) IsNull() bool { return id.kind == idNull }

// IsString reports whether the identifier is a string.
func (id ID) IsString() bool { return id.kind == idString }

// IsNumber reports whether the identifier is a number.
func (id ID) IsNumber() bool { return id.kind == idNumber }

// Value returns the identifier as a structured JSON value:
// a string, a json.Number, or nil for null and undefined identifiers.
func (id ID) Value() any {
	switch id.kind {
	case idString:
		return id.str
	case idNumber:
		return id.num
	}
	return nil
}

// String returns a printable form of the identifier.
func (id ID) String() string {
	switch id.kind {
	case idString:
		return strconv.Quote(id.str)
	case idNumber:
		return id.num.String()
	case idNull:
		return "null"
	}
	return "undefined"
}

// MarshalJSON implements json.Marshaler.
// Undefined identifiers marshal as null; callers omit them before encoding.
func (id ID) MarshalJSON() ([]byte, error) {
	switch id.kind {
	case idString:
		return json.Marshal(id.str)
	case idNumber:
		return []byte(id.num), nil
	}
	return []byte("null"), nil
}

// wire returns a pointer suitable for an omitempty field: nil when undefined.
func (id ID) wire() *ID {
	if id.IsUndefined() {
		return nil
	}
	return &id
}
