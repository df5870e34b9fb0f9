package jsonrpc

//go:generate mockgen -source=serializer.go -destination=mock/mock_serializer.go

import (
	"github.com/cockroachdb/errors"
	jsoniter "github.com/json-iterator/go"
)

// Serializer converts between wire bytes and structured JSON values.
// Deserialize must produce map[string]any for objects and []any for arrays.
type Serializer interface {
	// Serialize encodes a value. It fails with an error marked ErrSerialize
	// when the value is not representable.
	Serialize(v any) ([]byte, error)

	// Deserialize decodes bytes. It fails with an error marked ErrParse on
	// malformed input.
	Deserialize(data []byte) (any, error)
}

// JSONSerializer is the default Serializer backed by json-iterator.
// Numbers decode as json.Number so identifiers and integers keep their exact text.
type JSONSerializer struct {
	api jsoniter.API
}

// NewJSONSerializer creates a JSONSerializer.
func NewJSONSerializer() *JSONSerializer {
	return &JSONSerializer{
		api: jsoniter.Config{
			EscapeHTML:             true,
			SortMapKeys:            true,
			ValidateJsonRawMessage: true,
			UseNumber:              true,
		}.Froze(),
	}
}

// Serialize implements Serializer.
func (s *JSONSerializer) Serialize(v any) ([]byte, error) {
	data, err := s.api.Marshal(v)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "serialize"), ErrSerialize)
	}
	return data, nil
}

// Deserialize implements Serializer. Trailing bytes after the first value are rejected.
func (s *JSONSerializer) Deserialize(data []byte) (any, error) {
	var v any
	if err := s.api.Unmarshal(data, &v); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "deserialize"), ErrParse)
	}
	return v, nil
}

// Decode decodes data into a typed target.
func (s *JSONSerializer) Decode(data []byte, target any) error {
	if err := s.api.Unmarshal(data, target); err != nil {
		return errors.Mark(errors.Wrap(err, "decode"), ErrParse)
	}
	return nil
}
