package jsonrpc_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	jsonrpc "github.com/xizhibei/go-jsonrpc"
)

func decode(t *testing.T, s string) any {
	t.Helper()
	v, err := jsonrpc.NewJSONSerializer().Deserialize([]byte(s))
	require.NoError(t, err)
	return v
}

func TestRequestFromJSON_ValidShapes(t *testing.T) {
	cases := []struct {
		name   string
		input  string
		kind   jsonrpc.ParamsKind
		notify bool
		id     string
	}{
		{"no params no id", `{"jsonrpc":"2.0","method":"ping"}`, jsonrpc.ParamsNone, true, "undefined"},
		{"no params with id", `{"jsonrpc":"2.0","method":"ping","id":1}`, jsonrpc.ParamsNone, false, "1"},
		{"positional", `{"jsonrpc":"2.0","method":"add","params":[2,3],"id":7}`, jsonrpc.ParamsPositional, false, "7"},
		{"named", `{"jsonrpc":"2.0","method":"add","params":{"a":2},"id":"abc"}`, jsonrpc.ParamsNamed, false, `"abc"`},
		{"positional notification", `{"jsonrpc":"2.0","method":"log","params":[]}`, jsonrpc.ParamsPositional, true, "undefined"},
		{"fractional id", `{"jsonrpc":"2.0","method":"ping","id":1.5}`, jsonrpc.ParamsNone, false, "1.5"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, rpcErr := jsonrpc.RequestFromJSON(decode(t, tc.input))
			require.Nil(t, rpcErr)
			require.NotNil(t, req)
			assert.Equal(t, tc.kind, req.ParamsKind())
			assert.Equal(t, tc.notify, req.IsNotification())
			assert.Equal(t, tc.id, req.ID().String())
		})
	}
}

func TestRequestFromJSON_Params(t *testing.T) {
	req, rpcErr := jsonrpc.RequestFromJSON(decode(t, `{"jsonrpc":"2.0","method":"add","params":[2,3],"id":7}`))
	require.Nil(t, rpcErr)
	assert.Equal(t, "add", req.Method())
	assert.Equal(t, []any{json.Number("2"), json.Number("3")}, req.Args())
	assert.Nil(t, req.Kwargs())

	req, rpcErr = jsonrpc.RequestFromJSON(decode(t, `{"jsonrpc":"2.0","method":"add","params":{"a":1,"b":"x"}}`))
	require.Nil(t, rpcErr)
	assert.Nil(t, req.Args())
	assert.Equal(t, map[string]any{"a": json.Number("1"), "b": "x"}, req.Kwargs())
}

func TestRequestFromJSON_InvalidShapes(t *testing.T) {
	cases := map[string]string{
		"scalar":            `42`,
		"null":              `null`,
		"string":            `"ping"`,
		"empty array":       `[]`,
		"nested array":      `[{"jsonrpc":"2.0","method":"ping"}]`,
		"missing tag":       `{"method":"ping","id":1}`,
		"wrong tag":         `{"jsonrpc":"1.0","method":"ping","id":1}`,
		"numeric tag":       `{"jsonrpc":2.0,"method":"ping","id":1}`,
		"missing method":    `{"jsonrpc":"2.0","id":1}`,
		"empty method":      `{"jsonrpc":"2.0","method":"","id":1}`,
		"numeric method":    `{"jsonrpc":"2.0","method":1,"id":1}`,
		"reserved method":   `{"jsonrpc":"2.0","method":"rpc.discover","id":1}`,
		"scalar params":     `{"jsonrpc":"2.0","method":"ping","params":"x","id":1}`,
		"null params":       `{"jsonrpc":"2.0","method":"ping","params":null,"id":1}`,
		"null id":           `{"jsonrpc":"2.0","method":"ping","id":null}`,
		"bool id":           `{"jsonrpc":"2.0","method":"ping","id":true}`,
		"object id":         `{"jsonrpc":"2.0","method":"ping","id":{}}`,
		"unknown key":       `{"jsonrpc":"2.0","method":"ping","id":1,"extra":0}`,
		"response envelope": `{"jsonrpc":"2.0","result":1,"id":1}`,
	}

	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			raw := decode(t, input)
			req, rpcErr := jsonrpc.RequestFromJSON(raw)
			assert.Nil(t, req)
			require.NotNil(t, rpcErr)
			assert.Equal(t, jsonrpc.CodeInvalidRequest, rpcErr.Code)
			assert.Equal(t, "Invalid Request", rpcErr.Message)
			assert.Equal(t, raw, rpcErr.Data)
		})
	}
}

func TestRequest_RoundTrip(t *testing.T) {
	ids := []jsonrpc.ID{{}, jsonrpc.IntID(7), jsonrpc.StringID("a-1"), jsonrpc.NumberID("2.5")}

	for _, id := range ids {
		build := []func() (*jsonrpc.Request, error){
			func() (*jsonrpc.Request, error) { return jsonrpc.NewRequest("ping", id) },
			func() (*jsonrpc.Request, error) {
				return jsonrpc.NewPositionalRequest("add", []any{json.Number("2"), "x", nil, []any{true}}, id)
			},
			func() (*jsonrpc.Request, error) {
				return jsonrpc.NewNamedRequest("add", map[string]any{"a": json.Number("1"), "b": map[string]any{"c": false}}, id)
			},
			func() (*jsonrpc.Request, error) { return jsonrpc.NewPositionalRequest("empty", nil, id) },
		}

		for _, b := range build {
			req, err := b()
			require.NoError(t, err)

			// Structured wire form
			back, rpcErr := jsonrpc.RequestFromJSON(req.Wire())
			require.Nil(t, rpcErr)
			assert.True(t, req.Equal(back), "%s", req)

			// Through bytes
			s := jsonrpc.NewJSONSerializer()
			data, err := s.Serialize(req.Wire())
			require.NoError(t, err)
			back, rpcErr = jsonrpc.RequestFromJSON(decode(t, string(data)))
			require.Nil(t, rpcErr)
			assert.True(t, req.Equal(back), "%s", data)
		}
	}
}

func TestRequest_Constructors(t *testing.T) {
	_, err := jsonrpc.NewRequest("", jsonrpc.IntID(1))
	assert.Error(t, err)

	_, err = jsonrpc.NewRequest("rpc.internal", jsonrpc.IntID(1))
	assert.Error(t, err)

	_, err = jsonrpc.NewRequest("ping", jsonrpc.NullID())
	assert.Error(t, err)

	req, err := jsonrpc.NewNamedRequest("ping", nil, jsonrpc.ID{})
	require.NoError(t, err)
	assert.True(t, req.IsNotification())
	assert.Equal(t, map[string]any{}, req.Kwargs())
}

func TestRequest_Equal(t *testing.T) {
	a, _ := jsonrpc.NewNamedRequest("m", map[string]any{"x": json.Number("1"), "y": "z"}, jsonrpc.IntID(1))
	b, _ := jsonrpc.NewNamedRequest("m", map[string]any{"y": "z", "x": json.Number("1.0")}, jsonrpc.NumberID("1"))
	c, _ := jsonrpc.NewNamedRequest("m", map[string]any{"x": json.Number("1"), "y": "z"}, jsonrpc.StringID("1"))
	d, _ := jsonrpc.NewPositionalRequest("m", []any{json.Number("1"), "z"}, jsonrpc.IntID(1))

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Key(), b.Key())
	assert.False(t, a.Equal(c), "string and numeric ids differ")
	assert.False(t, a.Equal(d), "named and positional params differ")

	set := map[string]*jsonrpc.Request{}
	for _, r := range []*jsonrpc.Request{a, b, c, d} {
		set[r.Key()] = r
	}
	assert.Len(t, set, 3)
}
