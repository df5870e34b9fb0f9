package jsonrpc

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Canonical renders a structured JSON value as a deterministic string.
// Mappings become key-sorted tuples of (key, value) pairs and sequences become
// fixed tuples, so two values are equal exactly when their canonical forms are.
// It backs Request and Response equality and must not be used to produce wire output.
func Canonical(v any) string {
	var b strings.Builder
	writeCanonical(&b, v)
	return b.String()
}

func writeCanonical(b *strings.Builder, v any) {
	switch x := v.(type) {
	case nil:
		b.WriteString("n")
	case bool:
		if x {
			b.WriteString("t")
		} else {
			b.WriteString("f")
		}
	case string:
		b.WriteString("s")
		b.WriteString(strconv.Quote(x))
	case json.Number:
		b.WriteString("d")
		b.WriteString(canonicalNumber(string(x)))
	case float64:
		b.WriteString("d")
		b.WriteString(canonicalNumber(strconv.FormatFloat(x, 'g', -1, 64)))
	case int:
		b.WriteString("d")
		b.WriteString(strconv.Itoa(x))
	case int64:
		b.WriteString("d")
		b.WriteString(strconv.FormatInt(x, 10))
	case []any:
		writeTuple(b, len(x), func(i int) any { return x[i] })
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("{")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString("(")
			b.WriteString(strconv.Quote(k))
			b.WriteString(",")
			writeCanonical(b, x[k])
			b.WriteString(")")
		}
		b.WriteString("}")
	default:
		writeReflect(b, v)
	}
}

func writeTuple(b *strings.Builder, n int, at func(i int) any) {
	b.WriteString("(")
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		writeCanonical(b, at(i))
	}
	b.WriteString(")")
}

// writeReflect handles typed slices, maps and numbers produced by application code.
func writeReflect(b *strings.Builder, v any) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		writeTuple(b, rv.Len(), func(i int) any { return rv.Index(i).Interface() })
		return
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		writeCanonical(b, m)
		return
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		b.WriteString("d")
		b.WriteString(strconv.FormatInt(rv.Int(), 10))
		return
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		b.WriteString("d")
		b.WriteString(strconv.FormatUint(rv.Uint(), 10))
		return
	case reflect.Float32:
		b.WriteString("d")
		b.WriteString(canonicalNumber(strconv.FormatFloat(rv.Float(), 'g', -1, 32)))
		return
	}
	b.WriteString("?")
	b.WriteString(fmt.Sprintf("%#v", v))
}

// canonicalNumber normalizes numeric text so 5, 5.0 and 5e0 compare equal.
func canonicalNumber(s string) string {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return strconv.FormatInt(i, 10)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return s
	}
	if f == float64(int64(f)) && f >= -1<<53 && f <= 1<<53 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
