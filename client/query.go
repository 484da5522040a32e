package client

import (
	"net/url"
	"reflect"
	"strconv"
	"strings"
)

// Query is an ordered set of query parameters. Nil values, nil pointers and
// empty strings are dropped when encoding, so optional filters never show up
// as "key=".
type Query []QueryParam

// QueryParam is a single key/value pair in a Query.
type QueryParam struct {
	Key   string
	Value any
}

// NewQuery returns an empty query.
func NewQuery() Query {
	return nil
}

// Set appends key=value. Order of insertion is the order of encoding.
func (q Query) Set(key string, value any) Query {
	return append(q, QueryParam{Key: key, Value: value})
}

// Encode renders the query string without the leading '?'.
func (q Query) Encode() string {
	var b strings.Builder
	for _, p := range q {
		rendered, ok := renderQueryValue(p.Value)
		if !ok {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(rendered))
	}
	return b.String()
}

func renderQueryValue(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "", false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.String:
		s := rv.String()
		return s, s != ""
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 32), true
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), true
	default:
		if s, ok := rv.Interface().(interface{ String() string }); ok {
			out := s.String()
			return out, out != ""
		}
		return "", false
	}
}
