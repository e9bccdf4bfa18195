package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// NamespaceSeparator joins the segments of a namespace.
const NamespaceSeparator = ":"

// KeySerializer builds cache namespaces from a repository name and the
// values that scope it, such as an account id or a playlist id.
type KeySerializer interface {
	SerializeKey(name string, parts ...any) string
}

// defaultKeySerializer renders parts with reflection. Empty parts are
// skipped so that an unscoped namespace is just the repository name.
type defaultKeySerializer struct{}

// NewDefaultKeySerializer creates a new instance of the default key serializer.
func NewDefaultKeySerializer() KeySerializer {
	return &defaultKeySerializer{}
}

// SerializeKey builds a namespace from name and parts.
func (s *defaultKeySerializer) SerializeKey(name string, parts ...any) string {
	segments := []string{name}
	for _, part := range parts {
		if v := s.serializeValue(part); v != "" {
			segments = append(segments, v)
		}
	}
	return strings.Join(segments, NamespaceSeparator)
}

func (s *defaultKeySerializer) serializeValue(v any) string {
	if v == nil {
		return ""
	}
	if str, ok := v.(fmt.Stringer); ok {
		return str.String()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return fmt.Sprintf("%v", v)
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return ""
		}
		return s.serializeValue(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = s.serializeValue(rv.Index(i).Interface())
		}
		return "[" + strings.Join(parts, ",") + "]"
	case reflect.Map:
		pairs := make([]string, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			pairs = append(pairs, s.serializeValue(iter.Key().Interface())+"="+s.serializeValue(iter.Value().Interface()))
		}
		slices.Sort(pairs)
		return "{" + strings.Join(pairs, ",") + "}"
	}
	return s.jsonFallback(v)
}

func (s *defaultKeySerializer) jsonFallback(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%T", v)
	}
	return string(data)
}
