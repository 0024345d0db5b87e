package repositories

import (
	"fmt"
	"strconv"
	"time"

	"github.com/samber/lo"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// record is the schemaless form every entity takes on disk.
// Values are protobuf Struct encoded: times as RFC3339Nano strings,
// counters as decimal strings so uint64 survives the float64 number type.
type record map[string]any

func marshalRecord(r record) ([]byte, error) {
	s, err := structpb.NewStruct(r)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return proto.Marshal(s)
}

func unmarshalRecord(b []byte) (record, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return s.AsMap(), nil
}

func (r record) str(key string) string {
	v, _ := r[key].(string)
	return v
}

func (r record) boolean(key string) bool {
	v, _ := r[key].(bool)
	return v
}

func (r record) strings(key string) []string {
	values, _ := r[key].([]any)
	return lo.FilterMap(values, func(v any, _ int) (string, bool) {
		s, ok := v.(string)
		return s, ok
	})
}

func (r record) uint(key string) (uint64, error) {
	raw := r.str(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}

func (r record) time(key string) (time.Time, error) {
	raw := r.str(key)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, raw)
}

func timeValue(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func uintValue(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func listValue[T ~string](values []T) []any {
	return lo.Map(values, func(v T, _ int) any { return string(v) })
}
