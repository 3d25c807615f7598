package frame

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Marshal encodes t column by column as a protobuf Struct:
//
//	{rows: n, columns: [{name, kind, values: [...]}, ...]}
//
// Ints travel as doubles and are restored from the column kind, times travel
// as RFC 3339 strings in UTC.
func Marshal(t *Table) ([]byte, error) {
	columns := make([]any, 0, len(t.names))
	for _, name := range t.names {
		kind := t.Kind(name)
		src := t.values[name]
		values := make([]any, len(src))
		for i, v := range src {
			encoded, err := encodeValue(v)
			if err != nil {
				return nil, fmt.Errorf("column %q row %d: %w", name, i, err)
			}
			values[i] = encoded
		}
		columns = append(columns, map[string]any{
			"name":   name,
			"kind":   string(kind),
			"values": values,
		})
	}
	s, err := structpb.NewStruct(map[string]any{
		"rows":    t.rows,
		"columns": columns,
	})
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

// Unmarshal reverses Marshal
func Unmarshal(b []byte) (*Table, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	fields := s.GetFields()
	t := New()
	t.rows = int(fields["rows"].GetNumberValue())

	for i, raw := range fields["columns"].GetListValue().GetValues() {
		col := raw.GetStructValue().GetFields()
		name := col["name"].GetStringValue()
		if name == "" {
			return nil, fmt.Errorf("column %d has no name", i)
		}
		kind := Kind(col["kind"].GetStringValue())
		encoded := col["values"].GetListValue().GetValues()
		if len(encoded) != t.rows {
			return nil, fmt.Errorf("column %q has %d values, table has %d rows", name, len(encoded), t.rows)
		}
		values := make([]any, len(encoded))
		for j, v := range encoded {
			decoded, err := decodeValue(kind, v)
			if err != nil {
				return nil, fmt.Errorf("column %q row %d: %w", name, j, err)
			}
			values[j] = decoded
		}
		if _, dup := t.values[name]; dup {
			return nil, fmt.Errorf("column %q appears twice", name)
		}
		t.names = append(t.names, name)
		t.values[name] = values
	}
	return t, nil
}

func encodeValue(v any) (any, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano), nil
	case nil, int64, float64, bool, string, []any, map[string]any:
		return v, nil
	}
	return nil, fmt.Errorf("unsupported value type %T", v)
}

func decodeValue(kind Kind, v *structpb.Value) (any, error) {
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return nil, nil
	}
	switch kind {
	case KindInt:
		return int64(v.GetNumberValue()), nil
	case KindTime:
		ts, err := time.Parse(time.RFC3339Nano, v.GetStringValue())
		if err != nil {
			return nil, err
		}
		return ts, nil
	case KindJSON:
		return normalizeValue(v.AsInterface()), nil
	}
	return v.AsInterface(), nil
}
