package task

import (
	"fmt"
	"strconv"
	"time"
)

// timestampLayout is the fixed textual representation for timestamp
// values in normalized results and published metadata.
const timestampLayout = time.RFC3339

// Stringify renders a native cell value as text. Numbers, timestamps,
// byte slices and nils all collapse to a plain string so the canonical
// envelope stays type-free.
func Stringify(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		return x.UTC().Format(timestampLayout)
	case *time.Time:
		if x == nil {
			return ""
		}
		return x.UTC().Format(timestampLayout)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}

// NormalizeTable converts a native table into the canonical envelope
// form, stringifying every cell into a (name, value) pair. The
// handler-supplied Total is passed through as-is, including zero.
func NormalizeTable(rt *RawTable) *Table {
	if rt == nil {
		return &Table{Rows: []Row{}}
	}

	rows := make([]Row, 0, len(rt.Rows))
	for _, raw := range rt.Rows {
		fields := make([]Field, 0, len(raw))
		for i, cell := range raw {
			name := ""
			if i < len(rt.Columns) {
				name = rt.Columns[i]
			}
			fields = append(fields, Field{Name: name, Value: Stringify(cell)})
		}
		rows = append(rows, Row{Fields: fields})
	}

	return &Table{
		RawQuery: rt.RawQuery,
		Rows:     rows,
		Total:    rt.Total,
		Limit:    rt.Limit,
		Offset:   rt.Offset,
	}
}
