package storage

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"persistkit/internal/core/entity"
)

// ConvertKind converts a raw driver value to the Go type of kind.
func ConvertKind(v any, kind entity.ValueKind) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch kind {
	case entity.KindInt64:
		switch x := v.(type) {
		case int64:
			return x, nil
		case int32:
			return int64(x), nil
		case int:
			return int64(x), nil
		case uint64:
			return int64(x), nil
		case []byte:
			return strconv.ParseInt(string(x), 10, 64)
		case string:
			return strconv.ParseInt(x, 10, 64)
		}
	case entity.KindString:
		switch x := v.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		}
	case entity.KindUUID:
		switch x := v.(type) {
		case uuid.UUID:
			return x, nil
		case [16]byte:
			return uuid.UUID(x), nil
		case string:
			return uuid.Parse(x)
		case []byte:
			if len(x) == 16 {
				return uuid.FromBytes(x)
			}
			return uuid.ParseBytes(x)
		}
	default:
		return v, nil
	}
	return nil, fmt.Errorf("%w: cannot read %T as %s", entity.ErrKindMismatch, v, kind)
}

// keyString renders key values for grouping loaded rows by owner.
func keyString(v any) string {
	return fmt.Sprint(v)
}
