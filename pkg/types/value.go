// Value is the closed variant type for everything Larder can store.
// See docs/ARCHITECTURE.md § Value Layer.
package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Value is a sealed interface over the five storage classes SQLite knows:
// Null, Integer, Real, Text, and Blob. Only the types in this file implement
// it. Encoding native Go scalars into a Value is total; decoding back is
// fallible and returns ErrInvalidData on mismatch.
type Value interface {
	storageValue() // sealed
}

// Null represents the SQL NULL value.
type Null struct{}

func (Null) storageValue() {}

// Integer is a 64-bit signed integer value.
type Integer int64

func (Integer) storageValue() {}

// Real is a 64-bit floating point value.
type Real float64

func (Real) storageValue() {}

// Text is a string value.
type Text string

func (Text) storageValue() {}

// Blob is a byte-slice value.
type Blob []byte

func (Blob) storageValue() {}

// Timestamps serialize as REAL seconds since the Unix epoch. Text fallback
// formats are accepted on decode only.
var textTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Encode converts a native Go value into a Value. Supported inputs: nil,
// Value (passthrough), bool, all int/uint widths, float32/64, string, []byte,
// time.Time, uuid.UUID, and pointers to any of these (nil pointer → Null).
// Anything else returns ErrInvalidData.
func Encode(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return x, nil
	case bool:
		if x {
			return Integer(1), nil
		}
		return Integer(0), nil
	case int:
		return Integer(x), nil
	case int8:
		return Integer(x), nil
	case int16:
		return Integer(x), nil
	case int32:
		return Integer(x), nil
	case int64:
		return Integer(x), nil
	case uint:
		return Integer(x), nil
	case uint8:
		return Integer(x), nil
	case uint16:
		return Integer(x), nil
	case uint32:
		return Integer(x), nil
	case uint64:
		return Integer(x), nil
	case float32:
		return Real(x), nil
	case float64:
		return Real(x), nil
	case string:
		return Text(x), nil
	case []byte:
		return Blob(x), nil
	case time.Time:
		return EncodeTime(x), nil
	case uuid.UUID:
		return Text(x.String()), nil
	case *bool:
		return encodePtr(x)
	case *int:
		return encodePtr(x)
	case *int64:
		return encodePtr(x)
	case *float64:
		return encodePtr(x)
	case *string:
		return encodePtr(x)
	case *time.Time:
		return encodePtr(x)
	case *uuid.UUID:
		return encodePtr(x)
	default:
		return nil, fmt.Errorf("%w: cannot encode %T", ErrInvalidData, v)
	}
}

func encodePtr[T any](p *T) (Value, error) {
	if p == nil {
		return Null{}, nil
	}
	return Encode(*p)
}

// MustEncode is Encode for values known to be encodable. It panics on
// unsupported input and is intended for literals in predicate construction.
func MustEncode(v any) Value {
	val, err := Encode(v)
	if err != nil {
		panic(err)
	}
	return val
}

// EncodeTime converts a timestamp to its REAL storage form.
func EncodeTime(t time.Time) Value {
	return Real(float64(t.UnixNano()) / float64(time.Second))
}

// IsNull reports whether v is the Null variant (or a nil interface).
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// IsZeroID reports whether v is the zero sentinel for an identifier: Null,
// Integer(0), or the empty Text. Repositories drop such ids on insert so the
// database can generate one.
func IsZeroID(v Value) bool {
	switch x := v.(type) {
	case nil, Null:
		return true
	case Integer:
		return x == 0
	case Text:
		return x == ""
	default:
		return false
	}
}

// AsInt64 decodes an integer. Real values convert when they carry no
// fractional part.
func AsInt64(v Value) (int64, error) {
	switch x := v.(type) {
	case Integer:
		return int64(x), nil
	case Real:
		if x == Real(int64(x)) {
			return int64(x), nil
		}
		return 0, fmt.Errorf("%w: real %v has a fractional part", ErrInvalidData, float64(x))
	default:
		return 0, decodeMismatch("integer", v)
	}
}

// AsFloat64 decodes a real. Integer values widen.
func AsFloat64(v Value) (float64, error) {
	switch x := v.(type) {
	case Real:
		return float64(x), nil
	case Integer:
		return float64(x), nil
	default:
		return 0, decodeMismatch("real", v)
	}
}

// AsString decodes a text value.
func AsString(v Value) (string, error) {
	if x, ok := v.(Text); ok {
		return string(x), nil
	}
	return "", decodeMismatch("text", v)
}

// AsBytes decodes a blob. Text converts byte-for-byte.
func AsBytes(v Value) ([]byte, error) {
	switch x := v.(type) {
	case Blob:
		return []byte(x), nil
	case Text:
		return []byte(x), nil
	default:
		return nil, decodeMismatch("blob", v)
	}
}

// AsBool decodes a boolean stored as an integer; any non-zero value is true.
func AsBool(v Value) (bool, error) {
	x, ok := v.(Integer)
	if !ok {
		return false, decodeMismatch("integer", v)
	}
	return x != 0, nil
}

// AsTime decodes a timestamp. The storage convention is REAL epoch seconds;
// Integer epoch seconds and a handful of text layouts are accepted as a
// best-effort fallback.
func AsTime(v Value) (time.Time, error) {
	switch x := v.(type) {
	case Real:
		sec := int64(x)
		nsec := int64((float64(x) - float64(sec)) * float64(time.Second))
		return time.Unix(sec, nsec).UTC(), nil
	case Integer:
		return time.Unix(int64(x), 0).UTC(), nil
	case Text:
		for _, layout := range textTimeLayouts {
			if t, err := time.Parse(layout, string(x)); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("%w: unparseable timestamp %q", ErrInvalidData, string(x))
	default:
		return time.Time{}, decodeMismatch("timestamp", v)
	}
}

// AsUUID decodes a UUID stored as text.
func AsUUID(v Value) (uuid.UUID, error) {
	s, err := AsString(v)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return id, nil
}

// Decode writes v into the pointed-to native target. Null decodes only into
// pointer targets (as nil); decoding Null into a non-optional target fails.
func Decode(v Value, dst any) error {
	if IsNull(v) {
		return decodeNull(v, dst)
	}
	switch p := dst.(type) {
	case *Value:
		*p = v
		return nil
	case *bool:
		b, err := AsBool(v)
		if err != nil {
			return err
		}
		*p = b
		return nil
	case *int:
		n, err := AsInt64(v)
		if err != nil {
			return err
		}
		*p = int(n)
		return nil
	case *int64:
		n, err := AsInt64(v)
		if err != nil {
			return err
		}
		*p = n
		return nil
	case *float64:
		f, err := AsFloat64(v)
		if err != nil {
			return err
		}
		*p = f
		return nil
	case *string:
		s, err := AsString(v)
		if err != nil {
			return err
		}
		*p = s
		return nil
	case *[]byte:
		b, err := AsBytes(v)
		if err != nil {
			return err
		}
		*p = b
		return nil
	case *time.Time:
		t, err := AsTime(v)
		if err != nil {
			return err
		}
		*p = t
		return nil
	case *uuid.UUID:
		id, err := AsUUID(v)
		if err != nil {
			return err
		}
		*p = id
		return nil
	case **bool:
		return decodeOpt(v, p, AsBool)
	case **int64:
		return decodeOpt(v, p, AsInt64)
	case **float64:
		return decodeOpt(v, p, AsFloat64)
	case **string:
		return decodeOpt(v, p, AsString)
	case **time.Time:
		return decodeOpt(v, p, AsTime)
	default:
		return fmt.Errorf("%w: cannot decode into %T", ErrInvalidData, dst)
	}
}

// decodeNull assigns nil to optional targets and rejects the rest.
func decodeNull(v Value, dst any) error {
	switch p := dst.(type) {
	case *Value:
		*p = Null{}
		return nil
	case **bool:
		*p = nil
		return nil
	case **int64:
		*p = nil
		return nil
	case **float64:
		*p = nil
		return nil
	case **string:
		*p = nil
		return nil
	case **time.Time:
		*p = nil
		return nil
	default:
		return fmt.Errorf("%w: null into non-optional %T", ErrInvalidData, dst)
	}
}

func decodeOpt[T any](v Value, p **T, as func(Value) (T, error)) error {
	x, err := as(v)
	if err != nil {
		return err
	}
	*p = &x
	return nil
}

// ToDriver converts a Value to the native form database/sql expects.
func ToDriver(v Value) any {
	switch x := v.(type) {
	case nil, Null:
		return nil
	case Integer:
		return int64(x)
	case Real:
		return float64(x)
	case Text:
		return string(x)
	case Blob:
		return []byte(x)
	default:
		return nil
	}
}

// FromDriver converts a scanned database/sql value into a Value.
func FromDriver(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null{}, nil
	case int64:
		return Integer(x), nil
	case float64:
		return Real(x), nil
	case string:
		return Text(x), nil
	case []byte:
		// Copy: the driver may reuse the buffer between rows.
		b := make([]byte, len(x))
		copy(b, x)
		return Blob(b), nil
	case bool:
		if x {
			return Integer(1), nil
		}
		return Integer(0), nil
	case time.Time:
		return EncodeTime(x), nil
	default:
		return nil, fmt.Errorf("%w: unsupported driver value %T", ErrInvalidData, v)
	}
}

// IDText renders an identifier value as text for access tracking and logs.
func IDText(v Value) string {
	switch x := v.(type) {
	case Integer:
		return fmt.Sprintf("%d", int64(x))
	case Text:
		return string(x)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func decodeMismatch(want string, v Value) error {
	return fmt.Errorf("%w: want %s, have %T", ErrInvalidData, want, v)
}
