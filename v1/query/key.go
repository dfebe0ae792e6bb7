package query

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidKey is returned when a key is empty or holds a non-primitive part.
var ErrInvalidKey = errors.New("query: invalid key")

// Key identifies a cached resource and its parameters, e.g.
// ("analytics-summary", 30). Two keys are equal when their parts are equal
// after normalisation: every integer kind compares by value, so int(1) and
// uint8(1) are the same part, and every float kind compares as float64. A
// string never equals a number, and integers never equal floats.
type Key struct {
	parts []any
	enc   string
}

// NewKey builds a Key from string, bool, integer and float parts.
func NewKey(parts ...any) (Key, error) {
	if len(parts) == 0 {
		return Key{}, fmt.Errorf("%w: no parts", ErrInvalidKey)
	}
	norm := make([]any, len(parts))
	enc := make([]string, len(parts))
	for i, p := range parts {
		n, e, err := encodePart(p)
		if err != nil {
			return Key{}, fmt.Errorf("%w: part %d: %v", ErrInvalidKey, i, err)
		}
		norm[i] = n
		enc[i] = e
	}
	return Key{parts: norm, enc: strings.Join(enc, "|")}, nil
}

// MustKey is like NewKey but panics on error. Meant for static keys.
func MustKey(parts ...any) Key {
	k, err := NewKey(parts...)
	if err != nil {
		panic(err)
	}
	return k
}

func encodePart(p any) (any, string, error) {
	switch v := p.(type) {
	case string:
		return v, "s:" + strconv.Quote(v), nil
	case bool:
		return v, "b:" + strconv.FormatBool(v), nil
	case int:
		return int64(v), "i:" + strconv.FormatInt(int64(v), 10), nil
	case int8:
		return int64(v), "i:" + strconv.FormatInt(int64(v), 10), nil
	case int16:
		return int64(v), "i:" + strconv.FormatInt(int64(v), 10), nil
	case int32:
		return int64(v), "i:" + strconv.FormatInt(int64(v), 10), nil
	case int64:
		return v, "i:" + strconv.FormatInt(v, 10), nil
	case uint:
		return encodeUnsigned(uint64(v))
	case uint8:
		return encodeUnsigned(uint64(v))
	case uint16:
		return encodeUnsigned(uint64(v))
	case uint32:
		return encodeUnsigned(uint64(v))
	case uint64:
		return encodeUnsigned(v)
	case float32:
		return float64(v), "f:" + strconv.FormatFloat(float64(v), 'g', -1, 32), nil
	case float64:
		return v, "f:" + strconv.FormatFloat(v, 'g', -1, 64), nil
	}
	return nil, "", fmt.Errorf("unsupported type %T", p)
}

// encodeUnsigned folds values that fit in int64 onto the signed encoding.
func encodeUnsigned(v uint64) (any, string, error) {
	if v <= math.MaxInt64 {
		return int64(v), "i:" + strconv.FormatInt(int64(v), 10), nil
	}
	return v, "u:" + strconv.FormatUint(v, 10), nil
}

// String returns the canonical encoding used for hashing and equality.
func (k Key) String() string {
	return k.enc
}

// Equal reports whether k and o identify the same resource.
func (k Key) Equal(o Key) bool {
	return k.enc == o.enc
}

// Len returns the number of parts.
func (k Key) Len() int {
	return len(k.parts)
}

// Part returns the normalised i-th part.
func (k Key) Part(i int) any {
	return k.parts[i]
}

// Topic returns the change bus topic an entry for k listens on: the first
// part when it is a string, otherwise "".
func (k Key) Topic() string {
	if len(k.parts) == 0 {
		return ""
	}
	s, _ := k.parts[0].(string)
	return s
}

// IsZero reports whether k was never initialised.
func (k Key) IsZero() bool {
	return len(k.parts) == 0
}
