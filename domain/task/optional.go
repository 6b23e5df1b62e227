package task

import "encoding/json"

// Optional distinguishes a field that was omitted from one that was sent,
// including one sent as an explicit null.
type Optional[T any] struct {
	Value T
	Set   bool
}

// Some returns a set Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Set: true}
}

// UnmarshalJSON marks the field as set. encoding/json calls it for null too.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &o.Value); err != nil {
		return err
	}
	o.Set = true
	return nil
}

// MarshalJSON encodes the wrapped value.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Value)
}

// IsZero lets `omitzero` drop unset fields when encoding.
func (o Optional[T]) IsZero() bool {
	return !o.Set
}
