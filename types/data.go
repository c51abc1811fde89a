package types

import (
	"encoding/json"
	"reflect"

	"github.com/juju/errors"
	"github.com/spf13/cast"

	"github.com/lightartw/textanalyze/utils"
)

// Data is the mutable key-value context threaded through the nodes of one run.
type Data map[string]any

func (d *Data) Get(key string) (any, bool) {
	v, exists := (*d)[key]
	return v, exists
}

func (d *Data) GetString(key string) (string, bool) {
	v, exists := d.Get(key)
	return cast.ToString(v), exists
}

func (d *Data) GetInt(key string) (int, bool) {
	v, exists := d.Get(key)
	return cast.ToInt(v), exists
}

func (d *Data) GetBool(key string) (bool, bool) {
	v, exists := d.Get(key)
	return cast.ToBool(v), exists
}

func (d *Data) GetFloat64(key string) (float64, bool) {
	v, exists := d.Get(key)
	return cast.ToFloat64(v), exists
}

func (d *Data) GetStringSlice(key string) ([]string, bool) {
	v, exists := d.Get(key)
	return cast.ToStringSlice(v), exists
}

func (d *Data) GetStringMap(key string) (map[string]any, bool) {
	v, exists := d.Get(key)
	return cast.ToStringMap(v), exists
}

func (d *Data) GetStruct(key string, s any) error {
	v, exists := d.Get(key)
	if !exists {
		return errors.NotFound
	}
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, errors.New("marshal failed"))
	}
	return json.Unmarshal(b, s)
}

func (d *Data) Set(key string, value any) {
	(*d)[key] = value
}

// Merge copies every key of other into d, overwriting existing keys.
// Keys already in d are never removed.
func (d *Data) Merge(other Data) {
	if *d == nil {
		*d = Data{}
	}
	for k, v := range other {
		(*d)[k] = v
	}
}

func (d Data) Clone() Data {
	if d == nil {
		return Data{}
	}
	return utils.CloneMap(d)
}

func (d Data) Keys() []string {
	return utils.SortedKeys(d)
}

// Truthy reports whether the value stored under key counts as true for
// branch routing. Missing keys, nil, false, zero numbers, empty strings and
// empty collections are false.
func (d Data) Truthy(key string) bool {
	v, exists := d[key]
	if !exists {
		return false
	}
	return IsTruthy(v)
}

func IsTruthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return cast.ToFloat64(t) != 0
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array, reflect.Chan:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}
