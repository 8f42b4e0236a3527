package cacheinfra

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// encodeValue serializes v with sorted map keys and compact ints, so two equal
// values always produce the same bytes. List removal relies on that.
func encodeValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	enc.UseCompactInts(true)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeValue reverses encodeValue. Integers come back as int64/uint64,
// floats as float64 and maps as map[string]any.
func decodeValue(data []byte) (any, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	v, err := dec.DecodeInterface()
	if err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return v, nil
}

func encodeValues(values []any) ([][]byte, error) {
	out := make([][]byte, len(values))
	for i, v := range values {
		data, err := encodeValue(v)
		if err != nil {
			return nil, err
		}
		out[i] = data
	}
	return out, nil
}

func decodeValues(items [][]byte) ([]any, error) {
	out := make([]any, 0, len(items))
	for _, item := range items {
		v, err := decodeValue(item)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
