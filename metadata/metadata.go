// Package metadata implements the Upload-Metadata header format of the tus
// protocol: a comma-separated list of ASCII keys, each optionally followed by
// a space and a base64-encoded binary value.
package metadata

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
)

// Metadata maps keys to optional binary values.
// Keys must be ASCII and must not contain spaces or commas.
type Metadata map[string]Value

// Value is the value assigned to a metadata key. A key can be present
// without carrying a value, so a Value distinguishes "no bytes" from
// "zero bytes".
type Value struct {
	bytes   []byte
	present bool
}

// NewValue creates a Value holding the given bytes.
func NewValue(b []byte) Value {
	return Value{bytes: b, present: true}
}

// NewStringValue creates a Value holding the bytes of the given string.
func NewStringValue(s string) Value {
	return Value{bytes: []byte(s), present: true}
}

// NoValue creates a Value for a key that carries no value.
func NoValue() Value {
	return Value{}
}

// Bytes returns the value bytes and whether a value is present at all.
func (v Value) Bytes() ([]byte, bool) {
	return v.bytes, v.present
}

// InvalidKeyError is returned when a metadata key does not conform to the
// Upload-Metadata grammar.
type InvalidKeyError struct {
	Key    string
	Reason string
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("invalid metadata key %q: %s", e.Key, e.Reason)
}

// DecodeError is returned when an Upload-Metadata header value cannot be
// parsed.
type DecodeError struct {
	Pair string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid metadata pair %q: %s", e.Pair, e.Err)
	}
	return fmt.Sprintf("invalid metadata pair %q", e.Pair)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Validate checks all keys of the metadata against the Upload-Metadata
// grammar. It performs no I/O, so callers can reject bad metadata before
// touching the network.
func Validate(md Metadata) error {
	for key := range md {
		if err := validateKey(key); err != nil {
			return err
		}
	}
	return nil
}

func validateKey(key string) error {
	for i := 0; i < len(key); i++ {
		if key[i] > 127 {
			return &InvalidKeyError{Key: key, Reason: "keys must only contain ASCII characters"}
		}
	}
	if strings.Contains(key, " ") {
		return &InvalidKeyError{Key: key, Reason: "keys must not contain spaces"}
	}
	if strings.Contains(key, ",") {
		return &InvalidKeyError{Key: key, Reason: "keys must not contain commas"}
	}
	return nil
}

// Encode serializes the metadata into an Upload-Metadata header value.
// Keys are emitted in sorted order so the output is deterministic; decoding
// does not depend on pair order.
func Encode(md Metadata) (string, error) {
	if err := Validate(md); err != nil {
		return "", err
	}

	keys := make([]string, 0, len(md))
	for key := range md {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		if b, present := md[key].Bytes(); present {
			pairs = append(pairs, key+" "+base64.StdEncoding.EncodeToString(b))
		} else {
			pairs = append(pairs, key)
		}
	}

	return strings.Join(pairs, ","), nil
}

// Decode parses an Upload-Metadata header value. An empty or whitespace-only
// header decodes to an empty map.
func Decode(header string) (Metadata, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return Metadata{}, nil
	}

	md := Metadata{}
	for _, pair := range strings.Split(header, ",") {
		tokens := strings.Fields(pair)
		switch len(tokens) {
		case 1:
			md[tokens[0]] = NoValue()
		case 2:
			value, err := base64.StdEncoding.DecodeString(tokens[1])
			if err != nil {
				return nil, &DecodeError{Pair: pair, Err: err}
			}
			md[tokens[0]] = NewValue(value)
		default:
			return nil, &DecodeError{Pair: pair, Err: fmt.Errorf("key/value pair consists of %d elements, expected at most two", len(tokens))}
		}
	}

	return md, nil
}
