// SPDX-License-Identifier: GPL-2.0-or-later

// Package info handles \key\value info strings: the userinfo sent in
// the connect packet and the serverinfo broadcast to clients.
package info

import (
	"strings"

	"github.com/pkg/errors"
)

const (
	MaxKey   = 63
	MaxValue = 63
)

var (
	ErrInvalidKey        = errors.New("info: invalid key")
	ErrInvalidValue      = errors.New("info: invalid value")
	ErrDisallowedStarKey = errors.New("info: star keys may not be set")
	ErrLengthExceeded    = errors.New("info: string length exceeded")
)

// String is an info string with a serialized length cap. The zero
// value is not usable, construct with NewUserInfo or NewServerInfo.
type String struct {
	pairs []pair
	max   int
}

type pair struct {
	key   string
	value string
}

func NewUserInfo() *String {
	return &String{max: 196}
}

func NewServerInfo() *String {
	return &String{max: 512}
}

// Parse reads a serialized info string. Keys seen twice keep the last
// value.
func Parse(s string, max int) (*String, error) {
	in := &String{max: max}
	if s == "" {
		return in, nil
	}
	if s[0] != '\\' {
		return nil, errors.Wrapf(ErrInvalidKey, "info string %q", s)
	}
	fields := strings.Split(s[1:], "\\")
	if len(fields)%2 != 0 {
		return nil, errors.Wrapf(ErrInvalidValue, "unpaired key in %q", s)
	}
	for i := 0; i < len(fields); i += 2 {
		k, v := fields[i], fields[i+1]
		if err := validKey(k); err != nil {
			return nil, err
		}
		if err := validValue(v); err != nil {
			return nil, err
		}
		in.put(k, sanitize(k, v))
	}
	if len(in.String()) > max {
		return nil, errors.Wrapf(ErrLengthExceeded, "%d > %d", len(in.String()), max)
	}
	return in, nil
}

func validKey(k string) error {
	if k == "" || len(k) > MaxKey {
		return errors.Wrapf(ErrInvalidKey, "key %q", k)
	}
	if strings.ContainsAny(k, "\\\"") {
		return errors.Wrapf(ErrInvalidKey, "key %q", k)
	}
	return nil
}

func validValue(v string) error {
	if len(v) > MaxValue {
		return errors.Wrapf(ErrInvalidValue, "value %q", v)
	}
	if strings.ContainsAny(v, "\\\"") {
		return errors.Wrapf(ErrInvalidValue, "value %q", v)
	}
	return nil
}

// sanitize strips bytes outside printable ASCII. Player names keep
// their bytes, the old parallel charset depends on them.
func sanitize(key, v string) string {
	if key == "name" {
		return v
	}
	sb := strings.Builder{}
	for i := 0; i < len(v); i++ {
		if v[i] >= 32 && v[i] < 127 {
			sb.WriteByte(v[i])
		}
	}
	return sb.String()
}

func (in *String) Get(key string) string {
	for _, p := range in.pairs {
		if p.key == key {
			return p.value
		}
	}
	return ""
}

func (in *String) put(key, value string) {
	for i := range in.pairs {
		if in.pairs[i].key == key {
			if value == "" {
				in.pairs = append(in.pairs[:i], in.pairs[i+1:]...)
			} else {
				in.pairs[i].value = value
			}
			return
		}
	}
	if value != "" {
		in.pairs = append(in.pairs, pair{key, value})
	}
}

func (in *String) set(key, value string) error {
	if err := validKey(key); err != nil {
		return err
	}
	if err := validValue(value); err != nil {
		return err
	}
	value = sanitize(key, value)

	old := in.Get(key)
	in.put(key, value)
	if len(in.String()) > in.max {
		in.put(key, old)
		return errors.Wrapf(ErrLengthExceeded, "setting %q", key)
	}
	return nil
}

// Set updates key. Star keys are reserved for the transport itself and
// rejected here, an empty value removes the key.
func (in *String) Set(key, value string) error {
	if strings.HasPrefix(key, "*") {
		return errors.Wrapf(ErrDisallowedStarKey, "key %q", key)
	}
	return in.set(key, value)
}

// SetStar is Set without the star key guard.
func (in *String) SetStar(key, value string) error {
	return in.set(key, value)
}

func (in *String) Remove(key string) {
	in.put(key, "")
}

// Each calls f for every pair in serialization order.
func (in *String) Each(f func(key, value string)) {
	for _, p := range in.pairs {
		f(p.key, p.value)
	}
}

// String returns the serialized \key\value form.
func (in *String) String() string {
	sb := strings.Builder{}
	for _, p := range in.pairs {
		sb.WriteByte('\\')
		sb.WriteString(p.key)
		sb.WriteByte('\\')
		sb.WriteString(p.value)
	}
	return sb.String()
}
