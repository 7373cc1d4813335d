// SPDX-License-Identifier: GPL-2.0-or-later

// Package args tokenizes console style command lines: words separated
// by spaces, quoted strings kept whole, // comments dropped.
package args

import (
	"strconv"
	"strings"
	"unicode"
)

type Arg struct {
	a string
}

func (a Arg) String() string {
	return a.a
}

func (a Arg) Int() int {
	r, err := strconv.ParseInt(a.a, 10, 0)
	if err != nil {
		return 0
	}
	return int(r)
}

func (a Arg) Uint16() uint16 {
	r, err := strconv.ParseUint(a.a, 10, 16)
	if err != nil {
		return 0
	}
	return uint16(r)
}

func (a Arg) Int32() int32 {
	r, err := strconv.ParseInt(a.a, 10, 32)
	if err != nil {
		return 0
	}
	return int32(r)
}

func (a Arg) Uint32() uint32 {
	r, err := strconv.ParseUint(a.a, 10, 32)
	if err != nil {
		return 0
	}
	return uint32(r)
}

func (a Arg) Float32() float32 {
	r, err := strconv.ParseFloat(a.a, 32)
	if err != nil {
		return 0
	}
	return float32(r)
}

type Arguments struct {
	// each arg on its own
	args []Arg
	// concat of args[1:]
	full string
}

func (c Arguments) Len() int {
	return len(c.args)
}

func (c Arguments) Argv(i int) Arg {
	if i < 0 || i >= len(c.args) {
		return Arg{""}
	}
	return c.args[i]
}

func (c Arguments) Full() string {
	return c.full
}

func (c Arguments) Args() []Arg {
	return c.args
}

func (c Arguments) ArgumentString() string {
	// args[0] is the cmd
	if len(c.args) < 2 {
		return ""
	}
	r := strings.TrimPrefix(c.full, c.args[0].String())
	r = strings.TrimLeftFunc(r, unicode.IsSpace)
	// the result should not start with " or space
	if len(r) > 1 {
		if r[0] == '"' {
			r = strings.Trim(r, "\"\t\n\v\f\r ")
		}
	}
	return r
}

func Parse(s string) (args Arguments) {
	args.full = strings.TrimFunc(s, unicode.IsSpace)
	args.args = []Arg{}

	l := lex(args.full)
	for {
		i := l.nextItem()

		switch i.typ {
		case itemWord:
			args.args = append(args.args, Arg{i.val})
		case itemString:
			s := i.val
			s = strings.TrimPrefix(s, `"`)
			s = strings.TrimSuffix(s, `"`)
			args.args = append(args.args, Arg{s})
		case itemSpace:
			continue
		case itemEOF, itemError:
			return
		}
	}
}
