// SPDX-License-Identifier: GPL-2.0-or-later

package args

import (
	"fmt"
	"unicode/utf8"
)

type itemType int

const (
	itemError itemType = iota
	itemEOF
	itemString // quoted string includes quotes
	itemSpace
	itemWord
)

const eof = -1

type item struct {
	typ itemType
	val string
}

type stateFn func(*lexer) stateFn

type lexer struct {
	input string
	start int
	pos   int
	width int
	items chan item
	state stateFn
}

func lex(input string) *lexer {
	l := &lexer{
		input: input,
		items: make(chan item, 2),
		state: lexAction,
	}
	return l
}

func (l *lexer) nextItem() item {
	for {
		select {
		case item := <-l.items:
			return item
		default:
			l.state = l.state(l)
		}
	}
}

func (l *lexer) emit(t itemType) {
	l.items <- item{t, l.input[l.start:l.pos]}
	l.start = l.pos
}

func (l *lexer) next() rune {
	if l.pos >= len(l.input) {
		l.width = 0
		return eof
	}
	r, w := utf8.DecodeRuneInString(l.input[l.pos:])
	l.width = w
	l.pos += l.width
	return r
}

func (l *lexer) backup() {
	l.pos -= l.width
}

func (l *lexer) peek() rune {
	r := l.next()
	l.backup()
	return r
}

func (l *lexer) errorf(format string, args ...interface{}) stateFn {
	l.items <- item{
		itemError,
		fmt.Sprintf(format, args...),
	}
	return nil
}

func lexWord(l *lexer) stateFn {
Loop:
	for {
		switch r := l.next(); {
		case isWordRune(r):
			// absorb
		default:
			l.backup()
			l.emit(itemWord)
			break Loop
		}
	}
	return lexAction
}

func lexAction(l *lexer) stateFn {
	switch r := l.next(); {
	case r == eof || isEndOfLine(r):
		l.emit(itemEOF)
		return nil
	case isSpace(r):
		return lexSpace
	case r == '"':
		return lexQuote
	case r == '/':
		// look ahead so we don't break l.backup()
		if l.pos < len(l.input) && l.input[l.pos] == '/' {
			// drop the rest of the line
			l.emit(itemEOF)
			return nil
		}
		fallthrough
	case isWordRune(r):
		l.backup()
		return lexWord
	default:
		return l.errorf("unhandled char: %#U", r)
	}
}

func lexSpace(l *lexer) stateFn {
	for isSpace(l.peek()) {
		l.next()
	}
	l.emit(itemSpace)
	return lexAction
}

func lexQuote(l *lexer) stateFn {
Loop:
	for {
		switch l.next() {
		case '"':
			break Loop
		case eof, '\n':
			return l.errorf("unterminated string")
		}
	}
	l.emit(itemString)
	return lexAction
}

func isWordRune(r rune) bool {
	// the protocol is ascii, everything above space is a word rune
	return r > ' ' && r != '"'
}

func isEndOfLine(r rune) bool {
	return r == '\r' || r == '\n'
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t'
}
