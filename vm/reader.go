// This file is part of cheax.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vm

import (
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// Reader turns a rune stream into Values, one top-level form at a time.
// It is a hand-rolled scanner rather than a wrapper around text/scanner:
// cheax's literal grammar (0x/0b/leading-zero-octal integers, hex floats
// with p/P exponents, \xHH/\uHHHH/\UHHHHHHHH string escapes, and the
// '/`/,/,@ reader macros) has no Go-standard-library counterpart.
type Reader struct {
	vm        *VM
	src       io.RuneReader
	pushback  []rune
	file      string
	line, col int
	debugInfo bool
	bqDepth   int
}

// NewReader creates a Reader over src. file is used only for optional
// source-location debug info (see WithDebugInfo). src only needs to
// implement io.RuneReader: the Reader keeps its own pushback buffer so it
// never depends on a single-level bufio.Reader.UnreadRune.
func (vm *VM) NewReader(src io.RuneReader, file string) *Reader {
	return &Reader{vm: vm, src: src, file: file, line: 1, col: 0, debugInfo: vm.debugInfo}
}

func (r *Reader) readRune() (rune, error) {
	if n := len(r.pushback); n > 0 {
		ch := r.pushback[n-1]
		r.pushback = r.pushback[:n-1]
		return ch, nil
	}
	ch, _, err := r.src.ReadRune()
	if err != nil {
		if err == io.EOF {
			return 0, io.EOF
		}
		return 0, errors.Wrap(err, "read")
	}
	if ch == '\n' {
		r.line++
		r.col = 0
	} else {
		r.col++
	}
	return ch, nil
}

// unreadRuneVal pushes ch back so the next readRune returns it again. Unlike
// bufio.Reader.UnreadRune, this supports any number of consecutive
// unreads.
func (r *Reader) unreadRuneVal(ch rune) {
	r.pushback = append(r.pushback, ch)
	if r.col > 0 {
		r.col--
	}
}

// SkipShebang consumes a leading "#!" line, if present. A stream shorter
// than two runes is left untouched rather than erroring: the spec's
// graceful fallback for the edge case of a file consisting of nothing but
// "#" or being empty.
func (r *Reader) SkipShebang() error {
	c1, err := r.readRune()
	if err != nil {
		return nil
	}
	if c1 != '#' {
		r.unreadRuneVal(c1)
		return nil
	}
	c2, err := r.readRune()
	if err != nil {
		r.unreadRuneVal(c1)
		return nil
	}
	if c2 != '!' {
		r.unreadRuneVal(c2)
		r.unreadRuneVal(c1)
		return nil
	}
	for {
		ch, err := r.readRune()
		if err != nil || ch == '\n' {
			return nil
		}
	}
}

func isSpace(ch rune) bool { return unicode.IsSpace(ch) }

func isDelim(ch rune) bool {
	switch ch {
	case '(', ')', '"', ';', '\'', '`', ',':
		return true
	}
	return isSpace(ch)
}

// skipAtmosphere consumes whitespace and ;-to-end-of-line comments.
func (r *Reader) skipAtmosphere() error {
	for {
		ch, err := r.readRune()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch {
		case isSpace(ch):
			continue
		case ch == ';':
			for {
				c2, err := r.readRune()
				if err != nil || c2 == '\n' {
					break
				}
			}
		default:
			r.unreadRuneVal(ch)
			return nil
		}
	}
}

// Read reads and returns the next top-level form, io.EOF when the stream
// is exhausted.
func (r *Reader) Read() (Value, error) {
	if err := r.skipAtmosphere(); err != nil {
		return Nil(), err
	}
	return r.readForm()
}

// ReadAll reads every remaining top-level form.
func (r *Reader) ReadAll() ([]Value, error) {
	var out []Value
	for {
		v, err := r.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
}

func (r *Reader) readForm() (Value, error) {
	line, col := r.line, r.col
	ch, err := r.readRune()
	if err != nil {
		return Nil(), io.EOF
	}
	switch ch {
	case '(':
		return r.readList(line, col)
	case ')':
		return Nil(), r.vm.throw(EREAD, "unexpected ')'")
	case '\'':
		inner, err := r.readNextForm()
		if err != nil {
			return Nil(), err
		}
		return r.vm.NewQuote(inner)
	case '`':
		r.bqDepth++
		inner, err := r.readNextForm()
		r.bqDepth--
		if err != nil {
			return Nil(), err
		}
		return r.vm.NewBackquote(inner)
	case ',':
		if r.bqDepth <= 0 {
			return Nil(), r.vm.throw(EREAD, "',' not inside a backquote")
		}
		splice := false
		c2, err := r.readRune()
		if err == nil && c2 == '@' {
			splice = true
		} else if err == nil {
			r.unreadRuneVal(c2)
		}
		r.bqDepth--
		inner, err := r.readNextForm()
		r.bqDepth++
		if err != nil {
			return Nil(), err
		}
		if splice {
			return r.vm.NewSplice(inner)
		}
		return r.vm.NewComma(inner)
	case '"':
		return r.readString()
	default:
		r.unreadRuneVal(ch)
		v, err := r.readAtom()
		if err != nil {
			return Nil(), err
		}
		return v, nil
	}
}

// readNextForm skips atmosphere and reads one form, used after a reader
// macro prefix.
func (r *Reader) readNextForm() (Value, error) {
	if err := r.skipAtmosphere(); err != nil {
		return Nil(), err
	}
	return r.readForm()
}

// readList reads the contents of a parenthesized list, up to and
// including the closing ')'. The token ":" immediately before the
// closing paren marks an improper (dotted) tail, matching the same ":"
// convention the pattern matcher uses for rest-bindings.
func (r *Reader) readList(startLine, startCol int) (Value, error) {
	var items []Value
	tail := Nil()
	for {
		if err := r.skipAtmosphere(); err != nil {
			return Nil(), err
		}
		ch, err := r.readRune()
		if err == io.EOF {
			return Nil(), r.vm.throw(EREAD, "unexpected EOF in list")
		}
		if ch == ')' {
			break
		}
		r.unreadRuneVal(ch)
		v, err := r.readForm()
		if err != nil {
			return Nil(), err
		}
		if v.Kind() == KIdent && v.IdentName() == ":" {
			t, err := r.readNextForm()
			if err != nil {
				return Nil(), err
			}
			tail = t
			if err := r.skipAtmosphere(); err != nil {
				return Nil(), err
			}
			closeCh, err := r.readRune()
			if err != nil || closeCh != ')' {
				return Nil(), r.vm.throw(EREAD, "expected ')' after dotted tail")
			}
			break
		}
		items = append(items, v)
	}
	list := tail
	for i := len(items) - 1; i >= 0; i-- {
		v, err := r.vm.Cons(items[i], list)
		if err != nil {
			return Nil(), err
		}
		if r.debugInfo {
			// Per spec section 4.4, every cons of the list carries a
			// source-location record when debug-info generation is on,
			// not just the list's head cell.
			v.SetLoc(&SourceLoc{File: r.file, Line: startLine, Pos: startCol})
		}
		list = v
	}
	return list, nil
}

func (r *Reader) readAtom() (Value, error) {
	var sb strings.Builder
	for {
		ch, err := r.readRune()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Nil(), err
		}
		if isDelim(ch) {
			r.unreadRuneVal(ch)
			break
		}
		sb.WriteRune(ch)
	}
	tok := sb.String()
	if tok == "" {
		return Nil(), r.vm.throw(EREAD, "empty token")
	}
	switch tok {
	case "true":
		return Bool(true), nil
	case "false":
		return Bool(false), nil
	}
	if n, ok, err := parseIntToken(tok); ok {
		if err != nil {
			return Nil(), r.vm.throw(EREAD, err.Error())
		}
		return Int(n), nil
	}
	if f, ok, err := parseDoubleToken(tok); ok {
		if err != nil {
			return Nil(), r.vm.throw(EREAD, err.Error())
		}
		return Double(f), nil
	}
	return r.vm.Ident(tok)
}

// parseIntToken reports ok=false when tok does not even look like an
// integer literal (so the caller falls through to double/identifier
// parsing), and a non-nil err when it looks like one but is malformed or
// out of int64 range.
func parseIntToken(tok string) (int64, bool, error) {
	s := tok
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}
	if s == "" {
		return 0, false, nil
	}
	base := 10
	switch {
	case strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X"):
		base = 16
		s = s[2:]
	case strings.HasPrefix(s, "0b") || strings.HasPrefix(s, "0B"):
		base = 2
		s = s[2:]
	case len(s) > 1 && s[0] == '0':
		base = 8
		s = s[1:]
	}
	if s == "" {
		return 0, false, nil
	}
	for _, c := range s {
		if !isDigitInBase(c, base) {
			return 0, false, nil
		}
	}
	n, err := strconv.ParseUint(s, base, 64)
	if err != nil {
		return 0, true, errors.Errorf("malformed integer literal %q", tok)
	}
	if n > 1<<63 || (n == 1<<63 && !neg) {
		return 0, true, errors.Errorf("integer literal %q out of range", tok)
	}
	v := int64(n)
	if neg {
		v = -v
	}
	return v, true, nil
}

func isDigitInBase(c rune, base int) bool {
	var d int
	switch {
	case c >= '0' && c <= '9':
		d = int(c - '0')
	case c >= 'a' && c <= 'f':
		d = int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		d = int(c-'A') + 10
	default:
		return false
	}
	return d < base
}

// parseDoubleToken reports ok=false for a token that, after an optional
// sign, starts with neither a digit nor a '.' followed by a digit, so
// identifiers such as "def" or "else" fall through to identifier parsing.
// Otherwise it requires a '.' or an exponent marker (e/E, or p/P for hex
// floats) to be present, matching cheax's rule that "123" is always an int
// and never a double.
func parseDoubleToken(tok string) (float64, bool, error) {
	s := tok
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		s = s[1:]
	}
	if s == "" || !(isDigitInBase(rune(s[0]), 10) || (s[0] == '.' && len(s) > 1 && isDigitInBase(rune(s[1]), 10))) {
		return 0, false, nil
	}
	isHex := strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")
	hasDot := strings.ContainsRune(s, '.')
	hasExp := false
	if isHex {
		hasExp = strings.ContainsAny(s, "pP")
	} else {
		hasExp = strings.ContainsAny(s, "eE")
	}
	if !hasDot && !hasExp {
		return 0, false, nil
	}
	if isHex && !hasExp {
		// Go requires an exponent on hex floats; reject rather than
		// silently misparsing.
		return 0, true, errors.Errorf("hex float %q needs a p/P exponent", tok)
	}
	f, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, true, errors.Errorf("malformed double literal %q", tok)
	}
	return f, true, nil
}

func (r *Reader) readString() (Value, error) {
	var b []byte
	for {
		ch, err := r.readRune()
		if err == io.EOF {
			return Nil(), r.vm.throw(EREAD, "unterminated string literal")
		}
		if err != nil {
			return Nil(), err
		}
		if ch == '"' {
			break
		}
		if ch != '\\' {
			b = append(b, string(ch)...)
			continue
		}
		esc, err := r.readRune()
		if err != nil {
			return Nil(), r.vm.throw(EREAD, "unterminated escape sequence")
		}
		switch esc {
		case 'n':
			b = append(b, '\n')
		case 'r':
			b = append(b, '\r')
		case '\\':
			b = append(b, '\\')
		case '0':
			b = append(b, 0)
		case 't':
			b = append(b, '\t')
		case '\'':
			b = append(b, '\'')
		case '"':
			b = append(b, '"')
		case 'x':
			cp, err := r.readHex(2)
			if err != nil {
				return Nil(), err
			}
			b = append(b, byte(cp))
		case 'u':
			cp, err := r.readHex(4)
			if err != nil {
				return Nil(), err
			}
			b = append(b, string(rune(cp))...)
		case 'U':
			cp, err := r.readHex(8)
			if err != nil {
				return Nil(), err
			}
			if cp > 0x10FFFF {
				return Nil(), r.vm.throw(EREAD, "escape codepoint out of Unicode range")
			}
			b = append(b, string(rune(cp))...)
		default:
			return Nil(), r.vm.throwf(EREAD, "unknown escape sequence '\\%c'", esc)
		}
	}
	return r.vm.NewString(string(b))
}

func (r *Reader) readHex(n int) (int64, error) {
	var v int64
	for i := 0; i < n; i++ {
		ch, err := r.readRune()
		if err != nil {
			return 0, r.vm.throw(EREAD, "unterminated hex escape")
		}
		d := int64(0)
		switch {
		case ch >= '0' && ch <= '9':
			d = int64(ch - '0')
		case ch >= 'a' && ch <= 'f':
			d = int64(ch-'a') + 10
		case ch >= 'A' && ch <= 'F':
			d = int64(ch-'A') + 10
		default:
			return 0, r.vm.throwf(EREAD, "invalid hex digit '%c'", ch)
		}
		v = v*16 + d
	}
	return v, nil
}
