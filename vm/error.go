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
	"fmt"
	"io"

	"github.com/db47h/cheax/internal/errio"
)

// Built-in error codes, grouped the way spec section 7 groups them: READ,
// EVAL, ARITH/VALUE, ACCESS, IO, API, MEMORY. User codes registered with
// NewErrorCode start at USER0 so they never collide with a future
// built-in addition.
const (
	EREAD = iota + 1
	EEOF

	EEVAL
	ENOSYM
	ESTACK
	EMATCH
	EMACRO
	ESTATIC

	ETYPE
	EVALUE
	EDIVZERO
	EOVERFLOW
	EINDEX

	EREADONLY
	EWRITEONLY
	EACCES
	EEXIST

	EIO

	EAPI
	EINTERNAL

	ENOMEM

	USER0
)

var builtinErrNames = map[int]string{
	EREAD:      "EREAD",
	EEOF:       "EEOF",
	EEVAL:      "EEVAL",
	ENOSYM:     "ENOSYM",
	ESTACK:     "ESTACK",
	EMATCH:     "EMATCH",
	EMACRO:     "EMACRO",
	ESTATIC:    "ESTATIC",
	ETYPE:      "ETYPE",
	EVALUE:     "EVALUE",
	EDIVZERO:   "EDIVZERO",
	EOVERFLOW:  "EOVERFLOW",
	EINDEX:     "EINDEX",
	EREADONLY:  "EREADONLY",
	EWRITEONLY: "EWRITEONLY",
	EACCES:     "EACCES",
	EEXIST:     "EEXIST",
	EIO:        "EIO",
	EAPI:       "EAPI",
	EINTERNAL:  "EINTERNAL",
	ENOMEM:     "ENOMEM",
}

// btEntry is one backtrace frame, captured as plain text (rather than a
// Value) so backtrace capture never itself needs GC rooting. loc is the
// frame form's source location, if the reader attached one. expanded is
// the post-macroexpansion form's text, set only when the frame form was
// itself the result of a macro expansion (per spec section 4.9, a frame
// that was macroexpanded gets a second line showing what it expanded to).
type btEntry struct {
	label    string
	loc      *SourceLoc
	expanded string
}

// Backtrace is a bounded ring buffer of call-frame entries. Once it is
// full, each new entry evicts the oldest one and the eviction is counted;
// Print reports that count after the remaining frames. A call continued
// as a tail call leaves no entry of its own.
type Backtrace struct {
	entries []btEntry
	cap     int
	start   int
	len     int
	dropped int
}

func newBacktrace(cap int) *Backtrace {
	if cap <= 0 {
		cap = 32
	}
	return &Backtrace{entries: make([]btEntry, cap), cap: cap}
}

// add appends e to the ring, recording a drop count once full.
func (b *Backtrace) add(e btEntry) {
	if b.len < b.cap {
		b.entries[(b.start+b.len)%b.cap] = e
		b.len++
		return
	}
	b.entries[b.start] = e
	b.start = (b.start + 1) % b.cap
	b.dropped++
}

// Print writes the backtrace, most recent call first, to w. Each frame
// prints its form, prefixed with "file:line:col:" when a source location
// was recorded, and, when the frame was a macro call, a second line
// showing the form it expanded to. If older frames were evicted from the
// ring, a final line gives their number.
func (b *Backtrace) Print(w io.Writer) error {
	ew := errio.New(w)
	for i := b.len - 1; i >= 0; i-- {
		e := b.entries[(b.start+i)%b.cap]
		if e.loc != nil {
			fmt.Fprintf(ew, "  at %s:%d:%d: %s\n", e.loc.File, e.loc.Line, e.loc.Pos, e.label)
		} else {
			fmt.Fprintf(ew, "  at %s\n", e.label)
		}
		if e.expanded != "" {
			fmt.Fprintf(ew, "    expanded to: %s\n", e.expanded)
		}
	}
	if b.dropped > 0 {
		fmt.Fprintf(ew, "  ...(%d earlier calls dropped)...\n", b.dropped)
	}
	return ew.Err
}

// ErrorState is the live error: cheax's own exception object, distinct
// from a Go error. Message is a plain string for host convenience;
// MessageValue is the same text as a cheax String, which is what gets
// bound by a catch clause's error-message pattern and is why it must
// stay a GC root while the error is live (see gc.go's mark).
type ErrorState struct {
	Code         int
	Message      string
	MessageValue Value
	Backtrace    *Backtrace
}

// langError is the Go-level error value used to unwind the Go call stack
// once a cheax-level error has been thrown; it is never meant to leave
// this package except through Perror/ErrorState inspection.
type langError struct {
	state *ErrorState
}

func (e *langError) Error() string {
	return fmt.Sprintf("%s: %s", errName(e.state.Code), e.state.Message)
}

func errName(code int) string {
	if n, ok := builtinErrNames[code]; ok {
		return n
	}
	return fmt.Sprintf("error %d", code)
}

// asLangError extracts the *ErrorState from err if err originated from
// vm.throw, for use by a catch clause.
func asLangError(err error) (*ErrorState, bool) {
	le, ok := err.(*langError)
	if !ok {
		return nil, false
	}
	return le.state, true
}

// AsErrorState is the host-facing equivalent of asLangError: it extracts
// the *ErrorState a Go error carries if it originated from this VM's
// throw/Throw path, letting embedding code inspect the code and message
// of an error returned from Eval/Read/Apply without string-matching
// Error().
func AsErrorState(err error) (*ErrorState, bool) {
	return asLangError(err)
}

// throw sets vm's live error state and returns the Go error that
// propagates it up the call stack. Constructing the message string as a
// cheax Value is best-effort: if that allocation itself fails (extremely
// unlikely, and impossible for ENOMEM since gc.oom bypasses the ceiling),
// MessageValue falls back to Nil.
func (vm *VM) throw(code int, msg string) error {
	msgVal, err := vm.NewString(msg)
	if err != nil {
		msgVal = Nil()
	}
	st := &ErrorState{Code: code, Message: msg, MessageValue: msgVal, Backtrace: newBacktrace(vm.backtraceDepth)}
	vm.err = st
	return &langError{state: st}
}

// throwf is throw with fmt.Sprintf-style formatting.
func (vm *VM) throwf(code int, format string, args ...interface{}) error {
	return vm.throw(code, fmt.Sprintf(format, args...))
}

// addBt appends a backtrace frame for expr to the current error's
// backtrace, if any error is currently live. The evaluator calls this
// while unwinding each stack frame after a call returns an error. When
// expr carries an original-form back-pointer (set by Eval when it
// macroexpanded expr before evaluating it), the frame records the
// original form's text and source location, plus the expanded form's
// text as a second line, per spec section 4.9.
func (vm *VM) addBt(expr Value) {
	if vm.err == nil {
		return
	}
	e := btEntry{label: vm.ReprString(expr)}
	if orig, ok := expr.Orig(); ok {
		e.label = vm.ReprString(orig)
		e.loc = orig.Loc()
		e.expanded = vm.ReprString(expr)
	} else {
		e.loc = expr.Loc()
	}
	vm.err.Backtrace.add(e)
}

// ClearErrno clears the live error state, as a catch clause does once it
// has captured the error it wants to handle.
func (vm *VM) ClearErrno() {
	vm.err = nil
}

// Errno returns the currently live error state, or nil if none.
func (vm *VM) Errno() *ErrorState {
	return vm.err
}

// Throw is the host-facing equivalent of the language-level (throw code
// msg) form: set an error state and return the Go error that represents
// it so host code written against the API can propagate it with a plain
// `return err`.
func (vm *VM) Throw(code int, msg string) error {
	return vm.throw(code, msg)
}

// Throwf is Throw with formatting.
func (vm *VM) Throwf(code int, format string, args ...interface{}) error {
	return vm.throwf(code, format, args...)
}

// Perror prints err (which should have originated from this VM) to w in
// cheax's traditional "code: message" plus backtrace form.
func (vm *VM) Perror(w io.Writer, err error) error {
	ew := errio.New(w)
	st, ok := asLangError(err)
	if !ok {
		fmt.Fprintf(ew, "error: %s\n", err)
		return ew.Err
	}
	fmt.Fprintf(ew, "%s: %s\n", errName(st.Code), st.Message)
	if ew.Err != nil {
		return ew.Err
	}
	return st.Backtrace.Print(w)
}

// NewErrorCode registers a new user error code under name, starting at
// USER0, and returns it. Registering the same name twice returns the
// existing code.
func (vm *VM) NewErrorCode(name string) int {
	if code, ok := vm.errNamesRev[name]; ok {
		return code
	}
	code := vm.nextErrCode
	vm.nextErrCode++
	vm.errNames[code] = name
	vm.errNamesRev[name] = code
	return code
}

// FindErrorCode looks up a previously registered (built-in or user) error
// code by name.
func (vm *VM) FindErrorCode(name string) (int, bool) {
	if code, ok := vm.errNamesRev[name]; ok {
		return code, true
	}
	for code, n := range builtinErrNames {
		if n == name {
			return code, true
		}
	}
	return 0, false
}

// ErrorCodeName returns the registered name for code, if any.
func (vm *VM) ErrorCodeName(code int) string {
	if n, ok := vm.errNames[code]; ok {
		return n
	}
	return errName(code)
}
