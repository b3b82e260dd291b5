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

package vm_test

import (
	"strings"
	"testing"

	"github.com/db47h/cheax/vm"
)

func TestReaderIntLiterals(t *testing.T) {
	i := newTestVM(t)
	cases := []struct {
		src  string
		want int64
	}{
		{"42", 42},
		{"-42", -42},
		{"0x2A", 42},
		{"0b101010", 42},
		{"052", 42},
	}
	for _, c := range cases {
		v, _, err := i.ReadStr(c.src)
		if err != nil {
			t.Fatalf("%s: %v", c.src, err)
		}
		if v.Kind() != vm.KInt || v.Int() != c.want {
			t.Errorf("%s: got %v, want %d", c.src, i.ReprString(v), c.want)
		}
	}
}

func TestReaderDoubleLiterals(t *testing.T) {
	i := newTestVM(t)
	cases := []struct {
		src  string
		want float64
	}{
		{"1.5", 1.5},
		{"1e3", 1000},
		{"1.0", 1.0},
	}
	for _, c := range cases {
		v, _, err := i.ReadStr(c.src)
		if err != nil {
			t.Fatalf("%s: %v", c.src, err)
		}
		if v.Kind() != vm.KDouble || v.Double() != c.want {
			t.Errorf("%s: got %v, want %v", c.src, i.ReprString(v), c.want)
		}
	}
}

func TestReaderIntNotDouble(t *testing.T) {
	i := newTestVM(t)
	v, _, err := i.ReadStr("123")
	if err != nil {
		t.Fatalf("123: %v", err)
	}
	if v.Kind() != vm.KInt {
		t.Fatalf("123 parsed as %v, want an int", i.ReprString(v))
	}
}

func TestReaderStringEscapes(t *testing.T) {
	i := newTestVM(t)
	v, _, err := i.ReadStr(`"a\tb\nc\x41é"`)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if v.Kind() != vm.KString {
		t.Fatalf("got %v, want a string", i.ReprString(v))
	}
	got := v.String_()
	want := "a\tb\nc" + "A" + "é"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestReaderBoolLiterals(t *testing.T) {
	i := newTestVM(t)
	v, _, err := i.ReadStr("true")
	if err != nil || v.Kind() != vm.KBool || !v.Bool() {
		t.Fatalf("true: got %v, err %v", i.ReprString(v), err)
	}
	v, _, err = i.ReadStr("false")
	if err != nil || v.Kind() != vm.KBool || v.Bool() {
		t.Fatalf("false: got %v, err %v", i.ReprString(v), err)
	}
}

func TestReaderListAndDottedTail(t *testing.T) {
	i := newTestVM(t)
	v, _, err := i.ReadStr("(1 2 3)")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if v.Kind() != vm.KPair || v.Car().Int() != 1 {
		t.Fatalf("got %v", i.ReprString(v))
	}

	v, _, err = i.ReadStr("(1 2 : 3)")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if v.Car().Int() != 1 || v.Cdr().Car().Int() != 2 || v.Cdr().Cdr().Int() != 3 {
		t.Fatalf("dotted tail malformed: %v", i.ReprString(v))
	}
}

func TestReaderQuoteBackquoteComma(t *testing.T) {
	i := newTestVM(t)
	v, _, err := i.ReadStr("'x")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if v.Kind() != vm.KQuote {
		t.Fatalf("got %v, want a quote", i.ReprString(v))
	}

	v, _, err = i.ReadStr("`(1 ,x ,@y)")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if v.Kind() != vm.KBackquote {
		t.Fatalf("got %v, want a backquote", i.ReprString(v))
	}
}

func TestReaderUnexpectedCloseParen(t *testing.T) {
	i := newTestVM(t)
	_, _, err := i.ReadStr(")")
	if err == nil {
		t.Fatalf("expected an error for a stray ')'")
	}
}

func TestReaderUnterminatedList(t *testing.T) {
	i := newTestVM(t)
	_, _, err := i.ReadStr("(1 2")
	if err == nil {
		t.Fatalf("expected an error for an unterminated list")
	}
}

func TestReaderSkipShebang(t *testing.T) {
	i := newTestVM(t)
	r := i.NewReader(strings.NewReader("#!/usr/bin/env cheax\n(+ 1 2)"), "<test>")
	if err := r.SkipShebang(); err != nil {
		t.Fatalf("SkipShebang: %v", err)
	}
	v, err := r.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if v.Kind() != vm.KPair {
		t.Fatalf("got %v, want a list", i.ReprString(v))
	}
}

func TestReaderComments(t *testing.T) {
	i := newTestVM(t)
	v, _, err := i.ReadStr("; a comment\n42")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if v.Int() != 42 {
		t.Fatalf("got %v, want 42", i.ReprString(v))
	}
}
