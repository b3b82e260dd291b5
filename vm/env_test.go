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
	"testing"

	"github.com/db47h/cheax/vm"
)

func TestLexicalScopingShadowsOuter(t *testing.T) {
	i := newTestVM(t)
	mustReadEval(t, i, "(def x 1)")
	v := mustReadEval(t, i, "(let ((x 2)) x)")
	if v.Int() != 2 {
		t.Fatalf("inner let: got %v, want 2", i.ReprString(v))
	}
	v = mustReadEval(t, i, "x")
	if v.Int() != 1 {
		t.Fatalf("outer x leaked into: got %v, want 1", i.ReprString(v))
	}
}

func TestClosureCapturesDefiningEnv(t *testing.T) {
	i := newTestVM(t)
	mustReadEval(t, i, "(def make-adder (fn (n) (fn (x) (+ x n))))")
	mustReadEval(t, i, "(def add5 (make-adder 5))")
	v := mustReadEval(t, i, "(add5 10)")
	if v.Int() != 15 {
		t.Fatalf("got %v, want 15", i.ReprString(v))
	}
}

func TestSetBangMutatesOuterBinding(t *testing.T) {
	i := newTestVM(t)
	mustReadEval(t, i, "(def counter 0)")
	mustReadEval(t, i, "(def bump (fn () (set! counter (+ counter 1))))")
	mustReadEval(t, i, "(bump)")
	mustReadEval(t, i, "(bump)")
	v := mustReadEval(t, i, "counter")
	if v.Int() != 2 {
		t.Fatalf("got %v, want 2", i.ReprString(v))
	}
}

func TestSyncedSetterOnlyBindingRejectsRead(t *testing.T) {
	i := newTestVM(t)
	written := vm.Nil()
	err := i.DefSym("write-only", nil, func(m *vm.VM, v vm.Value) error {
		written = v
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("DefSym: %v", err)
	}
	mustReadEval(t, i, "(set! write-only 99)")
	if written.Int() != 99 {
		t.Fatalf("setter never ran: got %v", i.ReprString(written))
	}
	err = evalErr(t, i, "write-only")
	st, ok := vm.AsErrorState(err)
	if !ok {
		t.Fatalf("expected a language error, got %v", err)
	}
	if st.Code != vm.EWRITEONLY {
		t.Fatalf("got error code %d (%s), want EWRITEONLY", st.Code, i.ErrorCodeName(st.Code))
	}
}

func TestSyncedGetterOnlyBindingRejectsWrite(t *testing.T) {
	i := newTestVM(t)
	err := i.DefSym("read-only", func(m *vm.VM) (vm.Value, error) { return vm.Int(1), nil }, nil, nil)
	if err != nil {
		t.Fatalf("DefSym: %v", err)
	}
	v := mustReadEval(t, i, "read-only")
	if v.Int() != 1 {
		t.Fatalf("got %v, want 1", i.ReprString(v))
	}
	err = evalErr(t, i, "(set! read-only 2)")
	st, ok := vm.AsErrorState(err)
	if !ok {
		t.Fatalf("expected a language error, got %v", err)
	}
	if st.Code != vm.EREADONLY {
		t.Fatalf("got error code %d (%s), want EREADONLY", st.Code, i.ErrorCodeName(st.Code))
	}
}

func TestRedefinitionWithinSameFrameFails(t *testing.T) {
	i := newTestVM(t)
	evalErr(t, i, "(let ((x 1)) (def x 2) x)")
}

func TestNestedLetShadowsOuterLet(t *testing.T) {
	i := newTestVM(t)
	v := mustReadEval(t, i, "(let ((x 1)) (let ((x 2)) x))")
	if v.Int() != 2 {
		t.Fatalf("got %v, want 2", i.ReprString(v))
	}
	v = mustReadEval(t, i, "(let ((x 1)) (+ (let ((x 2)) x) x))")
	if v.Int() != 3 {
		t.Fatalf("got %v, want 3", i.ReprString(v))
	}
}
