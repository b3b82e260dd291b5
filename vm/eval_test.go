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

func TestEvalInt(t *testing.T) {
	i := newTestVM(t)
	v := mustReadEval(t, i, "(+ 1 2 3)")
	if v.Kind() != vm.KInt || v.Int() != 6 {
		t.Fatalf("got %v, want 6", i.ReprString(v))
	}
}

func TestEvalLet(t *testing.T) {
	i := newTestVM(t)
	v := mustReadEval(t, i, "(let ((x 10) (y 32)) (+ x y))")
	if v.Kind() != vm.KInt || v.Int() != 42 {
		t.Fatalf("got %v, want 42", i.ReprString(v))
	}
}

func TestEvalIf(t *testing.T) {
	i := newTestVM(t)
	cases := []struct {
		src  string
		want int64
	}{
		{"(if true 1 2)", 1},
		{"(if false 1 2)", 2},
		{"(if () 1 2)", 2},
		{"(if (< 1 2) 1 2)", 1},
	}
	for _, c := range cases {
		v := mustReadEval(t, i, c.src)
		if v.Kind() != vm.KInt || v.Int() != c.want {
			t.Errorf("%s: got %v, want %d", c.src, i.ReprString(v), c.want)
		}
	}
}

func TestEvalCondAndOr(t *testing.T) {
	i := newTestVM(t)
	v := mustReadEval(t, i, `(cond ((< 2 1) 100) ((< 1 2) 200) (else 300))`)
	if v.Int() != 200 {
		t.Fatalf("cond: got %v, want 200", i.ReprString(v))
	}
	v = mustReadEval(t, i, "(and 1 2 3)")
	if v.Int() != 3 {
		t.Fatalf("and: got %v, want 3", i.ReprString(v))
	}
	v = mustReadEval(t, i, "(and 1 false 3)")
	if v.Kind() != vm.KBool || v.Bool() {
		t.Fatalf("and: got %v, want false", i.ReprString(v))
	}
	v = mustReadEval(t, i, "(or false () 7)")
	if v.Int() != 7 {
		t.Fatalf("or: got %v, want 7", i.ReprString(v))
	}
}

func TestEvalFnClosureAndRecursion(t *testing.T) {
	i := newTestVM(t)
	mustReadEval(t, i, `(def fact (fn (n) (if (< n 2) 1 (* n (fact (- n 1))))))`)
	v := mustReadEval(t, i, "(fact 10)")
	if v.Int() != 3628800 {
		t.Fatalf("fact(10): got %v, want 3628800", i.ReprString(v))
	}
}

func TestEvalTailCallDoesNotGrowStack(t *testing.T) {
	i := newTestVM(t)
	mustReadEval(t, i, `(def count (fn (n acc) (if (< n 1) acc (count (- n 1) (+ acc 1)))))`)
	v := mustReadEval(t, i, "(count 100000 0)")
	if v.Int() != 100000 {
		t.Fatalf("count: got %v, want 100000", i.ReprString(v))
	}
}

func TestEvalSetBang(t *testing.T) {
	i := newTestVM(t)
	mustReadEval(t, i, "(def x 1)")
	mustReadEval(t, i, "(set! x 41)")
	v := mustReadEval(t, i, "(+ x 1)")
	if v.Int() != 42 {
		t.Fatalf("got %v, want 42", i.ReprString(v))
	}
}

func TestEvalBegin(t *testing.T) {
	i := newTestVM(t)
	v := mustReadEval(t, i, "(begin (def x 1) (set! x 2) (+ x 40))")
	if v.Int() != 42 {
		t.Fatalf("got %v, want 42", i.ReprString(v))
	}
}

func TestEvalWhile(t *testing.T) {
	i := newTestVM(t)
	mustReadEval(t, i, `(def i 0)`)
	mustReadEval(t, i, `(def acc 0)`)
	mustReadEval(t, i, `(while (< i 5) (set! acc (+ acc i)) (set! i (+ i 1)))`)
	v := mustReadEval(t, i, "acc")
	if v.Int() != 10 {
		t.Fatalf("got %v, want 10", i.ReprString(v))
	}
}

func TestEvalCase(t *testing.T) {
	i := newTestVM(t)
	v := mustReadEval(t, i, `
		(case 2
		  (1 100)
		  (2 200)
		  (else 300))`)
	if v.Int() != 200 {
		t.Fatalf("case: got %v, want 200", i.ReprString(v))
	}
	v = mustReadEval(t, i, `(case 99 (1 100) (else 300))`)
	if v.Int() != 300 {
		t.Fatalf("case else: got %v, want 300", i.ReprString(v))
	}
}

func TestEvalCaseDestructuring(t *testing.T) {
	i := newTestVM(t)
	v := mustReadEval(t, i, `
		(case (cons 1 2)
		  ((a : b) (+ a b))
		  (else -1))`)
	if v.Int() != 3 {
		t.Fatalf("got %v, want 3", i.ReprString(v))
	}
}

func TestEvalDefmacro(t *testing.T) {
	i := newTestVM(t)
	mustReadEval(t, i, `(defmacro my-if (c t f) (list (quote cond) (list c t) (list (quote else) f)))`)
	mustReadEval(t, i, `(def list (fn args args))`)
	v := mustReadEval(t, i, `(my-if (< 1 2) 10 20)`)
	if v.Int() != 10 {
		t.Fatalf("got %v, want 10", i.ReprString(v))
	}
}

func TestEvalTryCatch(t *testing.T) {
	i := newTestVM(t)
	v := mustReadEval(t, i, `
		(try
		  (car 5)
		  (catch ETYPE e 123)
		  (finally ()))`)
	if v.Int() != 123 {
		t.Fatalf("got %v, want 123", i.ReprString(v))
	}
}

func TestEvalTryCatchWrongCodeRethrows(t *testing.T) {
	i := newTestVM(t)
	err := evalErr(t, i, `
		(try
		  (car 5)
		  (catch ENOSYM e 123))`)
	if err == nil {
		t.Fatalf("expected an error to propagate")
	}
}

func TestEvalTryFinallyAlwaysRuns(t *testing.T) {
	i := newTestVM(t)
	mustReadEval(t, i, "(def ran false)")
	evalErr(t, i, `
		(try
		  (car 5)
		  (finally (set! ran true)))`)
	v := mustReadEval(t, i, "ran")
	if v.Kind() != vm.KBool || !v.Bool() {
		t.Fatalf("finally did not run")
	}
}

func TestEvalUnboundSymbol(t *testing.T) {
	i := newTestVM(t)
	evalErr(t, i, "no-such-symbol")
}

func TestEvalNotCallable(t *testing.T) {
	i := newTestVM(t)
	evalErr(t, i, "(1 2 3)")
}

func TestEvalQuote(t *testing.T) {
	i := newTestVM(t)
	v := mustReadEval(t, i, "(quote (1 2 3))")
	if v.Kind() != vm.KPair {
		t.Fatalf("got %v, want a list", i.ReprString(v))
	}
	if v.Car().Int() != 1 || v.Cdr().Car().Int() != 2 {
		t.Fatalf("got %v", i.ReprString(v))
	}
}
