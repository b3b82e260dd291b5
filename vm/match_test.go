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

func TestMatchFullVariadicParams(t *testing.T) {
	i := newTestVM(t)
	mustReadEval(t, i, "(def f (fn args (+ (car args) (car (cdr args)))))")
	v := mustReadEval(t, i, "(f 10 20 30)")
	if v.Int() != 30 {
		t.Fatalf("got %v, want 30", i.ReprString(v))
	}
}

func TestMatchDottedRestParams(t *testing.T) {
	i := newTestVM(t)
	mustReadEval(t, i, "(def f (fn (a : rest) (+ a (car rest))))")
	v := mustReadEval(t, i, "(f 1 2 3)")
	if v.Int() != 3 {
		t.Fatalf("got %v, want 3", i.ReprString(v))
	}
}

func TestMatchDottedRestEvaluatesEachArg(t *testing.T) {
	i := newTestVM(t)
	mustReadEval(t, i, "(def f (fn (a : rest) rest))")
	v := mustReadEval(t, i, "(f 1 (+ 1 1) (+ 2 2))")
	if v.Kind() != vm.KPair {
		t.Fatalf("rest not bound to a list: %v", i.ReprString(v))
	}
	if v.Car().Int() != 2 || v.Cdr().Car().Int() != 4 {
		t.Fatalf("rest args not individually evaluated: %v", i.ReprString(v))
	}
}

func TestMatchArityMismatch(t *testing.T) {
	i := newTestVM(t)
	mustReadEval(t, i, "(def f (fn (a b) (+ a b)))")
	evalErr(t, i, "(f 1)")
	evalErr(t, i, "(f 1 2 3)")
}

func TestMatchCaseLiteralEquivalence(t *testing.T) {
	i := newTestVM(t)
	v := mustReadEval(t, i, `(case "hi" ("hi" 1) (else 0))`)
	if v.Int() != 1 {
		t.Fatalf("got %v, want 1", i.ReprString(v))
	}
}

func TestMatchCaseWildcard(t *testing.T) {
	i := newTestVM(t)
	v := mustReadEval(t, i, `(case 123 (_ 99))`)
	if v.Int() != 99 {
		t.Fatalf("got %v, want 99", i.ReprString(v))
	}
}
