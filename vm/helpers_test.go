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

// newTestVM builds a fresh interpreter with a minimal arithmetic and list
// vocabulary registered through DefFun/DefUnary, standing in for the
// prelude a real host links in; arithmetic and list primitives are
// explicitly out of scope for the interpreter core itself.
func newTestVM(t *testing.T) *vm.VM {
	t.Helper()
	i, err := vm.New()
	if err != nil {
		t.Fatalf("vm.New: %v", err)
	}
	t.Cleanup(func() { i.Close() })
	registerTestPrelude(t, i)
	return i
}

func registerTestPrelude(t *testing.T, i *vm.VM) {
	t.Helper()
	must := func(err error) {
		if err != nil {
			t.Fatalf("registering test builtin: %v", err)
		}
	}

	must(i.DefFun("+", func(m *vm.VM, args vm.Value) (vm.Value, error) {
		var sum int64
		for a := args; a.Kind() == vm.KPair; a = a.Cdr() {
			sum += a.Car().Int()
		}
		return vm.Int(sum), nil
	}))
	must(i.DefFun("-", func(m *vm.VM, args vm.Value) (vm.Value, error) {
		if args.Kind() != vm.KPair {
			return vm.Int(0), nil
		}
		acc := args.Car().Int()
		rest := args.Cdr()
		if rest.Kind() != vm.KPair {
			return vm.Int(-acc), nil
		}
		for a := rest; a.Kind() == vm.KPair; a = a.Cdr() {
			acc -= a.Car().Int()
		}
		return vm.Int(acc), nil
	}))
	must(i.DefFun("*", func(m *vm.VM, args vm.Value) (vm.Value, error) {
		acc := int64(1)
		for a := args; a.Kind() == vm.KPair; a = a.Cdr() {
			acc *= a.Car().Int()
		}
		return vm.Int(acc), nil
	}))
	must(i.DefFun("=", func(m *vm.VM, args vm.Value) (vm.Value, error) {
		if args.Kind() != vm.KPair || args.Cdr().Kind() != vm.KPair {
			return vm.Bool(false), nil
		}
		return vm.Bool(vm.Equiv(args.Car(), args.Cdr().Car())), nil
	}))
	must(i.DefFun("<", func(m *vm.VM, args vm.Value) (vm.Value, error) {
		if args.Kind() != vm.KPair || args.Cdr().Kind() != vm.KPair {
			return vm.Bool(false), nil
		}
		return vm.Bool(args.Car().Int() < args.Cdr().Car().Int()), nil
	}))
	must(i.DefUnary("not", func(m *vm.VM, v vm.Value) (vm.Value, error) {
		truthy := !v.IsNil()
		if v.Kind() == vm.KBool {
			truthy = v.Bool()
		}
		return vm.Bool(!truthy), nil
	}))
	must(i.DefUnary("car", func(m *vm.VM, v vm.Value) (vm.Value, error) {
		if v.Kind() != vm.KPair {
			return vm.Nil(), m.Throw(vm.ETYPE, "car expects a list")
		}
		return v.Car(), nil
	}))
	must(i.DefUnary("cdr", func(m *vm.VM, v vm.Value) (vm.Value, error) {
		if v.Kind() != vm.KPair {
			return vm.Nil(), m.Throw(vm.ETYPE, "cdr expects a list")
		}
		return v.Cdr(), nil
	}))
	must(i.DefFun("cons", func(m *vm.VM, args vm.Value) (vm.Value, error) {
		if args.Kind() != vm.KPair || args.Cdr().Kind() != vm.KPair {
			return vm.Nil(), m.Throw(vm.EEVAL, "cons expects two arguments")
		}
		return m.Cons(args.Car(), args.Cdr().Car())
	}))
}

// mustReadEval reads and evaluates every top-level form of src, returning
// the value of the last one.
func mustReadEval(t *testing.T, i *vm.VM, src string) vm.Value {
	t.Helper()
	v, err := i.ReadEval(strings.NewReader(src), "<test>")
	if err != nil {
		t.Fatalf("eval %q: %+v", src, err)
	}
	return v
}

// evalErr reads and evaluates src, expecting an error, and returns it.
func evalErr(t *testing.T, i *vm.VM, src string) error {
	t.Helper()
	_, err := i.ReadEval(strings.NewReader(src), "<test>")
	if err == nil {
		t.Fatalf("eval %q: expected an error, got none", src)
	}
	return err
}
