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

// Match attempts to destructure val against pattern pat, binding every
// identifier pat contains into target. Matching is all-or-nothing: on
// failure target is left untouched, even if part of the pattern already
// matched before the failing sub-pattern was reached.
//
// When evalNodes is true (function application, as opposed to a case/let
// pattern matched against an already-evaluated scrutinee), each leaf of
// pat that is not itself a nested list pattern has its corresponding node
// in val evaluated in evalEnv before binding or comparison; the pair
// structure of pat is always walked against the unevaluated structure of
// val, so a nested destructuring pattern still needs val's shape to
// literally mirror pat's shape before any evaluation happens.
func (vm *VM) Match(pat, val Value, target *envFrame, evalNodes bool, evalEnv *envFrame) (bool, error) {
	binds := make(map[*identObj]Value)
	var ok bool
	var err error
	if pat.Kind() == KPair {
		ok, err = vm.matchInto(pat, val, evalNodes, evalEnv, binds)
	} else {
		// pat is not itself a list: the whole value being matched is a
		// single unit to bind or compare, the variadic "(fn args body)"
		// idiom being the common case. val here is the full unevaluated
		// argument spine (or an already-realized scrutinee, when
		// evalNodes is false), never a single sub-form, so it takes the
		// same rest-realization matchList's dotted tail does.
		var rest Value
		rest, err = vm.realizeRest(val, evalNodes, evalEnv)
		if err == nil {
			ok, err = vm.matchInto(pat, rest, false, nil, binds)
		}
	}
	if err != nil || !ok {
		return false, err
	}
	for id, v := range binds {
		if err := target.define(vm, id, v, true); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (vm *VM) matchInto(pat, val Value, evalNodes bool, evalEnv *envFrame, binds map[*identObj]Value) (bool, error) {
	switch pat.Kind() {
	case KIdent:
		if pat.IdentName() == "_" {
			return true, nil
		}
		v, err := vm.resolveLeaf(val, evalNodes, evalEnv)
		if err != nil {
			return false, err
		}
		binds[pat.obj.(*identObj)] = v
		return true, nil

	case KQuote:
		// A quoted sub-pattern is a literal to compare, never evaluated
		// and never destructured further.
		return Equiv(pat.Inner(), val), nil

	case KNil:
		v, err := vm.resolveLeaf(val, evalNodes, evalEnv)
		if err != nil {
			return false, err
		}
		return v.IsNil(), nil

	case KPair:
		return vm.matchList(pat, val, evalNodes, evalEnv, binds)

	default:
		// Any other literal kind (int, double, bool, string, type, error
		// code, user pointer) matches by value equivalence.
		v, err := vm.resolveLeaf(val, evalNodes, evalEnv)
		if err != nil {
			return false, err
		}
		return Equiv(pat, v), nil
	}
}

// resolveLeaf evaluates val in evalEnv when evalNodes is set; otherwise it
// is returned unchanged.
func (vm *VM) resolveLeaf(val Value, evalNodes bool, evalEnv *envFrame) (Value, error) {
	if !evalNodes {
		return val, nil
	}
	return vm.Eval(val, evalEnv)
}

// matchList walks pat's pair spine against val's, honoring the ":"-headed
// rest marker: "(a b : rest)" binds a and b to the first two elements and
// rest to whatever tail remains, matching the same dotted-list convention
// the reader accepts.
func (vm *VM) matchList(pat, val Value, evalNodes bool, evalEnv *envFrame, binds map[*identObj]Value) (bool, error) {
	for pat.Kind() == KPair {
		head := pat.Car()
		if head.Kind() == KIdent && head.IdentName() == ":" {
			restPat := pat.Cdr()
			if restPat.Kind() != KPair {
				return false, vm.throw(EMATCH, "malformed rest pattern after ':'")
			}
			rest, err := vm.realizeRest(val, evalNodes, evalEnv)
			if err != nil {
				return false, err
			}
			return vm.matchInto(restPat.Car(), rest, false, nil, binds)
		}
		if val.Kind() != KPair {
			return false, nil
		}
		ok, err := vm.matchInto(head, val.Car(), evalNodes, evalEnv, binds)
		if err != nil || !ok {
			return false, err
		}
		pat = pat.Cdr()
		val = val.Cdr()
	}
	rest, err := vm.realizeRest(val, evalNodes, evalEnv)
	if err != nil {
		return false, err
	}
	return vm.matchInto(pat, rest, false, nil, binds)
}

// realizeRest turns a trailing run of unevaluated argument forms into the
// value a dotted or ":"-marked rest parameter binds to: each form is
// evaluated in turn, left to right, same as an ordinary argument list
// (evalEachArg), rather than treating the whole remaining spine as a
// single callable expression. With evalNodes false (case/let matching
// against an already-realized scrutinee) val already holds values and is
// returned unchanged.
func (vm *VM) realizeRest(val Value, evalNodes bool, evalEnv *envFrame) (Value, error) {
	if !evalNodes {
		return val, nil
	}
	if val.Kind() != KPair {
		return vm.resolveLeaf(val, evalNodes, evalEnv)
	}
	return evalEachArg(vm, val, evalEnv)
}
