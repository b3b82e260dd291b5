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

// quasiquote expands form (the content wrapped by a single backquote) at
// nesting level depth, which starts at 1 for the outermost backquote and
// increases for each backquote nested inside. A comma at depth 1
// evaluates its inner form in env; at depth>1 it only peels off one level
// of quoting and recurses, leaving the comma in place, so that a nested
// backquote's own commas are the ones that eventually fire.
func (vm *VM) quasiquote(form Value, env *envFrame, depth int) (Value, error) {
	switch form.Kind() {
	case KComma:
		if depth == 1 {
			return vm.Eval(form.Inner(), env)
		}
		inner, err := vm.quasiquote(form.Inner(), env, depth-1)
		if err != nil {
			return Nil(), err
		}
		return vm.NewComma(inner)

	case KSplice:
		if depth == 1 {
			return Nil(), vm.throw(EEVAL, ",@ not valid outside a list context")
		}
		inner, err := vm.quasiquote(form.Inner(), env, depth-1)
		if err != nil {
			return Nil(), err
		}
		return vm.NewSplice(inner)

	case KBackquote:
		inner, err := vm.quasiquote(form.Inner(), env, depth+1)
		if err != nil {
			return Nil(), err
		}
		return vm.NewBackquote(inner)

	case KQuote:
		// Unlike backquote, a plain quote does not add a nesting level:
		// a comma under it still fires at the enclosing backquote's
		// depth. Only the rewrap differs.
		inner, err := vm.quasiquote(form.Inner(), env, depth)
		if err != nil {
			return Nil(), err
		}
		return vm.NewQuote(inner)

	case KPair:
		return vm.quasiquoteList(form, env, depth)

	default:
		return form, nil
	}
}

// quasiquoteList rebuilds a list, splicing in the contents of any ,@
// element found at this nesting level.
func (vm *VM) quasiquoteList(form Value, env *envFrame, depth int) (Value, error) {
	if form.Kind() != KPair {
		return vm.quasiquote(form, env, depth)
	}
	head := form.Car()
	if head.Kind() == KSplice && depth == 1 {
		spliced, err := vm.Eval(head.Inner(), env)
		if err != nil {
			return Nil(), err
		}
		rest, err := vm.quasiquoteList(form.Cdr(), env, depth)
		if err != nil {
			return Nil(), err
		}
		return appendList(vm, spliced, rest)
	}
	carVal, err := vm.quasiquote(head, env, depth)
	if err != nil {
		return Nil(), err
	}
	cdrVal, err := vm.quasiquoteList(form.Cdr(), env, depth)
	if err != nil {
		return Nil(), err
	}
	return vm.Cons(carVal, cdrVal)
}

// appendList conses a copy of the proper list prefix onto tail. It is
// used only to splice ,@ results into a surrounding quasiquote list.
func appendList(vm *VM, prefix, tail Value) (Value, error) {
	if prefix.IsNil() {
		return tail, nil
	}
	if prefix.Kind() != KPair {
		return Nil(), vm.throw(EEVAL, ",@ target did not evaluate to a list")
	}
	rest, err := appendList(vm, prefix.Cdr(), tail)
	if err != nil {
		return Nil(), err
	}
	return vm.Cons(prefix.Car(), rest)
}
