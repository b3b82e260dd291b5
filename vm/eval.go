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

// Tail lets a SpecialFunc or closure body hand the outer Eval loop
// another expression to evaluate in place, instead of recursing. Every
// user-visible control form (if, let, cond, and, or, ...) that evaluates
// one of its own sub-forms "in tail position" returns a *Tail for that
// sub-form rather than calling vm.Eval on it directly, which is what
// keeps a long chain of such forms from growing the Go call stack.
type Tail struct {
	Expr Value
	Env  *envFrame
}

const defaultMaxStackDepth = 4096

// Eval evaluates expr in env, looping internally on every tail call
// instead of recursing, so self- and mutual-recursion through ordinary
// function calls and control forms runs in constant Go stack space. Only
// genuinely non-tail sub-evaluations (an argument, a condition, a
// non-final body form) recurse by calling Eval again, and it is exactly
// that recursion this function's stack-depth guard bounds.
func (vm *VM) Eval(expr Value, env *envFrame) (Value, error) {
	vm.callDepth++
	defer func() { vm.callDepth-- }()
	if vm.callDepth > vm.maxStackDepth {
		return Nil(), vm.throw(ESTACK, "stack depth exceeded")
	}

	for {
		switch expr.Kind() {
		case KIdent:
			id := expr.obj.(*identObj)
			sym := env.lookup(id)
			if sym == nil {
				return Nil(), vm.throwf(ENOSYM, "no such symbol: %s", id.name)
			}
			return sym.get_(vm)

		case KPair:
			if expanded, err := vm.MacroExpand(expr, env); err != nil {
				return Nil(), err
			} else if !Eq(expanded, expr) {
				if expanded.Kind() == KPair {
					expanded.SetOrig(expr)
				}
				expr = expanded
				continue
			}

			head := expr.Car()
			args := expr.Cdr()

			var callee Value
			if head.Kind() == KIdent {
				id := head.obj.(*identObj)
				if sym := env.lookup(id); sym != nil {
					v, err := sym.get_(vm)
					if err != nil {
						return Nil(), err
					}
					callee = v
				} else if so, ok := vm.specialOps[id]; ok {
					callee = so
				} else {
					return Nil(), vm.throwf(ENOSYM, "no such symbol: %s", id.name)
				}
			} else {
				v, err := vm.Eval(head, env)
				if err != nil {
					return Nil(), err
				}
				callee = v
			}

			if callee.Kind() == KSpecialOp {
				if pp := callee.SpecialOpPreproc(); pp != nil && !expr.preprocessed() {
					if _, err := pp(vm, args); err != nil {
						vm.addBt(expr)
						return Nil(), err
					}
					expr.setPreprocessed()
				}
			}

			val, tail, err := vm.dispatch(callee, args, env, true)
			if err != nil {
				vm.addBt(expr)
				return Nil(), err
			}
			if tail == nil {
				return val, nil
			}
			if vm.noTailcall {
				return vm.Eval(tail.Expr, tail.Env)
			}
			expr, env = tail.Expr, tail.Env
			continue

		case KQuote:
			return expr.Inner(), nil

		case KBackquote:
			return vm.quasiquote(expr.Inner(), env, 1)

		case KComma, KSplice:
			return Nil(), vm.throw(EEVAL, "comma/splice used outside of quasiquote")

		default:
			return expr, nil
		}
	}
}

// dispatch applies callee to args, once, returning either a finished
// value or a Tail for the outer loop to continue with. When evalArgs is
// true, args is an unevaluated argument-form list (the normal call-site
// path); when false, args is already a list of evaluated Values (the
// Apply path).
func (vm *VM) dispatch(callee Value, args Value, callerEnv *envFrame, evalArgs bool) (Value, *Tail, error) {
	switch callee.Kind() {
	case KFunc:
		callFrame := newFrame(callee.FuncEnv())
		ok, err := vm.Match(callee.FuncParams(), args, callFrame, evalArgs, callerEnv)
		if err != nil {
			return Nil(), nil, err
		}
		if !ok {
			return Nil(), nil, vm.throwf(EMATCH, "arguments do not match parameters of %s", describeCallee(callee))
		}
		body := callee.FuncBody()
		if body.IsNil() {
			callFrame.pop()
			return Nil(), nil, nil
		}
		for body.Cdr().Kind() == KPair {
			if _, err := vm.Eval(body.Car(), callFrame); err != nil {
				return Nil(), nil, err
			}
			body = body.Cdr()
		}
		return Nil(), &Tail{Expr: body.Car(), Env: callFrame}, nil

	case KExtFunc:
		formArgs := args
		if evalArgs {
			ev, err := evalEachArg(vm, args, callerEnv)
			if err != nil {
				return Nil(), nil, err
			}
			formArgs = ev
		}
		v, err := callee.ExtFunc()(vm, formArgs)
		return v, nil, err

	case KSpecialOp:
		formArgs := args
		if !evalArgs {
			formArgs = quoteEach(vm, args)
			if pp := callee.SpecialOpPreproc(); pp != nil {
				if _, err := pp(vm, formArgs); err != nil {
					return Nil(), nil, err
				}
			}
		}
		v, tail, err := callee.SpecialOpFunc()(vm, formArgs, callerEnv)
		return v, tail, err

	case KType:
		v, err := vm.evalOneArg(args, callerEnv, evalArgs)
		if err != nil {
			return Nil(), nil, err
		}
		cast, err := vm.Cast(callee.TypeCode(), v)
		return cast, nil, err

	case KEnv:
		nameForm, err := vm.soleArg(args, callerEnv, evalArgs)
		if err != nil {
			return Nil(), nil, err
		}
		if nameForm.Kind() != KIdent {
			return Nil(), nil, vm.throw(ETYPE, "environment call expects an identifier")
		}
		sym := callee.Env().lookup(nameForm.obj.(*identObj))
		if sym == nil {
			return Nil(), nil, vm.throwf(ENOSYM, "no such symbol: %s", nameForm.IdentName())
		}
		v, err := sym.get_(vm)
		return v, nil, err

	default:
		return Nil(), nil, vm.throwf(ETYPE, "%s is not callable", callee.Kind())
	}
}

func describeCallee(v Value) string {
	if v.Kind() == KFunc && v.FuncName() != "" {
		return v.FuncName()
	}
	return "<function>"
}

// evalOneArg evaluates (or, if evalArgs is false, simply takes) the first
// element of a single-argument form list.
func (vm *VM) evalOneArg(args Value, env *envFrame, evalArgs bool) (Value, error) {
	if args.Kind() != KPair {
		return Nil(), vm.throw(EEVAL, "expected exactly one argument")
	}
	if !evalArgs {
		return args.Car(), nil
	}
	return vm.Eval(args.Car(), env)
}

// soleArg is evalOneArg without forcing evaluation, used by the KEnv call
// path where the argument is an identifier name, not an expression.
func (vm *VM) soleArg(args Value, env *envFrame, evalArgs bool) (Value, error) {
	if args.Kind() != KPair {
		return Nil(), vm.throw(EEVAL, "expected exactly one argument")
	}
	return args.Car(), nil
}

// evalEachArg evaluates every element of an unevaluated argument-form
// list in turn, left to right, building a new list of the resulting
// values — the eager evaluation order a native external function
// expects of its arguments, matching an ordinary applicative-order call.
func evalEachArg(vm *VM, args Value, env *envFrame) (Value, error) {
	if args.Kind() != KPair {
		return args, nil
	}
	car, err := vm.Eval(args.Car(), env)
	if err != nil {
		return Nil(), err
	}
	cdr, err := evalEachArg(vm, args.Cdr(), env)
	if err != nil {
		return Nil(), err
	}
	return vm.Cons(car, cdr)
}

// quoteEach wraps every element of an already-evaluated argument list in
// a Quote, so that a special operation, which evaluates its own
// unevaluated argument forms (the normal call-site contract), sees each
// already-computed Value pass through unchanged when invoked via Apply
// instead. External functions need no such wrapping: they always receive
// evaluated arguments.
func quoteEach(vm *VM, args Value) Value {
	if args.Kind() != KPair {
		return args
	}
	car, err := vm.NewQuote(args.Car())
	if err != nil {
		return args
	}
	cdr := quoteEach(vm, args.Cdr())
	v, err := vm.Cons(car, cdr)
	if err != nil {
		return args
	}
	return v
}

// Apply calls fn with an already-evaluated argument list args, running
// any resulting tail continuation to completion.
func (vm *VM) Apply(fn Value, args Value, env *envFrame) (Value, error) {
	val, tail, err := vm.dispatch(fn, args, env, false)
	if err != nil {
		return Nil(), err
	}
	if tail == nil {
		return val, nil
	}
	return vm.Eval(tail.Expr, tail.Env)
}
