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

// registerBuiltins installs the core control-form special operations
// every cheax VM carries: quote, if, cond, and, or, let, fn, defmacro,
// def, set!, begin, while, case and try/catch/finally. Arithmetic, string and
// I/O primitives are deliberately not registered here: they belong to a
// prelude a host links in separately, not to the language core.
func registerBuiltins(vm *VM) error {
	forms := []struct {
		name    string
		fn      SpecialFunc
		preproc PreprocFunc
	}{
		{"quote", biQuote, preprocShape("quote", []patInstr{expr(""), nilEnd("expects exactly one argument")})},
		{"if", biIf, preprocShape("if", []patInstr{
			expr("missing condition"),
			expr("missing then-branch"),
			maybe(expr("")),
			nilEnd("too many arguments"),
		})},
		{"cond", biCond, nil},
		{"and", biAnd, nil},
		{"or", biOr, nil},
		{"let", biLet, preprocShape("let", []patInstr{node("missing bindings list"), seqRest()})},
		{"fn", biFn, preprocShape("fn", []patInstr{node("missing parameter list"), seqRest()})},
		{"defmacro", biDefmacro, preprocShape("defmacro", []patInstr{
			lit("missing macro name"), node("missing parameter list"), seqRest(),
		})},
		{"def", biDef, preprocShape("def", []patInstr{lit("missing name"), expr("missing value"), nilEnd("too many arguments")})},
		{"set!", biSet, preprocShape("set!", []patInstr{lit("missing name"), expr("missing value"), nilEnd("too many arguments")})},
		{"begin", biBegin, nil},
		{"while", biWhile, preprocShape("while", []patInstr{expr("missing condition"), seqRest()})},
		{"case", biCase, preprocShape("case", []patInstr{expr("missing scrutinee"), seqRest()})},
		{"try", biTry, nil},
	}
	for _, f := range forms {
		if err := vm.DefSyntax(f.name, f.fn, f.preproc); err != nil {
			return err
		}
	}

	if err := vm.DefFun("throw", biThrowFn); err != nil {
		return err
	}

	// Every built-in error code (EREAD, EVALUE, ...) is bound as a
	// constant in the global namespace, so language code can name one
	// directly, e.g. (throw EVALUE "oops") (spec section 8, scenario S5).
	for code, name := range builtinErrNames {
		id, err := vm.Ident(name)
		if err != nil {
			return err
		}
		iobj := id.obj.(*identObj)
		if err := vm.global.define(vm, iobj, ErrorCode(code), false); err != nil {
			return err
		}
		vm.global.syms[iobj].constant = true
	}
	return nil
}

// biThrowFn implements the language-level (throw code msg) call: code
// must be an error-code value; msg is used as-is when it is a string and
// as its printed representation otherwise, matching the host API's
// throw(code, msg) from spec section 6 exposed as an ordinary native
// function so scripts can raise their own errors the same way catch
// handlers observe them.
func biThrowFn(vm *VM, args Value) (Value, error) {
	if args.Kind() != KPair || args.Cdr().Kind() != KPair || !args.Cdr().Cdr().IsNil() {
		return Nil(), vm.throw(EEVAL, "throw expects exactly two arguments")
	}
	codeVal := args.Car()
	msgVal := args.Cdr().Car()
	if codeVal.Kind() != KError {
		return Nil(), vm.throw(ETYPE, "throw expects an error code as its first argument")
	}
	msg := ""
	if msgVal.Kind() == KString {
		msg = msgVal.String_()
	} else {
		msg = vm.ReprString(msgVal)
	}
	return Nil(), vm.throw(codeVal.ErrorCode(), msg)
}

// preprocShape wraps checkShape as a PreprocFunc.
func preprocShape(name string, prog []patInstr) PreprocFunc {
	return func(vm *VM, args Value) (Value, error) {
		return args, vm.checkShape(name, args, prog)
	}
}

func biQuote(vm *VM, args Value, env *envFrame) (Value, *Tail, error) {
	return args.Car(), nil, nil
}

func biIf(vm *VM, args Value, env *envFrame) (Value, *Tail, error) {
	cond, err := vm.Eval(args.Car(), env)
	if err != nil {
		return Nil(), nil, err
	}
	rest := args.Cdr()
	if isTruthy(cond) {
		return Nil(), &Tail{Expr: rest.Car(), Env: env}, nil
	}
	elseForm := rest.Cdr()
	if elseForm.Kind() != KPair {
		return Nil(), nil, nil
	}
	return Nil(), &Tail{Expr: elseForm.Car(), Env: env}, nil
}

func isTruthy(v Value) bool {
	if v.Kind() == KBool {
		return v.Bool()
	}
	return !v.IsNil()
}

func biCond(vm *VM, args Value, env *envFrame) (Value, *Tail, error) {
	for args.Kind() == KPair {
		clause := args.Car()
		if clause.Kind() != KPair {
			return Nil(), nil, vm.throw(EEVAL, "malformed cond clause")
		}
		test := clause.Car()
		isElse := test.Kind() == KIdent && test.IdentName() == "else"
		var cond Value
		var err error
		if isElse {
			cond = Bool(true)
		} else {
			cond, err = vm.Eval(test, env)
			if err != nil {
				return Nil(), nil, err
			}
		}
		if isTruthy(cond) {
			return evalBodyTail(vm, clause.Cdr(), env)
		}
		args = args.Cdr()
	}
	return Nil(), nil, nil
}

// evalBodyTail evaluates every form in body but the last, then returns
// the last as a Tail so the caller's evaluator loop finishes it without
// recursing.
func evalBodyTail(vm *VM, body Value, env *envFrame) (Value, *Tail, error) {
	if body.Kind() != KPair {
		return Nil(), nil, nil
	}
	for body.Cdr().Kind() == KPair {
		if _, err := vm.Eval(body.Car(), env); err != nil {
			return Nil(), nil, err
		}
		body = body.Cdr()
	}
	return Nil(), &Tail{Expr: body.Car(), Env: env}, nil
}

func biAnd(vm *VM, args Value, env *envFrame) (Value, *Tail, error) {
	if args.Kind() != KPair {
		return Bool(true), nil, nil
	}
	for args.Cdr().Kind() == KPair {
		v, err := vm.Eval(args.Car(), env)
		if err != nil {
			return Nil(), nil, err
		}
		if !isTruthy(v) {
			return v, nil, nil
		}
		args = args.Cdr()
	}
	return Nil(), &Tail{Expr: args.Car(), Env: env}, nil
}

func biOr(vm *VM, args Value, env *envFrame) (Value, *Tail, error) {
	if args.Kind() != KPair {
		return Bool(false), nil, nil
	}
	for args.Cdr().Kind() == KPair {
		v, err := vm.Eval(args.Car(), env)
		if err != nil {
			return Nil(), nil, err
		}
		if isTruthy(v) {
			return v, nil, nil
		}
		args = args.Cdr()
	}
	return Nil(), &Tail{Expr: args.Car(), Env: env}, nil
}

func biBegin(vm *VM, args Value, env *envFrame) (Value, *Tail, error) {
	return evalBodyTail(vm, args, env)
}

func biLet(vm *VM, args Value, env *envFrame) (Value, *Tail, error) {
	bindings := args.Car()
	inner := newFrame(env)
	for bindings.Kind() == KPair {
		b := bindings.Car()
		if b.Kind() != KPair || b.Car().Kind() != KIdent {
			return Nil(), nil, vm.throw(EEVAL, "malformed let binding")
		}
		valExpr := Nil()
		if b.Cdr().Kind() == KPair {
			valExpr = b.Cdr().Car()
		}
		v, err := vm.Eval(valExpr, env)
		if err != nil {
			return Nil(), nil, err
		}
		if err := inner.define(vm, b.Car().obj.(*identObj), v, false); err != nil {
			return Nil(), nil, err
		}
		bindings = bindings.Cdr()
	}
	return evalBodyTail(vm, args.Cdr(), inner)
}

func biFn(vm *VM, args Value, env *envFrame) (Value, *Tail, error) {
	params := args.Car()
	body := args.Cdr()
	v, err := vm.NewFunc("", params, body, env)
	return v, nil, err
}

func biDefmacro(vm *VM, args Value, env *envFrame) (Value, *Tail, error) {
	nameForm := args.Car()
	if nameForm.Kind() != KIdent {
		return Nil(), nil, vm.throw(EEVAL, "defmacro name must be an identifier")
	}
	params := args.Cdr().Car()
	body := args.Cdr().Cdr()
	mv, err := vm.NewMacro(nameForm.IdentName(), params, body, env)
	if err != nil {
		return Nil(), nil, err
	}
	vm.macros[nameForm.obj.(*identObj)] = mv
	return nameForm, nil, nil
}

func biDef(vm *VM, args Value, env *envFrame) (Value, *Tail, error) {
	nameForm := args.Car()
	if nameForm.Kind() != KIdent {
		return Nil(), nil, vm.throw(EEVAL, "def name must be an identifier")
	}
	v, err := vm.Eval(args.Cdr().Car(), env)
	if err != nil {
		return Nil(), nil, err
	}
	// Per spec section 4.3, redefinition in the global frame is allowed
	// when the allow-redef config flag is set; any other frame always
	// rejects a second define of the same name with EEXIST.
	allowRedef := env == vm.global && vm.allowRedef
	if err := env.define(vm, nameForm.obj.(*identObj), v, allowRedef); err != nil {
		return Nil(), nil, err
	}
	return v, nil, nil
}

func biSet(vm *VM, args Value, env *envFrame) (Value, *Tail, error) {
	nameForm := args.Car()
	if nameForm.Kind() != KIdent {
		return Nil(), nil, vm.throw(EEVAL, "set! name must be an identifier")
	}
	v, err := vm.Eval(args.Cdr().Car(), env)
	if err != nil {
		return Nil(), nil, err
	}
	sym := env.lookup(nameForm.obj.(*identObj))
	if sym == nil {
		return Nil(), nil, vm.throwf(ENOSYM, "no such symbol: %s", nameForm.IdentName())
	}
	if err := sym.setVal(vm, v); err != nil {
		return Nil(), nil, err
	}
	return v, nil, nil
}

func biWhile(vm *VM, args Value, env *envFrame) (Value, *Tail, error) {
	cond := args.Car()
	body := args.Cdr()
	for {
		v, err := vm.Eval(cond, env)
		if err != nil {
			return Nil(), nil, err
		}
		if !isTruthy(v) {
			return Nil(), nil, nil
		}
		for b := body; b.Kind() == KPair; b = b.Cdr() {
			if _, err := vm.Eval(b.Car(), env); err != nil {
				return Nil(), nil, err
			}
		}
	}
}

func biCase(vm *VM, args Value, env *envFrame) (Value, *Tail, error) {
	scrutinee, err := vm.Eval(args.Car(), env)
	if err != nil {
		return Nil(), nil, err
	}
	clauses := args.Cdr()
	for clauses.Kind() == KPair {
		clause := clauses.Car()
		if clause.Kind() != KPair {
			return Nil(), nil, vm.throw(EEVAL, "malformed case clause")
		}
		pat := clause.Car()
		inner := newFrame(env)
		isElse := pat.Kind() == KIdent && pat.IdentName() == "else"
		if isElse {
			return evalBodyTail(vm, clause.Cdr(), inner)
		}
		ok, err := vm.Match(pat, scrutinee, inner, false, nil)
		if err != nil {
			return Nil(), nil, err
		}
		if ok {
			return evalBodyTail(vm, clause.Cdr(), inner)
		}
		clauses = clauses.Cdr()
	}
	return Nil(), nil, nil
}

// biTry implements (try body (catch code-or-list err-var handler...)...
// (finally cleanup...)). catch and finally clauses are identified by
// their leading keyword; at most one finally clause is honored, and it
// always runs, whether or not an error occurred or was caught.
func biTry(vm *VM, args Value, env *envFrame) (Value, *Tail, error) {
	if args.Kind() != KPair {
		return Nil(), nil, vm.throw(EEVAL, "try expects a body form")
	}
	bodyForm := args.Car()
	clauses := args.Cdr()

	result, err := vm.Eval(bodyForm, env)

	if err != nil {
		if st, ok := asLangError(err); ok {
			for c := clauses; c.Kind() == KPair; c = c.Cdr() {
				clause := c.Car()
				if clause.Kind() != KPair {
					continue
				}
				kw := clause.Car()
				if kw.Kind() != KIdent || kw.IdentName() != "catch" {
					continue
				}
				rest := clause.Cdr()
				codes := rest.Car()
				if !errorCodeMatches(vm, codes, st.Code) {
					continue
				}
				errVarForm := rest.Cdr().Car()
				handlerBody := rest.Cdr().Cdr()
				inner := newFrame(env)
				if errVarForm.Kind() == KIdent {
					if defErr := inner.define(vm, errVarForm.obj.(*identObj), st.MessageValue, false); defErr != nil {
						return Nil(), nil, defErr
					}
				}
				vm.ClearErrno()
				result, err = Nil(), nil
				for b := handlerBody; b.Kind() == KPair; b = b.Cdr() {
					result, err = vm.Eval(b.Car(), inner)
					if err != nil {
						break
					}
				}
				break
			}
		}
	}

	for c := clauses; c.Kind() == KPair; c = c.Cdr() {
		clause := c.Car()
		if clause.Kind() != KPair {
			continue
		}
		kw := clause.Car()
		if kw.Kind() != KIdent || kw.IdentName() != "finally" {
			continue
		}
		for b := clause.Cdr(); b.Kind() == KPair; b = b.Cdr() {
			if _, ferr := vm.Eval(b.Car(), env); ferr != nil {
				return Nil(), nil, ferr
			}
		}
		break
	}

	return result, nil, err
}

// errorCodeMatches reports whether code is named by pat, which is either
// a single error-code identifier or a list of them.
func errorCodeMatches(vm *VM, pat Value, code int) bool {
	switch pat.Kind() {
	case KIdent:
		return identNamesCode(vm, pat, code)
	case KPair:
		for p := pat; p.Kind() == KPair; p = p.Cdr() {
			if identNamesCode(vm, p.Car(), code) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func identNamesCode(vm *VM, id Value, code int) bool {
	if id.Kind() != KIdent {
		return false
	}
	if id.IdentName() == "_" {
		return true
	}
	return id.IdentName() == vm.ErrorCodeName(code)
}
