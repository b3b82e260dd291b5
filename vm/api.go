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
	"bufio"
	"io"
	"strings"
	"unicode/utf8"
)

// typeEntry is one slot in the type registry: built-in kinds occupy the
// first numKinds slots with base == -1 (they are not aliases of
// anything); NewType appends alias entries after that.
type typeEntry struct {
	name string
	base int
}

// VM is an embeddable cheax interpreter instance. The zero value is not
// usable; construct one with New.
type VM struct {
	global     *envFrame
	curEnv     *envFrame
	specialOps map[*identObj]Value
	macros     map[*identObj]Value
	interned   map[string]*identObj

	gc *gc

	err            *ErrorState
	backtraceDepth int
	errNames       map[int]string
	errNamesRev    map[string]int
	nextErrCode    int

	debugInfo     bool
	allowRedef    bool
	callDepth     int
	maxStackDepth int
	noTailcall    bool

	types     []typeEntry
	typeNames map[string]int

	stdout io.Writer
	stderr io.Writer
}

// Option configures a VM at construction time, mirroring the
// functional-options pattern used throughout cheax's host API.
type Option func(*VM) error

// New creates a VM with the given options applied in order.
func New(opts ...Option) (*VM, error) {
	vm := &VM{
		specialOps:     make(map[*identObj]Value),
		macros:         make(map[*identObj]Value),
		interned:       make(map[string]*identObj),
		backtraceDepth: 32,
		errNames:       make(map[int]string),
		errNamesRev:    make(map[string]int),
		nextErrCode:    USER0,
		maxStackDepth:  defaultMaxStackDepth,
		typeNames:      make(map[string]int),
	}
	vm.gc = newGC(vm)
	vm.global = newFrame(nil)
	vm.global.noEscape = false // the global frame always escapes: it is a permanent root
	vm.curEnv = vm.global

	for k := Kind(0); k < numKinds; k++ {
		vm.typeNames[k.String()] = int(k)
		vm.types = append(vm.types, typeEntry{name: k.String(), base: -1})
	}

	for _, opt := range opts {
		if err := opt(vm); err != nil {
			return nil, err
		}
	}
	if err := registerBuiltins(vm); err != nil {
		return nil, err
	}
	return vm, nil
}

// WithMaxStackDepth bounds the non-tail recursion depth Eval allows
// before failing with ESTACK.
func WithMaxStackDepth(n int) Option {
	return func(vm *VM) error {
		vm.maxStackDepth = n
		return nil
	}
}

// WithDebugInfo enables attaching source-location information to every
// pair the reader produces.
func WithDebugInfo(enabled bool) Option {
	return func(vm *VM) error {
		vm.debugInfo = enabled
		return nil
	}
}

// WithStdout/WithStderr set the default streams builtins that print use.
func WithStdout(w io.Writer) Option {
	return func(vm *VM) error { vm.stdout = w; return nil }
}

func WithStderr(w io.Writer) Option {
	return func(vm *VM) error { vm.stderr = w; return nil }
}

// WithMemCeiling caps total GC-tracked heap usage, in bytes; 0 (the
// default) means unlimited.
func WithMemCeiling(n uintptr) Option {
	return func(vm *VM) error {
		vm.gc.ceiling = n
		return nil
	}
}

// Close runs a final teardown sweep, finalizing every still-live
// GC-tracked object that is not pinned (or referenced from a pinned one).
// It reports the number of objects that could not be reclaimed, purely as
// a diagnostic; a leak here is never treated as fatal. The VM's roots are
// dropped, so the VM cannot be used after Close.
func (vm *VM) Close() int {
	return vm.gc.teardown()
}

// --- runtime configuration (ConfigID) ---

// ConfigID names one runtime-tunable VM setting.
type ConfigID int

const (
	CfgStackDepth ConfigID = iota
	CfgMemCeiling
	CfgGCThreshold
	CfgHyperGC
	CfgTailcallElimination
	CfgBacktraceDepth
	CfgAllowRedef
	CfgGenDebugInfo
)

// Int reads an integer-valued config setting.
func (vm *VM) Int(id ConfigID) int64 {
	switch id {
	case CfgStackDepth:
		return int64(vm.maxStackDepth)
	case CfgMemCeiling:
		return int64(vm.gc.ceiling)
	case CfgGCThreshold:
		return int64(vm.gc.threshold)
	case CfgBacktraceDepth:
		return int64(vm.backtraceDepth)
	default:
		return 0
	}
}

// SetInt writes an integer-valued config setting.
func (vm *VM) SetInt(id ConfigID, v int64) error {
	switch id {
	case CfgStackDepth:
		vm.maxStackDepth = int(v)
	case CfgMemCeiling:
		vm.gc.ceiling = uintptr(v)
	case CfgGCThreshold:
		vm.gc.threshold = uintptr(v)
	case CfgBacktraceDepth:
		vm.backtraceDepth = int(v)
	default:
		return vm.throw(EAPI, "not an integer config option")
	}
	return nil
}

// Bool reads a boolean-valued config setting.
func (vm *VM) Bool(id ConfigID) bool {
	switch id {
	case CfgHyperGC:
		return vm.gc.hyper
	case CfgTailcallElimination:
		return !vm.noTailcall
	case CfgAllowRedef:
		return vm.allowRedef
	case CfgGenDebugInfo:
		return vm.debugInfo
	default:
		return false
	}
}

// SetBool writes a boolean-valued config setting.
func (vm *VM) SetBool(id ConfigID, v bool) error {
	switch id {
	case CfgHyperGC:
		vm.gc.hyper = v
	case CfgTailcallElimination:
		vm.noTailcall = !v
	case CfgAllowRedef:
		vm.allowRedef = v
	case CfgGenDebugInfo:
		vm.debugInfo = v
	default:
		return vm.throw(EAPI, "not a boolean config option")
	}
	return nil
}

// Step runs a GC collection if hyper-gc mode is on; a host REPL calls
// this once per top-level form, matching the spec's "optional hyper-gc
// mode collects after every top-level step".
func (vm *VM) Step() {
	vm.gc.step()
}

// --- type system ---

// NewType registers a named alias of baseCode and returns its code.
// baseCode may itself be an alias: ResolveType always walks to the
// final, non-alias basic type.
func (vm *VM) NewType(name string, baseCode int) int {
	if code, ok := vm.typeNames[name]; ok {
		return code
	}
	code := len(vm.types)
	vm.types = append(vm.types, typeEntry{name: name, base: baseCode})
	vm.typeNames[name] = code
	return code
}

// FindType looks up a registered type by name.
func (vm *VM) FindType(name string) (int, bool) {
	code, ok := vm.typeNames[name]
	return code, ok
}

// TypeName returns the registered name of a type code.
func (vm *VM) TypeName(code int) string {
	if code >= 0 && code < len(vm.types) {
		return vm.types[code].name
	}
	return "<unknown type>"
}

// GetBaseType returns code's immediate alias target, or -1 if code names
// a basic (non-alias) type.
func (vm *VM) GetBaseType(code int) int {
	if code < 0 || code >= len(vm.types) {
		return -1
	}
	return vm.types[code].base
}

// ResolveType walks code's alias chain to the final basic type.
func (vm *VM) ResolveType(code int) int {
	for {
		base := vm.GetBaseType(code)
		if base < 0 {
			return code
		}
		code = base
	}
}

// IsBasicType reports whether code is one of the built-in Kind-derived
// types (not a user alias).
func (vm *VM) IsBasicType(code int) bool {
	return code >= 0 && code < int(numKinds)
}

// IsUserType reports whether code was registered with NewType.
func (vm *VM) IsUserType(code int) bool {
	return code >= int(numKinds) && code < len(vm.types)
}

// Cast attempts to view v as type code, failing with ETYPE when v's
// underlying kind does not match code's resolved basic type. A user
// pointer value always casts to the basic user-pointer type. Casting it to
// a user type that aliases the user-pointer type succeeds when the value's
// own tag (see TypedUserPtr) is that same code or also resolves to the
// user-pointer type, so two such user types are not told apart; an
// untyped user pointer fails.
func (vm *VM) Cast(code int, v Value) (Value, error) {
	want := vm.ResolveType(code)
	if v.Kind() == KUserPtr {
		if want != int(KUserPtr) {
			return Nil(), vm.throwf(ETYPE, "cannot cast user pointer to %s", vm.TypeName(code))
		}
		if vm.IsBasicType(code) {
			return v, nil // casting to the generic user-pointer type always succeeds
		}
		if v.UserPtrTypeCode() != code && vm.ResolveType(v.UserPtrTypeCode()) != want {
			return Nil(), vm.throwf(ETYPE, "cannot cast user pointer of type %s to %s", vm.TypeName(v.UserPtrTypeCode()), vm.TypeName(code))
		}
		return v, nil
	}
	if int(v.Kind()) != want {
		return Nil(), vm.throwf(ETYPE, "cannot cast %s to %s", v.Kind(), vm.TypeName(code))
	}
	return v, nil
}

// --- variable bindings ---

// Def binds name to v in the current environment. Redefinition of an
// existing binding is rejected with EEXIST unless curEnv is the global
// frame and the allow-redef config flag is set (spec section 4.3).
func (vm *VM) Def(name string, v Value) error {
	id, err := vm.Ident(name)
	if err != nil {
		return err
	}
	allowRedef := vm.curEnv == vm.global && vm.allowRedef
	return vm.curEnv.define(vm, id.obj.(*identObj), v, allowRedef)
}

// Set assigns v to an existing binding of name, searching the current
// environment chain; ENOSYM if name is unbound.
func (vm *VM) Set(name string, v Value) error {
	id, err := vm.Ident(name)
	if err != nil {
		return err
	}
	sym := vm.curEnv.lookup(id.obj.(*identObj))
	if sym == nil {
		return vm.throwf(ENOSYM, "no such symbol: %s", name)
	}
	return sym.setVal(vm, v)
}

// Get reads the value bound to name, failing with ENOSYM if unbound.
func (vm *VM) Get(name string) (Value, error) {
	id, err := vm.Ident(name)
	if err != nil {
		return Nil(), err
	}
	sym := vm.curEnv.lookup(id.obj.(*identObj))
	if sym == nil {
		return Nil(), vm.throwf(ENOSYM, "no such symbol: %s", name)
	}
	return sym.get_(vm)
}

// TryGet reads the value bound to name, reporting ok=false instead of an
// error when it is unbound.
func (vm *VM) TryGet(name string) (v Value, ok bool) {
	id, err := vm.Ident(name)
	if err != nil {
		return Nil(), false
	}
	sym := vm.curEnv.lookup(id.obj.(*identObj))
	if sym == nil {
		return Nil(), false
	}
	v, err = sym.get_(vm)
	return v, err == nil
}

// DefSym installs a symbol with custom getter/setter/finalizer hooks
// instead of plain storage, used for host state that must be computed or
// validated on every access.
func (vm *VM) DefSym(name string, get func(vm *VM) (Value, error), set func(vm *VM, v Value) error, fin Finalizer) error {
	id, err := vm.Ident(name)
	if err != nil {
		return err
	}
	iobj := id.obj.(*identObj)
	if err := vm.curEnv.defineSynced(vm, iobj, get, set); err != nil {
		return err
	}
	vm.curEnv.syms[iobj].fin = fin
	return nil
}

// DefFun registers a native function under name.
func (vm *VM) DefFun(name string, fn ExternFunc) error {
	v, err := vm.NewExtFunc(name, fn, nil)
	if err != nil {
		return err
	}
	return vm.Def(name, v)
}

// DefUnary registers fn as a native function expecting exactly one
// (already-evaluated) argument, a common enough shape (most type
// predicates and casts) to warrant its own wrapper over DefFun/
// ExternFunc.
func (vm *VM) DefUnary(name string, fn func(vm *VM, arg Value) (Value, error)) error {
	return vm.DefFun(name, func(vm *VM, args Value) (Value, error) {
		if args.Kind() != KPair || !args.Cdr().IsNil() {
			return Nil(), vm.throwf(EEVAL, "%s expects exactly one argument", name)
		}
		return fn(vm, args.Car())
	})
}

// DefSyntax registers a special operation under name: fn receives its
// argument forms unevaluated, together with the calling environment, and
// preproc (optional) validates their shape once per call site before fn
// ever runs.
func (vm *VM) DefSyntax(name string, fn SpecialFunc, preproc PreprocFunc) error {
	v, err := vm.NewSpecialOp(name, fn, preproc, nil)
	if err != nil {
		return err
	}
	id, err := vm.Ident(name)
	if err != nil {
		return err
	}
	vm.specialOps[id.obj.(*identObj)] = v
	return nil
}

// --- synced host variables ---

func (vm *VM) SyncInt(name string, p *int64) error {
	return vm.DefSym(name,
		func(vm *VM) (Value, error) { return Int(*p), nil },
		func(vm *VM, v Value) error {
			if v.Kind() != KInt {
				return vm.throwf(ETYPE, "%s must be an int", name)
			}
			*p = v.Int()
			return nil
		}, nil)
}

func (vm *VM) SyncBool(name string, p *bool) error {
	return vm.DefSym(name,
		func(vm *VM) (Value, error) { return Bool(*p), nil },
		func(vm *VM, v Value) error {
			if v.Kind() != KBool {
				return vm.throwf(ETYPE, "%s must be a bool", name)
			}
			*p = v.Bool()
			return nil
		}, nil)
}

func (vm *VM) SyncDouble(name string, p *float64) error {
	return vm.DefSym(name,
		func(vm *VM) (Value, error) { return Double(*p), nil },
		func(vm *VM, v Value) error {
			if v.Kind() != KDouble {
				return vm.throwf(ETYPE, "%s must be a double", name)
			}
			*p = v.Double()
			return nil
		}, nil)
}

// SyncFloat is SyncDouble for a float32-backed host variable.
func (vm *VM) SyncFloat(name string, p *float32) error {
	return vm.DefSym(name,
		func(vm *VM) (Value, error) { return Double(float64(*p)), nil },
		func(vm *VM, v Value) error {
			if v.Kind() != KDouble {
				return vm.throwf(ETYPE, "%s must be a double", name)
			}
			*p = float32(v.Double())
			return nil
		}, nil)
}

// maxSyncStringLen bounds a synced Go string's length on assignment, so
// a cheax script cannot blow out a fixed-size host buffer behind p.
const maxSyncStringLen = 1 << 20

// SyncString binds a Go string variable, validating length on write.
func (vm *VM) SyncString(name string, p *string, maxLen int) error {
	if maxLen <= 0 || maxLen > maxSyncStringLen {
		maxLen = maxSyncStringLen
	}
	return vm.DefSym(name,
		func(vm *VM) (Value, error) { return vm.NewString(*p) },
		func(vm *VM, v Value) error {
			if v.Kind() != KString {
				return vm.throwf(ETYPE, "%s must be a string", name)
			}
			s := v.String_()
			if len(s) > maxLen {
				return vm.throwf(EVALUE, "%s exceeds maximum length %d", name, maxLen)
			}
			*p = s
			return nil
		}, nil)
}

// --- reading ---

// Read parses one form from src.
func (vm *VM) Read(src io.RuneReader, file string) (Value, error) {
	r := vm.NewReader(src, file)
	if err := r.SkipShebang(); err != nil {
		return Nil(), err
	}
	return r.Read()
}

// ReadStr parses one form from a string, returning it and any remaining
// unconsumed input.
func (vm *VM) ReadStr(src string) (Value, string, error) {
	rr := strings.NewReader(src)
	r := vm.NewReader(rr, "<string>")
	v, err := r.Read()
	consumed := len(src) - rr.Len()
	for _, pb := range r.pushback {
		consumed -= utf8.RuneLen(pb)
	}
	return v, src[consumed:], err
}

// ReadEval reads and evaluates every top-level form in src in turn,
// returning the value of the last one. This is the convenience entry
// point cmd/cheax's file and -c modes use; its -E mode reads through
// NewReader and Preprocess instead.
func (vm *VM) ReadEval(src io.Reader, file string) (Value, error) {
	br := bufio.NewReader(src)
	r := vm.NewReader(br, file)
	if err := r.SkipShebang(); err != nil {
		return Nil(), err
	}
	result := Nil()
	for {
		form, err := r.Read()
		if err == io.EOF {
			return result, nil
		}
		if err != nil {
			return Nil(), err
		}
		result, err = vm.Eval(form, vm.curEnv)
		if err != nil {
			return Nil(), err
		}
		vm.Step()
	}
}

// Preproc runs the shape-validation pass of op (a special operation
// value) against args without evaluating anything, exposed so a host can
// pre-validate a single special form's argument shape ahead of time.
func (vm *VM) Preproc(op Value, args Value) (Value, error) {
	if op.Kind() != KSpecialOp {
		return Nil(), vm.throw(ETYPE, "Preproc expects a special operation")
	}
	pp := op.SpecialOpPreproc()
	if pp == nil {
		return args, nil
	}
	return pp(vm, args)
}

// Preprocess is the top-level preproc(value) operation of spec section
// 4.6: it walks form, applying macroexpansion at each list and then, for
// lists whose head names a bound special operation, running that
// operation's preprocessor callback; non-special lists are treated as
// function calls and have their head and every argument preprocessed in
// turn. It never evaluates anything, which is what lets cmd/cheax's -E
// mode report shape errors without running the program. Like ReadEval,
// it runs against the VM's current environment rather than taking one as
// a parameter, since envFrame is not part of the public API surface.
func (vm *VM) Preprocess(form Value) (Value, error) {
	return vm.preprocessIn(form, vm.curEnv)
}

func (vm *VM) preprocessIn(form Value, env *envFrame) (Value, error) {
	expanded, err := vm.MacroExpand(form, env)
	if err != nil {
		return Nil(), err
	}
	if expanded.Kind() != KPair || expanded.preprocessed() {
		return expanded, nil
	}

	head := expanded.Car()
	args := expanded.Cdr()

	if head.Kind() == KIdent {
		id := head.obj.(*identObj)
		if env.lookup(id) == nil {
			if so, ok := vm.specialOps[id]; ok {
				if pp := so.SpecialOpPreproc(); pp != nil {
					if _, err := pp(vm, args); err != nil {
						return Nil(), err
					}
				}
				expanded.setPreprocessed()
				return expanded, nil
			}
		}
	}

	if _, err := vm.preprocessIn(head, env); err != nil {
		return Nil(), err
	}
	for a := args; a.Kind() == KPair; a = a.Cdr() {
		if _, err := vm.preprocessIn(a.Car(), env); err != nil {
			return Nil(), err
		}
	}
	expanded.setPreprocessed()
	return expanded, nil
}
