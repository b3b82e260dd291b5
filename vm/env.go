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

// frameKind distinguishes a plain lexical frame from a bifurcated one.
type frameKind uint8

const (
	frameNormal frameKind = iota
	frameBifurcated
)

// symGetter and symSetter back synced host variables (see SyncInt and
// friends in api.go): a symbol whose value actually lives in a Go
// variable the host owns, read and written through these hooks instead of
// the plain storage slot.
type symGetter func(vm *VM) (Value, error)
type symSetter func(vm *VM, v Value) error

// symbol is one binding in a frame's table. Plain bindings leave get/set
// nil and use value directly; synced bindings install get/set; either
// kind may carry a finalizer run when the owning frame is popped, and a
// protect value the GC traces alongside value. Nothing in this package
// sets protect, so it is always Nil.
type symbol struct {
	value    Value
	get      symGetter
	set      symSetter
	fin      Finalizer
	protect  Value
	constant bool
}

// envFrame is one link in the environment chain. A normal frame looks
// itself up and then its below parent; a bifurcated frame looks up main
// in full before falling back to fallback, per spec section 4's
// "bifurcated frames with main-first lookup". Nothing in this package
// creates a bifurcated frame: macro and function calls bind
// into a normal frame below their definition environment.
type envFrame struct {
	kind           frameKind
	below          *envFrame
	main, fallback *envFrame
	syms           map[*identObj]*symbol
	noEscape       bool
}

// newFrame creates a normal frame under below. Frames created to bind a
// function call's parameters start with noEscape set; the evaluator
// clears it the moment the frame is captured by a closure (see
// markEscaping).
func newFrame(below *envFrame) *envFrame {
	return &envFrame{kind: frameNormal, below: below, syms: make(map[*identObj]*symbol), noEscape: true}
}

// newBifurcatedFrame creates a frame whose lookups try main before
// fallback.
func newBifurcatedFrame(main, fallback *envFrame) *envFrame {
	return &envFrame{kind: frameBifurcated, main: main, fallback: fallback, noEscape: true}
}

// markEscaping clears the no-escape bit on f and every frame below it,
// since a closure retaining f may also observe anything f's ancestors
// define later only through direct chain traversal, never through a
// frame-pop-time free.
func (f *envFrame) markEscaping() {
	for e := f; e != nil; {
		if !e.noEscape {
			return
		}
		e.noEscape = false
		switch e.kind {
		case frameBifurcated:
			e.main.markEscaping()
			e.fallback.markEscaping()
			return
		default:
			e = e.below
		}
	}
}

// lookup finds the symbol bound to id, searching this frame and its
// ancestors/siblings per frame kind.
func (f *envFrame) lookup(id *identObj) *symbol {
	for e := f; e != nil; {
		switch e.kind {
		case frameBifurcated:
			if s := e.main.lookup(id); s != nil {
				return s
			}
			return e.fallback.lookup(id)
		default:
			if s, ok := e.syms[id]; ok {
				return s
			}
			e = e.below
		}
	}
	return nil
}

// define binds id to v in this frame directly (not searching ancestors).
// It is an error (EEXIST) to redefine an existing binding in the same
// frame unless allowRedef is set, matching the spec's "def fails with
// EEXIST on redefinition in the same frame by default" rule.
func (f *envFrame) define(vm *VM, id *identObj, v Value, allowRedef bool) error {
	if f.kind != frameNormal {
		return vm.throw(EINTERNAL, "cannot define in a bifurcated frame")
	}
	if _, exists := f.syms[id]; exists && !allowRedef {
		return vm.throw(EEXIST, "redefinition of "+id.name)
	}
	f.syms[id] = &symbol{value: v}
	return nil
}

// defineSynced installs a synced symbol with custom get/set hooks.
func (f *envFrame) defineSynced(vm *VM, id *identObj, get symGetter, set symSetter) error {
	if f.kind != frameNormal {
		return vm.throw(EINTERNAL, "cannot define in a bifurcated frame")
	}
	if _, exists := f.syms[id]; exists {
		return vm.throw(EEXIST, "redefinition of "+id.name)
	}
	f.syms[id] = &symbol{get: get, set: set}
	return nil
}

// get_ reads s's current value, invoking its getter hook if synced. A
// setter-only synced binding (write-only by design) fails with
// EWRITEONLY rather than silently returning its zero Value.
func (s *symbol) get_(vm *VM) (Value, error) {
	if s.get != nil {
		return s.get(vm)
	}
	if s.set != nil {
		return Nil(), vm.throw(EWRITEONLY, "binding has no getter")
	}
	return s.value, nil
}

// setVal writes v into s, invoking its setter hook if synced. Constant
// bindings and getter-only synced bindings both fail with EREADONLY,
// matching spec section 7's ACCESS taxonomy.
func (s *symbol) setVal(vm *VM, v Value) error {
	if s.constant {
		return vm.throw(EREADONLY, "cannot set constant binding")
	}
	if s.set != nil {
		return s.set(vm, v)
	}
	if s.get != nil {
		return vm.throw(EREADONLY, "binding has no setter")
	}
	s.value = v
	return nil
}

// pop runs finalizers for every symbol bound directly in f, but only if f
// never escaped into a closure; an escaping frame's symbols are left for
// ordinary Go garbage collection of the frame struct itself, since the
// simulated heap only tracks Values, not frames.
func (f *envFrame) pop() {
	if !f.noEscape || f.kind != frameNormal {
		return
	}
	for _, s := range f.syms {
		if s.fin != nil {
			s.fin(s.value)
		}
	}
}

// trace calls mark on every Value directly reachable from f, recursing
// into main/fallback or below as appropriate. It is the environment
// chain's contribution to the GC's root set (gc.go's mark).
func (f *envFrame) trace(mark func(Value)) {
	seen := make(map[*envFrame]bool)
	var walk func(e *envFrame)
	walk = func(e *envFrame) {
		if e == nil || seen[e] {
			return
		}
		seen[e] = true
		switch e.kind {
		case frameBifurcated:
			walk(e.main)
			walk(e.fallback)
		default:
			for _, s := range e.syms {
				mark(s.value)
				mark(s.protect)
			}
			walk(e.below)
		}
	}
	walk(f)
}
