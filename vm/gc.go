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
	"container/list"

	"github.com/pkg/errors"
)

// gcFlags holds the small per-object bit set spec section 3 describes: a
// finalizer bit, a transient mark bit, a pin bit, and a pair of debug-info
// tags plus a preprocessed bit. The GC-allocated bit is implicit (every
// gcHeader that exists at all was GC-allocated).
type gcFlags uint8

const (
	flagFinalizer gcFlags = 1 << iota
	flagMark
	flagPinned
	flagDebugLoc     // pairObj carries a source-location record
	flagDebugOrig    // pairObj carries an original-form back-pointer
	flagPreprocessed // pairObj has already been preprocessed
)

// gcHeader is embedded in every heap-owned object. No code outside gc.go
// may write these bits directly (spec section 3's invariant); other files
// interact with it only through the methods below and through VM-level
// Pin/Unref/ForceGC calls.
type gcHeader struct {
	kind     Kind
	flags    gcFlags
	pinCount int32
	fin      Finalizer
	elem     *list.Element
	size     uintptr
}

func (h *gcHeader) has(f gcFlags) bool  { return h.flags&f != 0 }
func (h *gcHeader) set(f gcFlags)       { h.flags |= f }
func (h *gcHeader) clear(f gcFlags)     { h.flags &^= f }
func (h *gcHeader) pinned() bool        { return h.pinCount > 0 }
func (h *gcHeader) marked() bool        { return h.has(flagMark) }

// Finalizer is a native callback run exactly once, just before a heap
// value's storage is reclaimed by the sweep phase.
type Finalizer func(v Value)

// heapObj is satisfied by every concrete heap-allocated object type
// (pairObj, stringObj, funcObj, ...). It is never exposed outside this
// package.
type heapObj interface {
	header() *gcHeader
	// trace calls mark on every Value this object directly references,
	// so the mark phase can recurse into them.
	trace(mark func(Value))
}

const (
	defaultGCThreshold = 64 * 1024
	defaultMemCeiling  = 0 // 0 = unlimited
)

// gc is the tracing mark-and-sweep heap for Values. It owns an intrusive
// allocation list (container/list models the spec's "intrusive
// doubly-linked list" directly) and is walked from VM-level roots during
// collect.
type gc struct {
	vm        *VM
	objs      list.List // element.Value is a heapObj
	bytes     uintptr
	sinceLast uintptr
	threshold uintptr
	ceiling   uintptr
	hyper     bool
	locked    bool // true during sweep: finalizer allocations don't recurse into collect
	building  bool // true while constructing the ENOMEM error itself
}

func newGC(v *VM) *gc {
	return &gc{vm: v, threshold: defaultGCThreshold, ceiling: defaultMemCeiling}
}

// register accounts for a freshly constructed heap object of the given
// size and kind, inserts it into the allocation list, and triggers a
// collection if the trigger policy (spec section 4.2) calls for one.
// ENOMEM is returned, with the ceiling bypassed, while g.building is set so
// that the ENOMEM error object itself can always be constructed.
func (g *gc) register(kind Kind, size uintptr, obj heapObj) error {
	if !g.building && g.ceiling > 0 && g.bytes+uintptr(size) > g.ceiling {
		g.collect()
		if !g.building && g.ceiling > 0 && g.bytes+uintptr(size) > g.ceiling {
			return g.oom(size)
		}
	}
	h := obj.header()
	h.kind = kind
	h.size = size
	h.elem = g.objs.PushBack(obj)
	g.bytes += size
	g.sinceLast += size
	if !g.locked {
		if g.sinceLast > g.threshold || (g.ceiling > 0 && g.bytes*2 > g.ceiling) {
			g.collect()
		}
	}
	return nil
}

func (g *gc) oom(size uintptr) error {
	g.building = true
	defer func() { g.building = false }()
	return g.vm.throw(ENOMEM, errors.Errorf("allocation of %d bytes exceeds memory ceiling of %d bytes", size, g.ceiling).Error())
}

// step runs a collection if the hyper-gc option is enabled. The evaluator
// calls this after each top-level form, per spec section 4.2's "optional
// hyper-gc mode collects after every top-level step".
func (g *gc) step() {
	if g.hyper {
		g.collect()
	}
}

// Pin prevents v's heap object (if any) from being collected until
// Release is called on the returned token. Pins nest: a value pinned
// twice needs two releases. Pinning a by-value Value is a harmless no-op.
// A Pin returned by PinAll instead releases a whole batch of pins at once.
type Pin struct {
	h     *gcHeader
	multi []Pin
}

// Release releases this pin (and, for a PinAll batch, every pin in it, in
// reverse order). Releasing a zero Pin is a no-op. A Pin keeps no record of
// having been released: releasing the same token twice drops two pins from
// the object's count, which never goes below zero.
func (p Pin) Release() {
	if p.multi != nil {
		for i := len(p.multi) - 1; i >= 0; i-- {
			p.multi[i].Release()
		}
		return
	}
	if p.h == nil {
		return
	}
	p.h.pinCount--
	if p.h.pinCount <= 0 {
		p.h.pinCount = 0
		p.h.clear(flagPinned)
	}
}

// Ref pins v and returns a token; Unref is the corresponding release. Host
// code should prefer the Pin/Release pair (or the PinAll helper), which
// compose more naturally than the raw ref/unref calls the spec's C-derived
// API exposes.
func (vm *VM) Ref(v Value) Pin {
	if !v.kind.isHeapKind() || v.obj == nil {
		return Pin{}
	}
	h := v.obj.header()
	h.pinCount++
	h.set(flagPinned)
	return Pin{h: h}
}

// Unref releases a pin acquired with Ref. Pins must be released in LIFO
// order within a lexical region, though this is a usage discipline, not a
// mechanically enforced one (spec section 3).
func (vm *VM) Unref(v Value, tok Pin) {
	tok.Release()
}

// PinAll pins every value in vs and returns a single guard that releases
// all of them, in reverse order, on Release, as a batch alternative to one
// Ref/Unref pair per value. The evaluator itself does not pin its
// arguments.
func (vm *VM) PinAll(vs ...Value) Pin {
	toks := make([]Pin, len(vs))
	for i, v := range vs {
		toks[i] = vm.Ref(v)
	}
	return Pin{h: nil, multi: toks}
}

// ForceGC runs an immediate collection regardless of the trigger policy.
func (vm *VM) ForceGC() {
	vm.gc.collect()
}

// collect performs one mark-and-sweep cycle.
func (g *gc) collect() {
	g.mark()
	g.sweep()
	g.sinceLast = 0
}

func (g *gc) mark() {
	var markValue func(Value)
	markValue = func(v Value) {
		if !v.kind.isHeapKind() || v.obj == nil {
			return
		}
		h := v.obj.header()
		if h.marked() {
			return
		}
		h.set(flagMark)
		v.obj.trace(markValue)
	}

	// Roots: pinned objects.
	for e := g.objs.Front(); e != nil; e = e.Next() {
		obj := e.Value.(heapObj)
		if obj.header().pinned() {
			markValue(Value{kind: obj.header().kind, obj: obj})
		}
	}

	vm := g.vm

	// Roots: the current environment chain.
	if vm.curEnv != nil {
		vm.curEnv.trace(markValue)
	}

	// Roots: the three global namespaces.
	if vm.global != nil {
		vm.global.trace(markValue)
	}
	for _, v := range vm.specialOps {
		markValue(v)
	}
	for _, v := range vm.macros {
		markValue(v)
	}

	// Root: the live error message.
	if vm.err != nil {
		markValue(vm.err.MessageValue)
	}
}

func (g *gc) sweep() {
	g.locked = true
	defer func() { g.locked = false }()

	var next *list.Element
	for e := g.objs.Front(); e != nil; e = next {
		next = e.Next()
		obj := e.Value.(heapObj)
		h := obj.header()
		if h.marked() || h.pinned() {
			h.clear(flagMark)
			continue
		}
		if h.fin != nil {
			h.fin(Value{kind: h.kind, obj: obj})
		}
		g.objs.Remove(e)
		g.bytes -= h.size
	}
}

// teardown runs sweep up to three times so that finalizers which
// resurrect peers (by storing a reference to another about-to-be-freed
// object) get a chance to have those peers finalized too, per spec
// section 4.2. The VM's roots (environment chain, namespaces, live error)
// are dropped first, so only pinned objects and what they reference
// survive the mark phase. Objects still alive afterwards are leaked
// silently: this is reported as a diagnostic, never treated as fatal.
func (g *gc) teardown() (leaked int) {
	vm := g.vm
	vm.curEnv, vm.global, vm.specialOps, vm.macros, vm.err = nil, nil, nil, nil, nil
	for pass := 0; pass < 3; pass++ {
		g.mark()
		g.sweep()
	}
	return g.objs.Len()
}
