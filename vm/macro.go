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

// MacroExpand1 expands form exactly one step if its head names a
// registered macro, returning expanded=false when form is not a macro
// call.
func (vm *VM) MacroExpand1(form Value, env *envFrame) (result Value, expanded bool, err error) {
	if form.Kind() != KPair {
		return form, false, nil
	}
	head := form.Car()
	if head.Kind() != KIdent {
		return form, false, nil
	}
	mv, ok := vm.macros[head.obj.(*identObj)]
	if !ok {
		return form, false, nil
	}

	callFrame := newFrame(mv.MacroEnv())
	ok2, err := vm.Match(mv.MacroParams(), form.Cdr(), callFrame, false, nil)
	if err != nil {
		return Nil(), false, err
	}
	if !ok2 {
		return Nil(), false, vm.throwf(EMATCH, "arguments do not match macro %s", mv.MacroName())
	}

	body := mv.MacroBody()
	result = Nil()
	for body.Kind() == KPair {
		result, err = vm.Eval(body.Car(), callFrame)
		if err != nil {
			return Nil(), false, err
		}
		body = body.Cdr()
	}
	callFrame.pop()
	return result, true, nil
}

// maxMacroExpansions bounds the fixed-point loop in MacroExpand, so a
// macro that never stops rewriting its own output fails with EMACRO
// instead of looping forever.
const maxMacroExpansions = 10000

// MacroExpand repeatedly applies MacroExpand1 until form's head no longer
// names a macro.
func (vm *VM) MacroExpand(form Value, env *envFrame) (Value, error) {
	for i := 0; i < maxMacroExpansions; i++ {
		next, expanded, err := vm.MacroExpand1(form, env)
		if err != nil {
			return Nil(), err
		}
		if !expanded {
			return form, nil
		}
		form = next
	}
	return Nil(), vm.throw(EMACRO, "macro expansion did not converge")
}

// --- preprocessor: special-form argument-shape validation ---

// patOp is one opcode of the compact argument-shape validator special
// operations register via PreprocFunc.
type patOp byte

const (
	pNODE  patOp = iota // consume exactly one node, no further constraint
	pEXPR               // consume one node destined for evaluation
	pLIT                // consume one node destined to be used literally
	pSEQ                // consume the remainder, of any length
	pNIL                // require the list to be empty here
	pMAYBE              // optionally consume one node matching sub
)

type patInstr struct {
	op  patOp
	sub *patInstr // only meaningful for pMAYBE
	msg string    // error message (ERR(i) in the spec's notation) used on mismatch
}

func node(msg string) patInstr  { return patInstr{op: pNODE, msg: msg} }
func expr(msg string) patInstr  { return patInstr{op: pEXPR, msg: msg} }
func lit(msg string) patInstr   { return patInstr{op: pLIT, msg: msg} }
func seqRest() patInstr         { return patInstr{op: pSEQ} }
func nilEnd(msg string) patInstr { return patInstr{op: pNIL, msg: msg} }
func maybe(sub patInstr) patInstr {
	return patInstr{op: pMAYBE, sub: &sub}
}

// checkShape validates args against prog, a small linear program over the
// patOp instruction set, and reports a mismatch as an ESTATIC error naming
// the offending form, per spec section 4.6's preprocessor contract.
func (vm *VM) checkShape(form string, args Value, prog []patInstr) error {
	pos := args
	for _, instr := range prog {
		switch instr.op {
		case pNODE, pEXPR, pLIT:
			if pos.Kind() != KPair {
				return vm.shapeError(form, instr.msg)
			}
			pos = pos.Cdr()
		case pSEQ:
			pos = Nil()
		case pNIL:
			if !pos.IsNil() {
				return vm.shapeError(form, instr.msg)
			}
		case pMAYBE:
			if pos.Kind() == KPair {
				switch instr.sub.op {
				case pNODE, pEXPR, pLIT:
					pos = pos.Cdr()
				}
			}
		}
	}
	return nil
}

func (vm *VM) shapeError(form, msg string) error {
	if msg == "" {
		return vm.throwf(ESTATIC, "malformed %s form", form)
	}
	return vm.throwf(ESTATIC, "malformed %s form: %s", form, msg)
}
