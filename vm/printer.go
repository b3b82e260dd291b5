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
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/db47h/cheax/internal/errio"
)

// Print writes v's display form to w: strings print without quotes, every
// other kind prints the same way Repr does.
func (vm *VM) Print(w io.Writer, v Value) error {
	ew := errio.New(w)
	vm.printVal(ew, v, false)
	return ew.Err
}

// Repr writes v's machine-readable form to w, one that Read (given the
// same VM) would parse back to an Equiv value, matching the round-trip
// property the printer and reader jointly guarantee for every kind except
// functions, macros, external functions, special operations and
// first-class environments (which have no literal syntax).
func (vm *VM) Repr(w io.Writer, v Value) error {
	ew := errio.New(w)
	vm.printVal(ew, v, true)
	return ew.Err
}

func (vm *VM) printVal(w *errio.Writer, v Value, repr bool) {
	switch v.Kind() {
	case KNil:
		fmt.Fprint(w, "()")
	case KInt:
		fmt.Fprintf(w, "%d", v.Int())
	case KDouble:
		vm.printDouble(w, v.Double())
	case KBool:
		if v.Bool() {
			fmt.Fprint(w, "true")
		} else {
			fmt.Fprint(w, "false")
		}
	case KIdent:
		fmt.Fprint(w, v.IdentName())
	case KPair:
		vm.printList(w, v, repr)
	case KString:
		if repr {
			// The reader has no \a \b \f \v escapes; spell those as \xHH.
			esc := strings.NewReplacer(`\\`, `\\`, `\a`, `\x07`, `\b`, `\x08`, `\f`, `\x0c`, `\v`, `\x0b`)
			fmt.Fprint(w, esc.Replace(strconv.Quote(v.String_())))
		} else {
			fmt.Fprint(w, v.String_())
		}
	case KFunc:
		name := v.FuncName()
		if name == "" {
			fmt.Fprint(w, "<function>")
		} else {
			fmt.Fprintf(w, "<function %s>", name)
		}
	case KMacro:
		name := v.MacroName()
		if name == "" {
			fmt.Fprint(w, "<macro>")
		} else {
			fmt.Fprintf(w, "<macro %s>", name)
		}
	case KExtFunc:
		fmt.Fprintf(w, "<external function %s>", v.ExtFuncName())
	case KSpecialOp:
		fmt.Fprintf(w, "<special operation %s>", v.SpecialOpName())
	case KQuote:
		fmt.Fprint(w, "'")
		vm.printVal(w, v.Inner(), repr)
	case KBackquote:
		fmt.Fprint(w, "`")
		vm.printVal(w, v.Inner(), repr)
	case KComma:
		fmt.Fprint(w, ",")
		vm.printVal(w, v.Inner(), repr)
	case KSplice:
		fmt.Fprint(w, ",@")
		vm.printVal(w, v.Inner(), repr)
	case KEnv:
		fmt.Fprint(w, "<environment>")
	case KUserPtr:
		fmt.Fprintf(w, "<user pointer %p>", v.UserPtr())
	case KType:
		fmt.Fprint(w, vm.TypeName(v.TypeCode()))
	case KError:
		fmt.Fprint(w, vm.ErrorCodeName(v.ErrorCode()))
	default:
		fmt.Fprint(w, "<?>")
	}
}

// printDouble always shows a decimal point or exponent, so re-reading the
// output never silently produces an int.
func (vm *VM) printDouble(w io.Writer, f float64) {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	fmt.Fprint(w, s)
}

func (vm *VM) printList(w *errio.Writer, v Value, repr bool) {
	fmt.Fprint(w, "(")
	first := true
	for v.Kind() == KPair {
		if !first {
			fmt.Fprint(w, " ")
		}
		first = false
		vm.printVal(w, v.Car(), repr)
		v = v.Cdr()
	}
	if !v.IsNil() {
		fmt.Fprint(w, " : ")
		vm.printVal(w, v, repr)
	}
	fmt.Fprint(w, ")")
}

// ReprString is a convenience wrapper returning Repr's output as a string.
func (vm *VM) ReprString(v Value) string {
	var sb strings.Builder
	vm.Repr(&sb, v)
	return sb.String()
}
