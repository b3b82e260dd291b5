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

// Kind is the tag half of a Value's tag+payload pair. The tag set mirrors
// spec section 3 exactly: the by-value kinds (Nil, Int, Double, Bool, Type,
// ErrorCode, UserPtr) never touch the GC heap; every other kind is backed
// by a heap-allocated object tracked by the GC (see gc.go).
type Kind uint8

const (
	KNil Kind = iota
	KInt
	KDouble
	KBool
	KIdent
	KPair
	KString
	KFunc
	KMacro
	KExtFunc
	KSpecialOp
	KQuote
	KBackquote
	KComma
	KSplice
	KEnv
	KUserPtr
	KType
	KError
	numKinds
)

var kindNames = [numKinds]string{
	KNil:       "nil",
	KInt:       "int",
	KDouble:    "double",
	KBool:      "bool",
	KIdent:     "identifier",
	KPair:      "list",
	KString:    "string",
	KFunc:      "function",
	KMacro:     "macro",
	KExtFunc:   "external function",
	KSpecialOp: "special operation",
	KQuote:     "quote",
	KBackquote: "backquote",
	KComma:     "comma",
	KSplice:    "splice",
	KEnv:       "environment",
	KUserPtr:   "user pointer",
	KType:      "type",
	KError:     "error code",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "?"
}

// isHeapKind reports whether values of kind k own a heap object tracked by
// the GC, per spec section 3's invariant:
//
//	Every value is either by-value (nil, int, double, bool, type-code,
//	error-code, user-pointer) or heap-owned by the GC (all others).
func (k Kind) isHeapKind() bool {
	switch k {
	case KNil, KInt, KDouble, KBool, KType, KError, KUserPtr:
		return false
	default:
		return true
	}
}
