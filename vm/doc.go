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

// Package vm implements the core of cheax, a small embeddable Lisp-family
// interpreter: a tagged Value representation with a tracing garbage
// collector, a bifurcated environment/scope chain, a reader, a
// macroexpander and preprocessor, a tree-walking evaluator with tail-call
// elimination, and exception-style error handling with backtraces.
//
// A host application embeds cheax by creating a *VM with New, registering
// native operations with DefFun/DefSyntax/DefSym, optionally syncing host
// variables with interpreter symbols, and then reading and evaluating
// expressions with Read/Eval or the ReadEval convenience wrapper.
//
// cheax is single-threaded: one VM value must not be used concurrently
// from multiple goroutines.
package vm
