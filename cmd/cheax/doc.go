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

// The cheax command line tool is a thin driver for package
// github.com/db47h/cheax/vm: it wires flags to VM construction and to
// the package's Read/Preprocess/Eval entry points, with no interpreter
// logic of its own.
//
// Usage:
//
//	cheax [OPTIONS] [FILE]...
//
//	-c expr
//		  evaluate expr as a single command-line expression
//	-E
//		  preprocess only; write the result to stdout
//	-p
//		  do not auto-load the prelude (no-op: this build has no prelude loader)
//	-debug
//		  print a full error chain on failure
//	-version
//		  print version and exit
//	-stack-depth int
//		  max non-tail call stack depth (0: use the default)
//	-mem-ceiling int
//		  GC allocation ceiling in bytes (0: unlimited)
//	-gc-threshold int
//		  bytes allocated between GC passes (0: use the default)
//	-hyper-gc
//		  collect after every top-level form
//	-tailcall-elimination
//		  enable tail-call elimination (default true)
//	-backtrace-depth int
//		  bounded backtrace ring size (0: use the default)
//
// With no FILE arguments and no -c, cheax reads and evaluates forms from
// stdin. A single "-" in place of a filename also reads stdin. Source
// text is UTF-8; an initial "#!" line is skipped.
package main
