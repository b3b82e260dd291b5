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

package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/db47h/cheax/vm"
	"github.com/pkg/errors"
)

const version = "cheax 0.1.0"

var (
	cmdExpr     string
	preprocOnly bool
	noPrelude   bool
	showVersion bool
	debug       bool

	stackDepth     int64
	memCeiling     int64
	gcThreshold    int64
	hyperGC        bool
	tailcallElim   = true
	backtraceDepth int64
	allowRedef     bool
	genDebugInfo   bool
)

func atExit(err error) {
	if err == nil {
		return
	}
	if !debug {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "%+v\n", err)
	os.Exit(1)
}

// source is one unit of input to run or preprocess: a file, stdin, or the
// literal string given to -c.
type source struct {
	name   string
	reader io.Reader
}

func openSources(args []string) ([]source, error) {
	if cmdExpr != "" {
		return []source{{name: "<command-line>", reader: strings.NewReader(cmdExpr)}}, nil
	}
	if len(args) == 0 {
		return []source{{name: "<stdin>", reader: os.Stdin}}, nil
	}
	srcs := make([]source, 0, len(args))
	for _, a := range args {
		if a == "-" {
			srcs = append(srcs, source{name: "<stdin>", reader: os.Stdin})
			continue
		}
		f, err := os.Open(a)
		if err != nil {
			return nil, errors.Wrapf(err, "opening %s", a)
		}
		srcs = append(srcs, source{name: a, reader: f})
	}
	return srcs, nil
}

// run evaluates every top-level form of src in turn.
func run(i *vm.VM, src source) error {
	_, err := i.ReadEval(src.reader, src.name)
	return err
}

// preprocess reads and preprocesses (without evaluating) every top-level
// form of src, printing each result to stdout.
func preprocess(i *vm.VM, src source, out io.Writer) error {
	br := bufio.NewReader(src.reader)
	r := i.NewReader(br, src.name)
	if err := r.SkipShebang(); err != nil {
		return err
	}
	for {
		form, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		pp, err := i.Preprocess(form)
		if err != nil {
			return err
		}
		if err := i.Print(out, pp); err != nil {
			return err
		}
		fmt.Fprintln(out)
	}
}

func main() {
	var err error
	defer func() { atExit(err) }()

	flag.StringVar(&cmdExpr, "c", "", "evaluate `expr` as a single command-line expression")
	flag.BoolVar(&preprocOnly, "E", false, "preprocess only; write the result to stdout")
	flag.BoolVar(&noPrelude, "p", false, "do not auto-load the prelude (no-op: this build has no prelude loader)")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.BoolVar(&debug, "debug", false, "print a full error chain on failure")

	flag.Int64Var(&stackDepth, "stack-depth", 0, "max non-tail call stack depth (0: use the default)")
	flag.Int64Var(&memCeiling, "mem-ceiling", 0, "GC allocation ceiling in bytes (0: unlimited)")
	flag.Int64Var(&gcThreshold, "gc-threshold", 0, "bytes allocated between GC passes (0: use the default)")
	flag.BoolVar(&hyperGC, "hyper-gc", false, "collect after every top-level form")
	flag.BoolVar(&tailcallElim, "tailcall-elimination", true, "enable tail-call elimination")
	flag.Int64Var(&backtraceDepth, "backtrace-depth", 0, "bounded backtrace ring size (0: use the default)")
	flag.BoolVar(&allowRedef, "allow-redef", false, "permit redefining an existing global binding")
	flag.BoolVar(&genDebugInfo, "gen-debug-info", false, "attach source-location info to every list cons read")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [OPTIONS] [FILE]...\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	stdout := bufio.NewWriter(os.Stdout)
	defer stdout.Flush()

	opts := []vm.Option{vm.WithStdout(stdout), vm.WithStderr(os.Stderr)}
	if stackDepth > 0 {
		opts = append(opts, vm.WithMaxStackDepth(int(stackDepth)))
	}
	if memCeiling > 0 {
		opts = append(opts, vm.WithMemCeiling(uintptr(memCeiling)))
	}

	var i *vm.VM
	i, err = vm.New(opts...)
	if err != nil {
		return
	}
	defer i.Close()

	flag.Visit(func(f *flag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "gc-threshold":
			if gcThreshold > 0 {
				err = i.SetInt(vm.CfgGCThreshold, gcThreshold)
			}
		case "hyper-gc":
			err = i.SetBool(vm.CfgHyperGC, hyperGC)
		case "tailcall-elimination":
			err = i.SetBool(vm.CfgTailcallElimination, tailcallElim)
		case "backtrace-depth":
			err = i.SetInt(vm.CfgBacktraceDepth, backtraceDepth)
		case "allow-redef":
			err = i.SetBool(vm.CfgAllowRedef, allowRedef)
		case "gen-debug-info":
			err = i.SetBool(vm.CfgGenDebugInfo, genDebugInfo)
		}
	})
	if err != nil {
		return
	}

	var srcs []source
	srcs, err = openSources(flag.Args())
	if err != nil {
		return
	}

	for _, src := range srcs {
		if preprocOnly {
			err = preprocess(i, src, stdout)
		} else {
			err = run(i, src)
		}
		if err != nil {
			return
		}
	}
}
