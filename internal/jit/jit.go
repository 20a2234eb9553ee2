// Package jit compiles a narrow class of AWK main actions to native code
// via a Go plugin, as a fast path alongside the bytecode interpreter.
//
// Eligible programs are exactly one unconditional action (no pattern) whose
// body is straight-line arithmetic over fields and global scalars - the
// shape of a numeric accumulation loop like `{ sum += $1 }`. Anything with
// control flow, user calls, array access, or string builtins falls back to
// the interpreter; Compile returns ErrNotEligible rather than attempting a
// partial translation.
package jit

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"plugin"
	"text/template"

	"github.com/kolkov/uawk/internal/compiler"
)

// ErrNotEligible is returned by Compile when prog's main action uses any
// construct outside the opcode subset this package understands.
var ErrNotEligible = errors.New("jit: program not eligible for native compilation")

// RunFunc is the signature every compiled plugin exports as Run. fields
// holds the current record's $1.. by 1-based position, scalars holds the
// VM's global scalar registers converted to float64 (the JIT only ever
// targets numeric accumulation, never string-valued globals), and output
// receives anything the action prints.
type RunFunc func(fields []string, scalars []float64, output io.Writer) error

// CompiledAction is a successfully JIT-compiled main action, loaded as a
// plugin from a temporary build directory.
type CompiledAction struct {
	Run RunFunc
	dir string
}

// Close removes the temporary directory used to build the plugin. The
// loaded code itself is never unloaded - the Go runtime provides no way to
// do that - so Close only reclaims disk space and is safe to call while Run
// is still reachable.
func (c *CompiledAction) Close() error {
	if c.dir == "" {
		return nil
	}
	return os.RemoveAll(c.dir)
}

// Eligible reports whether prog's main action can be compiled by this
// package: exactly one unconditional action, built only from the opcode
// subset emitBody understands.
func Eligible(prog *compiler.Program) bool {
	if len(prog.Actions) != 1 {
		return false
	}
	action := prog.Actions[0]
	if len(action.Pattern) != 0 {
		return false
	}
	if len(action.Body) == 0 {
		return false
	}
	_, _, err := emitBody(prog, action.Body)
	return err == nil
}

// Compile builds and loads a native plugin for prog's main action.
// goBuild is the "go" binary to invoke; pass "" to use the one on PATH.
func Compile(prog *compiler.Program, goBuild string) (*CompiledAction, error) {
	if len(prog.Actions) != 1 || len(prog.Actions[0].Pattern) != 0 {
		return nil, ErrNotEligible
	}
	body, usesMath, err := emitBody(prog, prog.Actions[0].Body)
	if err != nil {
		return nil, err
	}

	if goBuild == "" {
		goBuild = "go"
	}

	dir, err := os.MkdirTemp("", "uawk-jit-")
	if err != nil {
		return nil, fmt.Errorf("jit: %w", err)
	}
	cleanup := true
	defer func() {
		if cleanup {
			os.RemoveAll(dir)
		}
	}()

	srcPath := filepath.Join(dir, "action.go")
	src, err := renderSource(body, usesMath)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(srcPath, src, 0o600); err != nil {
		return nil, fmt.Errorf("jit: %w", err)
	}

	soPath := filepath.Join(dir, "action.so")
	cmd := exec.Command(goBuild, "build", "-buildmode=plugin", "-o", soPath, srcPath)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("jit: plugin build failed: %w: %s", err, stderr.String())
	}

	p, err := plugin.Open(soPath)
	if err != nil {
		return nil, fmt.Errorf("jit: %w", err)
	}
	sym, err := p.Lookup("Run")
	if err != nil {
		return nil, fmt.Errorf("jit: %w", err)
	}
	fn, ok := sym.(func([]string, []float64, io.Writer) error)
	if !ok {
		return nil, errors.New("jit: plugin Run has unexpected signature")
	}

	cleanup = false
	return &CompiledAction{Run: fn, dir: dir}, nil
}

var sourceTemplate = template.Must(template.New("action").Parse(`package main

import (
	"io"
	"strconv"
{{if .UsesMath}}	"math"
{{end}})

func fieldNum(fields []string, i int) float64 {
	if i < 1 || i > len(fields) {
		return 0
	}
	return parsePrefixFloat(fields[i-1])
}

// parsePrefixFloat mirrors AWK's string-to-number conversion: the longest
// valid numeric prefix, or 0 if there is none. strconv.ParseFloat alone
// isn't enough since it requires the whole string to be numeric, but a
// field like "3ms" still converts to 3 under AWK rules.
func parsePrefixFloat(s string) float64 {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n') {
		i++
	}
	j := i
	if j < len(s) && (s[j] == '+' || s[j] == '-') {
		j++
	}
	start := j
	for j < len(s) && s[j] >= '0' && s[j] <= '9' {
		j++
	}
	if j < len(s) && s[j] == '.' {
		j++
		for j < len(s) && s[j] >= '0' && s[j] <= '9' {
			j++
		}
	}
	if j == start {
		return 0
	}
	v, err := strconv.ParseFloat(s[i:j], 64)
	if err != nil {
		return 0
	}
	return v
}

func Run(fields []string, scalars []float64, output io.Writer) error {
	_ = output
{{.Body}}
	return nil
}
`))

type sourceData struct {
	Body     string
	UsesMath bool
}

func renderSource(body string, usesMath bool) ([]byte, error) {
	var buf bytes.Buffer
	if err := sourceTemplate.Execute(&buf, sourceData{Body: body, UsesMath: usesMath}); err != nil {
		return nil, fmt.Errorf("jit: %w", err)
	}
	return buf.Bytes(), nil
}
