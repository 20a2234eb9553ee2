package uawk

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/kolkov/uawk/internal/compiler"
	"github.com/kolkov/uawk/internal/vm"
)

// Program represents a compiled AWK program ready for execution.
// It is safe for concurrent use; each call to Run creates an
// independent execution context.
type Program struct {
	compiled *compiler.Program
	source   string // Original source for debugging
}

// Run executes the compiled program with the given input and configuration.
// Returns the output as a string, or an error if execution fails.
//
// If config is nil, default configuration is used.
// If config.Output is set, output is written there and the returned
// string will be empty.
func (p *Program) Run(input io.Reader, config *Config) (string, error) {
	if config == nil {
		config = &Config{}
	}
	if err := validateModes(config); err != nil {
		return "", err
	}
	config.applyDefaults()

	var outputBuf *bytes.Buffer
	var output io.Writer
	if config.Output == nil {
		outputBuf = &bytes.Buffer{}
		output = outputBuf
	} else {
		output = config.Output
	}

	if pe := p.newParallelExecutor(config); pe != nil {
		err := pe.Run(context.Background(), input, output)
		return p.finishRun(outputBuf, err)
	}

	// Create VM with regex configuration
	v := p.createVM(config)
	defer p.putVM(v)

	// Configure VM
	configureVM(v, config)

	// Set input
	v.SetInput(input)
	v.SetOutput(output)

	// Execute
	err := v.Run()
	return p.finishRun(outputBuf, err)
}

// finishRun turns a VM/ParallelExecutor error into Run's/RunFiles' return
// shape: exit 0 is success, a nonzero exit surfaces as *ExitError alongside
// whatever was written before exiting, and any other error discards output.
func (p *Program) finishRun(outputBuf *bytes.Buffer, err error) (string, error) {
	if err != nil {
		if exitErr, ok := err.(*vm.ExitError); ok {
			if exitErr.Code != 0 {
				out := ""
				if outputBuf != nil {
					out = outputBuf.String()
				}
				return out, &ExitError{Code: exitErr.Code}
			}
			// exit 0 is success, not an error
			err = nil
		}
	}

	if err != nil {
		return "", &RuntimeError{Message: err.Error()}
	}

	if outputBuf != nil {
		return outputBuf.String(), nil
	}
	return "", nil
}

// NamedReader pairs an input stream with the name it should report as
// FILENAME while its records are being processed.
type NamedReader struct {
	Name   string
	Reader io.Reader
}

// RunFiles executes the compiled program over a sequence of named input
// files, firing BEGINFILE/ENDFILE and resetting FNR at each file boundary.
// Use this instead of Run when FILENAME/FNR must track real file
// boundaries across multiple inputs.
func (p *Program) RunFiles(files []NamedReader, config *Config) (string, error) {
	if config == nil {
		config = &Config{}
	}
	if err := validateModes(config); err != nil {
		return "", err
	}
	config.applyDefaults()

	var outputBuf *bytes.Buffer
	var output io.Writer
	if config.Output == nil {
		outputBuf = &bytes.Buffer{}
		output = outputBuf
	} else {
		output = config.Output
	}

	// A single named file can still go through the parallel path; multiple
	// files can't, since chunking loses the FILENAME/FNR boundary between
	// them.
	if len(files) == 1 {
		if pe := p.newParallelExecutor(config); pe != nil {
			name := files[0].Name
			baseConfigure := pe.Configure
			pe.Configure = func(v *vm.VM) {
				baseConfigure(v)
				v.SetFilename(name)
			}
			err := pe.Run(context.Background(), files[0].Reader, output)
			return p.finishRun(outputBuf, err)
		}
	}

	v := p.createVM(config)
	defer p.putVM(v)

	configureVM(v, config)

	inputFiles := make([]vm.InputFile, len(files))
	for i, f := range files {
		inputFiles[i] = vm.InputFile{Name: f.Name, Reader: f.Reader}
	}
	v.SetInputFiles(inputFiles)
	v.SetOutput(output)

	err := v.Run()
	return p.finishRun(outputBuf, err)
}

// Disassemble returns a human-readable representation of the compiled bytecode.
// Useful for debugging and understanding program structure.
func (p *Program) Disassemble() string {
	return p.compiled.Disassemble()
}

// Source returns the original AWK source code.
func (p *Program) Source() string {
	return p.source
}

// createVM creates a new VM with the specified configuration.
func (p *Program) createVM(config *Config) *vm.VM {
	// Determine POSIX regex mode (default: true for AWK compatibility)
	posixRegex := true
	if config.POSIXRegex != nil {
		posixRegex = *config.POSIXRegex
	}

	vmConfig := vm.VMConfig{POSIXRegex: posixRegex}
	return vm.NewWithConfig(p.compiled, vmConfig)
}

// putVM returns a VM to the pool for reuse.
func (p *Program) putVM(v *vm.VM) {
	// Note: VM would need a Reset() method for proper reuse
	// For now, we don't reuse VMs to ensure clean state
	// p.vmPool.Put(v)
}

// configureVM applies Config settings to a VM.
func configureVM(v *vm.VM, config *Config) {
	// Set args
	if len(config.Args) > 0 {
		v.SetArgs(config.Args)
	}

	// Apply field/record separators
	if config.FS != "" && config.FS != " " {
		v.SetFS(config.FS)
	}
	if config.RS != "" && config.RS != "\n" {
		v.SetRS(config.RS)
	}
	if config.OFS != "" && config.OFS != " " {
		v.SetOFS(config.OFS)
	}
	if config.ORS != "" && config.ORS != "\n" {
		v.SetORS(config.ORS)
	}

	// Apply custom variables
	for name, value := range config.Variables {
		v.SetVar(name, value)
	}

	mode, _ := parseInputMode(config.InputMode)
	v.SetInputMode(mode)
	outMode, _ := parseInputMode(config.OutputMode)
	v.SetOutputMode(outMode)
	v.SetHeader(config.Header)
	v.SetUseChars(config.UseChars)
	v.SetUseJIT(config.UseJIT)
}

// CanParallelize analyzes the compiled program for parallel execution safety
// using the given record separator and returns the result.
func (p *Program) CanParallelize(rs string) *vm.ParallelAnalysis {
	return vm.AnalyzeParallelSafety(p.compiled, rs)
}

// newParallelExecutor returns a ready-to-run *vm.ParallelExecutor when the
// program and config make automatic parallel execution safe, or nil when
// the caller should fall back to the ordinary sequential VM.
//
// Eligibility mirrors the contract documented on Config.MaxWorkers: a
// PREPARE block must be present (it's the program's explicit signal that
// per-chunk workers can start from a known-safe state), and analysis must
// find no unsafe construct (getline, next/nextfile, system(), file/pipe
// redirection, range patterns, user functions) and no BEGINFILE/ENDFILE
// blocks, which the chunked reader never fires. CSV/TSV input mode is
// excluded because byte-offset chunking can't track quote state across a
// chunk boundary.
func (p *Program) newParallelExecutor(config *Config) *vm.ParallelExecutor {
	if config.MaxWorkers == 1 {
		return nil
	}
	if len(p.compiled.Prepare) == 0 {
		return nil
	}
	if len(p.compiled.BeginFile) > 0 || len(p.compiled.EndFile) > 0 {
		return nil
	}
	if config.InputMode != "" {
		return nil
	}

	analysis := vm.AnalyzeParallelSafety(p.compiled, config.RS)
	if !analysis.CanParallelize() {
		return nil
	}

	posixRegex := true
	if config.POSIXRegex != nil {
		posixRegex = *config.POSIXRegex
	}
	vmConfig := vm.VMConfig{POSIXRegex: posixRegex}

	parallelConfig := vm.DefaultParallelConfig()
	if config.MaxWorkers > 0 {
		parallelConfig.NumWorkers = config.MaxWorkers
	}

	pe := vm.NewParallelExecutor(p.compiled, vmConfig, parallelConfig)
	pe.Configure = func(v *vm.VM) {
		configureVM(v, config)
	}
	return pe
}

// parseInputMode maps a Config.InputMode/OutputMode string to a vm.InputMode.
func parseInputMode(mode string) (vm.InputMode, error) {
	switch mode {
	case "":
		return vm.InputModeDefault, nil
	case "csv":
		return vm.InputModeCSV, nil
	case "tsv":
		return vm.InputModeTSV, nil
	default:
		return vm.InputModeDefault, &UsageError{Message: fmt.Sprintf("unknown mode %q (want csv or tsv)", mode)}
	}
}

// validateModes rejects configuration combinations that cannot be
// satisfied: CSV/TSV input mode is incompatible with paragraph mode
// (RS=""), since a blank line inside a quoted field would otherwise be
// mistaken for a paragraph break.
func validateModes(config *Config) error {
	if _, err := parseInputMode(config.InputMode); err != nil {
		return err
	}
	if _, err := parseInputMode(config.OutputMode); err != nil {
		return err
	}
	if config.InputMode != "" && config.RS == "" {
		return &UsageError{Message: "CSV/TSV input mode is incompatible with paragraph mode (RS=\"\")"}
	}
	return nil
}
