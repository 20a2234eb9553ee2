package jit

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kolkov/uawk/internal/compiler"
)

// emitBody decompiles a straight-line opcode sequence into Go source
// statements, using a symbolic expression stack the same way the VM's own
// dispatch loop uses its runtime one. Any opcode outside the subset below
// fails eligibility rather than being approximated.
func emitBody(prog *compiler.Program, code []compiler.Opcode) (body string, usesMath bool, err error) {
	var stack []string
	var stmts []string

	pop := func() (string, bool) {
		if len(stack) == 0 {
			return "", false
		}
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v, true
	}

	for i := 0; i < len(code); i++ {
		op := code[i]
		switch op {
		case compiler.Num:
			i++
			if i >= len(code) {
				return "", false, ErrNotEligible
			}
			idx := int(code[i])
			if idx < 0 || idx >= len(prog.Nums) {
				return "", false, ErrNotEligible
			}
			stack = append(stack, strconv.FormatFloat(prog.Nums[idx], 'g', -1, 64))

		case compiler.FieldInt:
			i++
			if i >= len(code) {
				return "", false, ErrNotEligible
			}
			idx := int(code[i])
			stack = append(stack, fmt.Sprintf("fieldNum(fields, %d)", idx))

		case compiler.LoadGlobal:
			i++
			if i >= len(code) {
				return "", false, ErrNotEligible
			}
			idx := int(code[i])
			stack = append(stack, fmt.Sprintf("scalars[%d]", idx))

		case compiler.StoreGlobal:
			i++
			if i >= len(code) {
				return "", false, ErrNotEligible
			}
			idx := int(code[i])
			v, ok := pop()
			if !ok {
				return "", false, ErrNotEligible
			}
			stmts = append(stmts, fmt.Sprintf("scalars[%d] = %s", idx, v))

		case compiler.AugGlobal:
			i++
			if i+1 >= len(code) {
				return "", false, ErrNotEligible
			}
			augOp := compiler.AugOp(code[i])
			i++
			idx := int(code[i])
			v, ok := pop()
			if !ok {
				return "", false, ErrNotEligible
			}
			goOp, ok := augGoOp(augOp)
			if !ok {
				return "", false, ErrNotEligible
			}
			stmts = append(stmts, fmt.Sprintf("scalars[%d] %s= %s", idx, goOp, v))

		case compiler.Add, compiler.Subtract, compiler.Multiply, compiler.Divide,
			compiler.Modulo, compiler.Power,
			compiler.AddNum, compiler.SubNum, compiler.MulNum, compiler.DivNum,
			compiler.ModNum, compiler.PowNum:
			b, ok1 := pop()
			a, ok2 := pop()
			if !ok1 || !ok2 {
				return "", false, ErrNotEligible
			}
			var expr string
			switch op {
			case compiler.Add, compiler.AddNum:
				expr = fmt.Sprintf("(%s + %s)", a, b)
			case compiler.Subtract, compiler.SubNum:
				expr = fmt.Sprintf("(%s - %s)", a, b)
			case compiler.Multiply, compiler.MulNum:
				expr = fmt.Sprintf("(%s * %s)", a, b)
			case compiler.Divide, compiler.DivNum:
				expr = fmt.Sprintf("(%s / %s)", a, b)
			case compiler.Modulo, compiler.ModNum:
				expr = fmt.Sprintf("math.Mod(%s, %s)", a, b)
				usesMath = true
			case compiler.Power, compiler.PowNum:
				expr = fmt.Sprintf("math.Pow(%s, %s)", a, b)
				usesMath = true
			}
			stack = append(stack, expr)

		case compiler.UnaryMinus, compiler.NegNum:
			a, ok := pop()
			if !ok {
				return "", false, ErrNotEligible
			}
			stack = append(stack, fmt.Sprintf("(-%s)", a))

		case compiler.Dupe:
			v, ok := pop()
			if !ok {
				return "", false, ErrNotEligible
			}
			stack = append(stack, v, v)

		case compiler.Drop:
			if _, ok := pop(); !ok {
				return "", false, ErrNotEligible
			}
			// Dropped values still need their side effects (none here,
			// since every pushable expression above is pure), so nothing
			// to emit.

		default:
			return "", false, ErrNotEligible
		}
	}

	if len(stack) != 0 {
		// A well-formed action leaves nothing on the stack; anything left
		// over means an opcode shape this decompiler didn't model.
		return "", false, ErrNotEligible
	}

	return strings.Join(stmts, "\n"), usesMath, nil
}

// augGoOp maps an AugOp to the Go compound-assignment operator it emits as.
// AugPow/AugMod have no Go operator and use the math package via StoreGlobal
// chains instead, so they're not eligible here.
func augGoOp(op compiler.AugOp) (string, bool) {
	switch op {
	case compiler.AugAdd:
		return "+", true
	case compiler.AugSub:
		return "-", true
	case compiler.AugMul:
		return "*", true
	case compiler.AugDiv:
		return "/", true
	default:
		return "", false
	}
}
