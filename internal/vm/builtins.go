package vm

import (
	"fmt"
	"math"
	"math/rand"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kolkov/uawk/internal/compiler"
	"github.com/kolkov/uawk/internal/runtime"
	"github.com/kolkov/uawk/internal/types"
)

// callBuiltin executes a built-in function.
func (vm *VM) callBuiltin(op compiler.BuiltinOp) error {
	switch op {
	case compiler.BuiltinAtan2:
		// atan2(y, x) - args pushed in order, so pop in reverse
		x := vm.pop().AsNum()
		y := vm.pop().AsNum()
		vm.push(types.Num(math.Atan2(y, x)))

	case compiler.BuiltinClose:
		name := vm.pop().AsStr(vm.convfmt)
		result := vm.closeFile(name)
		vm.push(types.Num(float64(result)))

	case compiler.BuiltinCos:
		x := vm.pop().AsNum()
		vm.push(types.Num(math.Cos(x)))

	case compiler.BuiltinExp:
		x := vm.pop().AsNum()
		vm.push(types.Num(math.Exp(x)))

	case compiler.BuiltinFflush:
		name := vm.pop().AsStr(vm.convfmt)
		result := vm.flushFile(name)
		vm.push(types.Num(float64(result)))

	case compiler.BuiltinFflushAll:
		result := vm.flushAll()
		vm.push(types.Num(float64(result)))

	case compiler.BuiltinGsub:
		target := vm.pop().AsStr(vm.convfmt)
		replacement := vm.pop().AsStr(vm.convfmt)
		pattern := vm.pop().AsStr(vm.convfmt)
		result, count := vm.builtinGsub(pattern, replacement, target)
		// Push both count and result (result on top for assignment)
		vm.push(types.Num(float64(count)))
		vm.push(types.Str(result))

	case compiler.BuiltinIndex:
		substr := vm.pop().AsStr(vm.convfmt)
		str := vm.pop().AsStr(vm.convfmt)
		idx := strings.Index(str, substr)
		if idx < 0 {
			vm.push(types.Num(0))
		} else if vm.useChars {
			// AWK uses 1-based indexing, counted in runes under -c
			vm.push(types.Num(float64(utf8.RuneCountInString(str[:idx]) + 1)))
		} else {
			vm.push(types.Num(float64(idx + 1)))
		}

	case compiler.BuiltinInt:
		x := vm.pop().AsNum()
		vm.push(types.Num(math.Trunc(x)))

	case compiler.BuiltinLength:
		// length() with no args - length of $0
		if vm.useChars {
			vm.push(types.Num(float64(utf8.RuneCountInString(vm.line))))
		} else {
			vm.push(types.Num(float64(len(vm.line))))
		}

	case compiler.BuiltinLengthArg:
		s := vm.pop().AsStr(vm.convfmt)
		if vm.useChars {
			vm.push(types.Num(float64(utf8.RuneCountInString(s))))
		} else {
			vm.push(types.Num(float64(len(s))))
		}

	case compiler.BuiltinLog:
		x := vm.pop().AsNum()
		vm.push(types.Num(math.Log(x)))

	case compiler.BuiltinMatch:
		// match(str, pattern) - args pushed in order, pop in reverse
		pattern := vm.pop().AsStr(vm.convfmt)
		str := vm.pop().AsStr(vm.convfmt)
		rstart, rlength := vm.builtinMatch(str, pattern)
		vm.specials.RSTART = rstart
		vm.specials.RLENGTH = rlength
		vm.push(types.Num(float64(rstart)))

	case compiler.BuiltinRand:
		vm.push(types.Num(vm.randSource.Float64()))

	case compiler.BuiltinSin:
		x := vm.pop().AsNum()
		vm.push(types.Num(math.Sin(x)))

	case compiler.BuiltinSqrt:
		x := vm.pop().AsNum()
		vm.push(types.Num(math.Sqrt(x)))

	case compiler.BuiltinSrand:
		// srand() with no args - use current time
		seed := time.Now().UnixNano()
		vm.randSource = rand.New(rand.NewSource(seed))
		vm.push(types.Num(float64(seed)))

	case compiler.BuiltinSrandSeed:
		seed := int64(vm.pop().AsNum())
		vm.randSource = rand.New(rand.NewSource(seed))
		vm.push(types.Num(float64(seed)))

	case compiler.BuiltinSub:
		target := vm.pop().AsStr(vm.convfmt)
		replacement := vm.pop().AsStr(vm.convfmt)
		pattern := vm.pop().AsStr(vm.convfmt)
		result, count := vm.builtinSub(pattern, replacement, target)
		// Push both count and result (result on top for assignment)
		vm.push(types.Num(float64(count)))
		vm.push(types.Str(result))

	case compiler.BuiltinSubstr:
		// substr(s, start) - from start to end
		start := int(vm.pop().AsNum())
		s := vm.pop().AsStr(vm.convfmt)
		result := vm.builtinSubstr(s, start, vm.substrLen(s))
		vm.push(types.Str(result))

	case compiler.BuiltinSubstrLen:
		// substr(s, start, length)
		length := int(vm.pop().AsNum())
		start := int(vm.pop().AsNum())
		s := vm.pop().AsStr(vm.convfmt)
		result := vm.builtinSubstr(s, start, length)
		vm.push(types.Str(result))

	case compiler.BuiltinSystem:
		cmd := vm.pop().AsStr(vm.convfmt)
		result := vm.builtinSystem(cmd)
		vm.push(types.Num(float64(result)))

	case compiler.BuiltinTolower:
		s := vm.pop().AsStr(vm.convfmt)
		vm.push(types.Str(toLowerASCII(s)))

	case compiler.BuiltinToupper:
		s := vm.pop().AsStr(vm.convfmt)
		vm.push(types.Str(toUpperASCII(s)))

	case compiler.BuiltinFloat:
		x := vm.pop().AsNum()
		vm.push(types.Num(x))

	case compiler.BuiltinAbs:
		x := vm.pop().AsNum()
		vm.push(types.Num(math.Abs(x)))

	case compiler.BuiltinHex:
		n := int64(vm.pop().AsNum())
		vm.push(types.Str(strconv.FormatInt(n, 16)))

	case compiler.BuiltinStrtonum:
		s := vm.pop().AsStr(vm.convfmt)
		vm.push(types.Num(builtinStrtonum(s)))

	case compiler.BuiltinJoinFields:
		end := int(vm.pop().AsNum())
		start := int(vm.pop().AsNum())
		vm.push(types.Str(vm.builtinJoinFields(start, end, vm.ofs)))

	case compiler.BuiltinJoinFieldsSep:
		sep := vm.pop().AsStr(vm.convfmt)
		end := int(vm.pop().AsNum())
		start := int(vm.pop().AsNum())
		vm.push(types.Str(vm.builtinJoinFields(start, end, sep)))

	case compiler.BuiltinTypeof:
		v := vm.pop()
		vm.push(types.Str(typeofValue(v)))

	default:
		return fmt.Errorf("unknown builtin op: %d", op)
	}

	return nil
}

// callBuiltinArr1 implements single-array-argument builtins that reduce the
// array's values to a scalar or joined string.
func (vm *VM) callBuiltinArr1(op compiler.BuiltinOp, arr map[string]types.Value) (types.Value, error) {
	switch op {
	case compiler.BuiltinJoinCSV:
		return types.Str(vm.builtinJoinDelim(arr, ",", true)), nil
	case compiler.BuiltinJoinTSV:
		return types.Str(vm.builtinJoinDelim(arr, "\t", false)), nil
	case compiler.BuiltinArrMin:
		return arrReduce(arr, math.Inf(1), math.Min), nil
	case compiler.BuiltinArrMax:
		return arrReduce(arr, math.Inf(-1), math.Max), nil
	case compiler.BuiltinArrSum:
		sum := 0.0
		for _, v := range arr {
			sum += v.AsNum()
		}
		return types.Num(sum), nil
	case compiler.BuiltinArrMean:
		if len(arr) == 0 {
			return types.Num(0), nil
		}
		sum := 0.0
		for _, v := range arr {
			sum += v.AsNum()
		}
		return types.Num(sum / float64(len(arr))), nil
	default:
		return types.Null(), fmt.Errorf("unknown array builtin op: %d", op)
	}
}

// arrReduce folds an array's values numerically with the given accumulator op.
func arrReduce(arr map[string]types.Value, init float64, combine func(a, b float64) float64) types.Value {
	acc := init
	for _, v := range arr {
		acc = combine(acc, v.AsNum())
	}
	if len(arr) == 0 {
		return types.Num(0)
	}
	return types.Num(acc)
}

// callBuiltinArr2 implements asort/uniq: src is sorted (and de-duplicated for
// uniq) into dst, which may alias src for an in-place operation. Returns the
// resulting element count.
func (vm *VM) callBuiltinArr2(op compiler.BuiltinOp, src, dst map[string]types.Value) (int, error) {
	values := make([]types.Value, 0, len(src))
	for _, v := range src {
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool {
		return types.Compare(values[i], values[j]) < 0
	})

	if op == compiler.BuiltinUniq {
		deduped := values[:0]
		for i, v := range values {
			if i == 0 || types.Compare(v, deduped[len(deduped)-1]) != 0 {
				deduped = append(deduped, v)
			}
		}
		values = deduped
	}

	for k := range dst {
		delete(dst, k)
	}
	for i, v := range values {
		dst[strconv.Itoa(i+1)] = v
	}
	return len(values), nil
}

// callBuiltinArrSep implements _join(arr, sep): joins an array's values,
// ordered by numeric index when all keys are plain integers, else by sorted
// key, with sep between them.
func (vm *VM) callBuiltinArrSep(op compiler.BuiltinOp, arr map[string]types.Value, sep string) types.Value {
	keys := sortedArrayKeys(arr)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = arr[k].AsStr(vm.convfmt)
	}
	return types.Str(strings.Join(parts, sep))
}

// callBuiltinSeq implements seq(arr, start, end, step): fills arr with
// 1..n -> start, start+step, ..., and returns the element count.
func (vm *VM) callBuiltinSeq(arr map[string]types.Value, start, end, step float64) int {
	for k := range arr {
		delete(arr, k)
	}
	if step == 0 {
		return 0
	}
	n := 0
	if step > 0 {
		for v := start; v <= end; v += step {
			n++
			arr[strconv.Itoa(n)] = types.Num(v)
		}
	} else {
		for v := start; v >= end; v += step {
			n++
			arr[strconv.Itoa(n)] = types.Num(v)
		}
	}
	return n
}

// callBuiltinVariadic implements min/max over an arbitrary number of
// already-evaluated scalar arguments.
func (vm *VM) callBuiltinVariadic(op compiler.BuiltinOp, args []types.Value) (types.Value, error) {
	if len(args) == 0 {
		return types.Num(0), nil
	}
	best := args[0]
	for _, v := range args[1:] {
		switch op {
		case compiler.BuiltinMinScalar:
			if types.Compare(v, best) < 0 {
				best = v
			}
		case compiler.BuiltinMaxScalar:
			if types.Compare(v, best) > 0 {
				best = v
			}
		default:
			return types.Null(), fmt.Errorf("unknown variadic builtin op: %d", op)
		}
	}
	return best, nil
}

// sortedArrayKeys returns an array's keys in numeric order when every key
// parses as a number, else in lexical order.
func sortedArrayKeys(arr map[string]types.Value) []string {
	keys := make([]string, 0, len(arr))
	allNum := true
	for k := range arr {
		keys = append(keys, k)
		if _, err := strconv.ParseFloat(k, 64); err != nil {
			allNum = false
		}
	}
	if allNum {
		sort.Slice(keys, func(i, j int) bool {
			a, _ := strconv.ParseFloat(keys[i], 64)
			b, _ := strconv.ParseFloat(keys[j], 64)
			return a < b
		})
	} else {
		sort.Strings(keys)
	}
	return keys
}

// builtinJoinFields joins fields start..end (1-based, inclusive) with sep.
func (vm *VM) builtinJoinFields(start, end int, sep string) string {
	vm.ensureFields()
	if end > vm.numFields {
		end = vm.numFields
	}
	if start < 1 || start > end {
		return ""
	}
	parts := make([]string, 0, end-start+1)
	for i := start; i <= end; i++ {
		parts = append(parts, vm.getField(i).AsStr(vm.convfmt))
	}
	return strings.Join(parts, sep)
}

// builtinJoinDelim renders an array as a single CSV/TSV record, quoting
// fields per RFC 4180 when csvQuoting is set.
func (vm *VM) builtinJoinDelim(arr map[string]types.Value, delim string, csvQuoting bool) string {
	keys := sortedArrayKeys(arr)
	parts := make([]string, len(keys))
	for i, k := range keys {
		s := arr[k].AsStr(vm.convfmt)
		if csvQuoting && (strings.ContainsAny(s, delim+"\"\n\r")) {
			s = `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
		}
		parts[i] = s
	}
	return strings.Join(parts, delim)
}

// builtinStrtonum parses a string the way AWK's strtonum does: recognizing
// a leading 0x/0X hex prefix or a leading 0 octal prefix before falling back
// to ordinary decimal parsing. Other strings go through AsNum's prefix
// parsing, so a non-numeric string yields 0; a 0x string containing a
// non-hex character also yields 0.
func builtinStrtonum(s string) float64 {
	t := strings.TrimSpace(s)
	neg := false
	if strings.HasPrefix(t, "-") {
		neg, t = true, t[1:]
	} else if strings.HasPrefix(t, "+") {
		t = t[1:]
	}
	var n float64
	switch {
	case strings.HasPrefix(t, "0x") || strings.HasPrefix(t, "0X"):
		v, err := strconv.ParseUint(t[2:], 16, 64)
		if err != nil {
			return 0
		}
		n = float64(v)
	case strings.HasPrefix(t, "0") && len(t) > 1 && isAllOctalDigits(t[1:]):
		v, err := strconv.ParseUint(t[1:], 8, 64)
		if err != nil {
			return 0
		}
		n = float64(v)
	default:
		n = types.ParseNumPrefix(t)
	}
	if neg {
		return -n
	}
	return n
}

func isAllOctalDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '7' {
			return false
		}
	}
	return true
}

// typeofValue reports the AWK dynamic type of a scalar value.
func typeofValue(v types.Value) string {
	switch v.Kind() {
	case types.KindNum:
		return "number"
	case types.KindStr:
		return "string"
	case types.KindNumStr:
		return "strnum"
	default:
		return "unassigned"
	}
}

// builtinSplit splits a string into an array.
func (vm *VM) builtinSplit(str string, scope compiler.Scope, arrIdx int, sep string) int {
	arr := vm.getArray(scope, arrIdx)

	// Clear the array first
	for k := range arr {
		delete(arr, k)
	}

	// Empty string returns 0 elements
	if str == "" {
		return 0
	}

	var parts []string
	if sep == " " {
		// Default separator: split on runs of whitespace
		parts = strings.Fields(str)
	} else if len(sep) == 1 {
		// Single character separator
		parts = strings.Split(str, sep)
	} else if sep == "" {
		// Empty separator: split into individual characters
		parts = make([]string, 0, len(str))
		for _, r := range str {
			parts = append(parts, string(r))
		}
	} else {
		// Regex separator - use coregex via cache
		re, err := vm.regexCache.Get(sep)
		if err != nil {
			parts = []string{str}
		} else {
			parts = re.Split(str, -1)
		}
	}

	for i, part := range parts {
		arr[strconv.Itoa(i+1)] = types.Str(part)
	}

	return len(parts)
}

// builtinFromCSV is from_csv's array-populating half: RFC-4180 field
// splitting regardless of FS, written into arr with split()'s "1","2",...
// indexing so from_csv(to_csv(a)) round-trips a.
func (vm *VM) builtinFromCSV(str string, scope compiler.Scope, arrIdx int) int {
	arr := vm.getArray(scope, arrIdx)
	for k := range arr {
		delete(arr, k)
	}
	if str == "" {
		return 0
	}
	parts := runtime.SplitCSVFields(nil, str, ',')
	for i, part := range parts {
		arr[strconv.Itoa(i+1)] = types.Str(part)
	}
	return len(parts)
}

// builtinSprintf implements sprintf with AWK-compatible formatting.
func (vm *VM) builtinSprintf(args []types.Value) string {
	if len(args) == 0 {
		return ""
	}

	format := args[0].AsStr(vm.convfmt)
	values := args[1:]

	var result strings.Builder
	valueIdx := 0

	// Helper to get next value
	getNextValue := func() types.Value {
		if valueIdx < len(values) {
			v := values[valueIdx]
			valueIdx++
			return v
		}
		return types.Null()
	}

	i := 0
	for i < len(format) {
		if format[i] != '%' {
			result.WriteByte(format[i])
			i++
			continue
		}

		// Found a % - parse format specifier
		i++
		if i >= len(format) {
			result.WriteByte('%')
			break
		}

		// Handle %%
		if format[i] == '%' {
			result.WriteByte('%')
			i++
			continue
		}

		// Parse flags: -+ #0
		var flags strings.Builder
		for i < len(format) && strings.ContainsAny(string(format[i]), "-+ #0") {
			flags.WriteByte(format[i])
			i++
		}

		// Parse width (may be * for dynamic)
		var width string
		if i < len(format) && format[i] == '*' {
			// Dynamic width from argument
			w := int(getNextValue().AsNum())
			if w < 0 {
				flags.WriteByte('-')
				w = -w
			}
			width = strconv.Itoa(w)
			i++
		} else {
			for i < len(format) && format[i] >= '0' && format[i] <= '9' {
				width += string(format[i])
				i++
			}
		}

		// Parse precision
		var precision string
		if i < len(format) && format[i] == '.' {
			precision = "."
			i++
			if i < len(format) && format[i] == '*' {
				// Dynamic precision from argument
				p := int(getNextValue().AsNum())
				if p < 0 {
					precision = "" // negative precision is ignored
				} else {
					precision += strconv.Itoa(p)
				}
				i++
			} else {
				for i < len(format) && format[i] >= '0' && format[i] <= '9' {
					precision += string(format[i])
					i++
				}
			}
		}

		if i >= len(format) {
			result.WriteString("%" + flags.String() + width + precision)
			break
		}

		specifier := format[i]
		i++

		// Get the value for this specifier
		value := getNextValue()

		// Build Go format string and format value
		switch specifier {
		case 'd', 'i':
			// %i is same as %d in AWK
			goFmt := "%" + flags.String() + width + precision + "d"
			result.WriteString(fmt.Sprintf(goFmt, int64(value.AsNum())))
		case 'o':
			goFmt := "%" + flags.String() + width + precision + "o"
			result.WriteString(fmt.Sprintf(goFmt, uint64(value.AsNum())))
		case 'x':
			goFmt := "%" + flags.String() + width + precision + "x"
			result.WriteString(fmt.Sprintf(goFmt, uint64(value.AsNum())))
		case 'X':
			goFmt := "%" + flags.String() + width + precision + "X"
			result.WriteString(fmt.Sprintf(goFmt, uint64(value.AsNum())))
		case 'u':
			// %u is unsigned decimal - use %d with uint64
			goFmt := "%" + flags.String() + width + precision + "d"
			result.WriteString(fmt.Sprintf(goFmt, uint64(value.AsNum())))
		case 'c':
			// %c: if number, use as ASCII code; if string, use first char
			// AWK convention: number takes precedence for %c
			if value.IsNum() || value.IsNull() {
				n := int(value.AsNum())
				// Any byte value is valid (0-255)
				if n >= 0 && n <= 255 {
					result.WriteByte(byte(n))
				}
			} else {
				// String value - use first character
				s := value.AsStr(vm.convfmt)
				if len(s) > 0 {
					result.WriteByte(s[0])
				}
			}
		case 's':
			s := value.AsStr(vm.convfmt)
			goFmt := "%" + flags.String() + width + precision + "s"
			result.WriteString(fmt.Sprintf(goFmt, s))
		case 'e':
			goFmt := "%" + flags.String() + width + precision + "e"
			result.WriteString(fmt.Sprintf(goFmt, value.AsNum()))
		case 'E':
			goFmt := "%" + flags.String() + width + precision + "E"
			result.WriteString(fmt.Sprintf(goFmt, value.AsNum()))
		case 'f', 'F':
			goFmt := "%" + flags.String() + width + precision + "f"
			result.WriteString(fmt.Sprintf(goFmt, value.AsNum()))
		case 'g':
			goFmt := "%" + flags.String() + width + precision + "g"
			result.WriteString(fmt.Sprintf(goFmt, value.AsNum()))
		case 'G':
			goFmt := "%" + flags.String() + width + precision + "G"
			result.WriteString(fmt.Sprintf(goFmt, value.AsNum()))
		default:
			result.WriteByte('%')
			result.WriteByte(specifier)
		}
	}

	return result.String()
}

// builtinSubstr implements substr.
// AWK substr(s, start[, length]) uses 1-based indexing.
// If start < 1, it's treated as 1 (beginning of string).
// If start+length extends beyond string, returns to end of string.
func (vm *VM) builtinSubstr(s string, start, length int) string {
	if vm.useChars {
		return vm.builtinSubstrRunes(s, start, length)
	}

	// AWK uses 1-based indexing
	// If start < 1, treat as 1 (POSIX behavior)
	if start < 1 {
		start = 1
	}

	// Convert to 0-based for Go
	start--

	if start >= len(s) || length <= 0 {
		return ""
	}

	end := start + length
	if end > len(s) {
		end = len(s)
	}

	return s[start:end]
}

// builtinSubstrRunes is builtinSubstr's -c counterpart: start/length count
// runes instead of bytes, for scripts processing multi-byte text.
func (vm *VM) builtinSubstrRunes(s string, start, length int) string {
	if start < 1 {
		start = 1
	}
	start--

	runes := []rune(s)
	if start >= len(runes) || length <= 0 {
		return ""
	}

	end := start + length
	if end > len(runes) {
		end = len(runes)
	}

	return string(runes[start:end])
}

// substrLen returns the length to pass to builtinSubstr for the two-arg
// substr(s, start) form, in the unit (bytes or runes) useChars selects.
func (vm *VM) substrLen(s string) int {
	if vm.useChars {
		return utf8.RuneCountInString(s)
	}
	return len(s)
}

// builtinMatch implements match.
func (vm *VM) builtinMatch(str, pattern string) (int, int) {
	re, err := vm.regexCache.Get(pattern)
	if err != nil {
		return 0, -1
	}

	loc := re.FindStringIndex(str)
	if loc == nil {
		return 0, -1
	}

	// AWK uses 1-based indexing
	return loc[0] + 1, loc[1] - loc[0]
}

// builtinSub implements sub (single substitution).
func (vm *VM) builtinSub(pattern, replacement, target string) (string, int) {
	re, err := vm.regexCache.Get(pattern)
	if err != nil {
		return target, 0
	}

	loc := re.FindStringIndex(target)
	if loc == nil {
		return target, 0
	}

	// Handle & in replacement (matched string)
	matched := target[loc[0]:loc[1]]
	repl := handleAwkReplacement(replacement, matched)

	result := target[:loc[0]] + repl + target[loc[1]:]
	return result, 1
}

// builtinGsub implements gsub (global substitution).
func (vm *VM) builtinGsub(pattern, replacement, target string) (string, int) {
	re, err := vm.regexCache.Get(pattern)
	if err != nil {
		return target, 0
	}

	count := 0
	result := re.ReplaceAllStringFunc(target, func(matched string) string {
		count++
		return handleAwkReplacement(replacement, matched)
	})

	return result, count
}

// handleAwkReplacement handles AWK replacement string semantics.
// & is replaced with the matched string, \& is a literal &.
func handleAwkReplacement(replacement, matched string) string {
	var result strings.Builder
	i := 0
	for i < len(replacement) {
		if replacement[i] == '\\' && i+1 < len(replacement) {
			next := replacement[i+1]
			if next == '&' {
				result.WriteByte('&')
				i += 2
				continue
			} else if next == '\\' {
				result.WriteByte('\\')
				i += 2
				continue
			}
		}
		if replacement[i] == '&' {
			result.WriteString(matched)
		} else {
			result.WriteByte(replacement[i])
		}
		i++
	}
	return result.String()
}

// builtinSystem executes a shell command.
func (vm *VM) builtinSystem(cmd string) int {
	c := exec.Command("sh", "-c", cmd)
	c.Stdout = vm.output
	c.Stderr = vm.output

	err := c.Run()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode()
		}
		return 1
	}
	return 0
}

// closeFile closes a file or pipe.
func (vm *VM) closeFile(name string) int {
	return vm.ioManager.Close(name)
}

// flushFile flushes a specific file.
func (vm *VM) flushFile(name string) int {
	return vm.ioManager.Flush(name)
}

// flushAll flushes all files and stdout.
func (vm *VM) flushAll() int {
	// Flush stdout if it's a flushable writer
	if f, ok := vm.output.(interface{ Flush() error }); ok {
		f.Flush()
	}
	return vm.ioManager.Flush("")
}

// toLowerASCII converts string to lowercase with ASCII fast path.
// For pure ASCII strings (90%+ of AWK input), uses byte arithmetic
// instead of Unicode table lookups - 2-3x faster.
func toLowerASCII(s string) string {
	// Fast scan: check if all ASCII and find first uppercase
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			// Found uppercase - need to convert
			return toLowerASCIISlow(s, i)
		}
		if c > 127 {
			// Non-ASCII - fallback to stdlib
			return strings.ToLower(s)
		}
	}
	return s // Already lowercase or no letters
}

// toLowerASCIISlow handles the conversion when uppercase is found.
func toLowerASCIISlow(s string, start int) string {
	b := make([]byte, len(s))
	copy(b, s[:start])
	for i := start; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 32 // ASCII lowercase offset
		} else if c > 127 {
			// Non-ASCII found mid-string - fallback
			return strings.ToLower(s)
		} else {
			b[i] = c
		}
	}
	return string(b)
}

// toUpperASCII converts string to uppercase with ASCII fast path.
// For pure ASCII strings, uses byte arithmetic instead of Unicode tables.
func toUpperASCII(s string) string {
	// Fast scan: check if all ASCII and find first lowercase
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' {
			// Found lowercase - need to convert
			return toUpperASCIISlow(s, i)
		}
		if c > 127 {
			// Non-ASCII - fallback to stdlib
			return strings.ToUpper(s)
		}
	}
	return s // Already uppercase or no letters
}

// toUpperASCIISlow handles the conversion when lowercase is found.
func toUpperASCIISlow(s string, start int) string {
	b := make([]byte, len(s))
	copy(b, s[:start])
	for i := start; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' {
			b[i] = c - 32 // ASCII uppercase offset
		} else if c > 127 {
			// Non-ASCII found mid-string - fallback
			return strings.ToUpper(s)
		} else {
			b[i] = c
		}
	}
	return string(b)
}
