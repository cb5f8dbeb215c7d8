package ir

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Assemble parses a small line-oriented assembly text into a Module. It is
// not elvm's own IR text format — it exists purely so this repository's
// CLI and tests have a concrete, readable way to construct a Module,
// since the IR's own parser is out of scope (§1).
//
// Grammar:
//
//	data:
//	  <int> <int> ...        (one or more lines, whitespace separated)
//	text:
//	  <label>:                (binds label to the pc of the next instruction)
//	  <pc>: <mnemonic> <args> (one instruction; several lines may share a pc)
//
// Comments start with ';' or '#' and run to end of line. Registers are
// A, B, C, D, BP, SP, PC (case-insensitive). Integers are decimal or
// 0x-prefixed hex. Jump targets may be a label name or a raw pc integer.
func Assemble(r io.Reader) (*Module, error) {
	p := &asmParser{
		labels: map[string]int{},
	}
	if err := p.run(r); err != nil {
		return nil, err
	}
	if err := p.resolve(); err != nil {
		return nil, err
	}
	return &Module{Data: p.data, Text: p.text}, nil
}

type asmParser struct {
	section string // "", "data", "text"
	data    []Data
	text    []Inst
	labels  map[string]int

	// pendingLabelNames holds label names seen since the last instruction;
	// they are bound to the pc of the next instruction line parsed.
	pendingLabelNames []string

	// labelRefs holds jump-target operands whose label couldn't be
	// resolved at parse time (the label may be defined later in the
	// file); resolve() fixes them up once every label is known.
	labelRefs []labelRef

	lineNo int
}

func (p *asmParser) run(r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		p.lineNo++
		line := stripComment(sc.Text())
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch line {
		case "data:":
			p.section = "data"
			continue
		case "text:":
			p.section = "text"
			continue
		}
		var err error
		switch p.section {
		case "data":
			err = p.parseDataLine(line)
		case "text":
			err = p.parseTextLine(line)
		default:
			err = fmt.Errorf("line %d: content before a 'data:'/'text:' section header", p.lineNo)
		}
		if err != nil {
			return err
		}
	}
	return sc.Err()
}

func stripComment(s string) string {
	if i := strings.IndexAny(s, ";#"); i >= 0 {
		return s[:i]
	}
	return s
}

func (p *asmParser) parseDataLine(line string) error {
	for _, tok := range strings.Fields(line) {
		n, err := parseInt(tok)
		if err != nil {
			return fmt.Errorf("line %d: bad data word %q: %w", p.lineNo, tok, err)
		}
		p.data = append(p.data, Data{V: n})
	}
	return nil
}

// labelOnlyRE-equivalent check without regexp: a bare identifier followed
// by ':' and nothing else.
func labelOnly(line string) (string, bool) {
	if !strings.HasSuffix(line, ":") {
		return "", false
	}
	name := line[:len(line)-1]
	if name == "" || !isIdentStart(rune(name[0])) {
		return "", false
	}
	for _, r := range name {
		if !isIdentRune(r) {
			return "", false
		}
	}
	// a bare integer followed by ':' is a pc marker, handled by
	// parseTextLine directly, not a label.
	if _, err := strconv.Atoi(name); err == nil {
		return "", false
	}
	return name, true
}

func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isIdentRune(r rune) bool {
	return isIdentStart(r) || (r >= '0' && r <= '9')
}

func (p *asmParser) parseTextLine(line string) error {
	if name, ok := labelOnly(line); ok {
		// Bound to the pc of the next instruction, which we don't know
		// yet; record a placeholder resolved once that instruction is
		// parsed, by remembering we owe this label the next seen pc.
		p.pendingLabelNames = append(p.pendingLabelNames, name)
		return nil
	}

	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return fmt.Errorf("line %d: expected '<pc>: <instruction>', got %q", p.lineNo, line)
	}
	pcText := strings.TrimSpace(line[:idx])
	pc, err := strconv.Atoi(pcText)
	if err != nil {
		return fmt.Errorf("line %d: bad pc %q: %w", p.lineNo, pcText, err)
	}
	rest := strings.TrimSpace(line[idx+1:])
	if rest == "" {
		return fmt.Errorf("line %d: missing instruction after pc %d", p.lineNo, pc)
	}

	for _, name := range p.pendingLabelNames {
		p.labels[name] = pc
	}
	p.pendingLabelNames = nil

	inst, err := p.parseInst(rest, pc)
	if err != nil {
		return fmt.Errorf("line %d: %w", p.lineNo, err)
	}
	p.text = append(p.text, inst)
	return nil
}

func (p *asmParser) parseInst(s string, pc int) (Inst, error) {
	mnemonic, argStr, _ := strings.Cut(s, " ")
	args := splitArgs(argStr)
	mnemonic = strings.ToUpper(mnemonic)

	get := func(i int) (string, error) {
		if i >= len(args) {
			return "", fmt.Errorf("%s: expected at least %d operand(s)", mnemonic, i+1)
		}
		return args[i], nil
	}

	switch mnemonic {
	case "MOV", "ADD", "SUB", "LOAD",
		"EQ", "NE", "LT", "GT", "LE", "GE":
		dst, err := get(0)
		if err != nil {
			return Inst{}, err
		}
		src, err := get(1)
		if err != nil {
			return Inst{}, err
		}
		dv, err := p.parseOperand(dst)
		if err != nil {
			return Inst{}, err
		}
		sv, err := p.parseOperand(src)
		if err != nil {
			return Inst{}, err
		}
		return Inst{Op: opFromMnemonic(mnemonic), Dst: dv, Src: sv, PC: pc}, nil

	case "STORE":
		// STORE dst, src: dst is the value to store, src is the address
		// (§4.4 "this order matches the IR convention").
		dst, err := get(0)
		if err != nil {
			return Inst{}, err
		}
		src, err := get(1)
		if err != nil {
			return Inst{}, err
		}
		dv, err := p.parseOperand(dst)
		if err != nil {
			return Inst{}, err
		}
		sv, err := p.parseOperand(src)
		if err != nil {
			return Inst{}, err
		}
		return Inst{Op: STORE, Dst: dv, Src: sv, PC: pc}, nil

	case "PUTC":
		src, err := get(0)
		if err != nil {
			return Inst{}, err
		}
		sv, err := p.parseOperand(src)
		if err != nil {
			return Inst{}, err
		}
		return Inst{Op: PUTC, Src: sv, PC: pc}, nil

	case "GETC":
		dst, err := get(0)
		if err != nil {
			return Inst{}, err
		}
		dv, err := p.parseOperand(dst)
		if err != nil {
			return Inst{}, err
		}
		return Inst{Op: GETC, Dst: dv, PC: pc}, nil

	case "EXIT":
		return Inst{Op: EXIT, PC: pc}, nil

	case "DUMP":
		return Inst{Op: DUMP, PC: pc}, nil

	case "JMP":
		target, err := get(0)
		if err != nil {
			return Inst{}, err
		}
		jv, err := p.parseJumpTarget(target)
		if err != nil {
			return Inst{}, err
		}
		return Inst{Op: JMP, Jmp: jv, PC: pc}, nil

	case "JEQ", "JNE", "JLT", "JGT", "JLE", "JGE":
		dst, err := get(0)
		if err != nil {
			return Inst{}, err
		}
		src, err := get(1)
		if err != nil {
			return Inst{}, err
		}
		target, err := get(2)
		if err != nil {
			return Inst{}, err
		}
		dv, err := p.parseOperand(dst)
		if err != nil {
			return Inst{}, err
		}
		sv, err := p.parseOperand(src)
		if err != nil {
			return Inst{}, err
		}
		jv, err := p.parseJumpTarget(target)
		if err != nil {
			return Inst{}, err
		}
		return Inst{Op: opFromMnemonic(mnemonic), Dst: dv, Src: sv, Jmp: jv, PC: pc}, nil
	}

	return Inst{}, fmt.Errorf("unknown mnemonic %q", mnemonic)
}

var mnemonicOps = map[string]Op{
	"MOV": MOV, "ADD": ADD, "SUB": SUB, "LOAD": LOAD, "STORE": STORE,
	"PUTC": PUTC, "GETC": GETC, "EXIT": EXIT, "DUMP": DUMP,
	"EQ": EQ, "NE": NE, "LT": LT, "GT": GT, "LE": LE, "GE": GE,
	"JEQ": JEQ, "JNE": JNE, "JLT": JLT, "JGT": JGT, "JLE": JLE, "JGE": JGE,
	"JMP": JMP,
}

func opFromMnemonic(m string) Op { return mnemonicOps[m] }

func splitArgs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

var regByName = map[string]Reg{
	"A": RegA, "B": RegB, "C": RegC, "D": RegD,
	"BP": RegBP, "SP": RegSP, "PC": RegPC,
}

func (p *asmParser) parseOperand(tok string) (Value, error) {
	if r, ok := regByName[strings.ToUpper(tok)]; ok {
		return RegValue(r), nil
	}
	n, err := parseInt(tok)
	if err != nil {
		return Value{}, fmt.Errorf("bad operand %q: %w", tok, err)
	}
	return ImmValue(n), nil
}

// parseJumpTarget accepts an immediate, a register, or a label name
// resolved to the label's bound pc once resolve() runs.
func (p *asmParser) parseJumpTarget(tok string) (Value, error) {
	if r, ok := regByName[strings.ToUpper(tok)]; ok {
		return RegValue(r), nil
	}
	if n, err := parseInt(tok); err == nil {
		return ImmValue(n), nil
	}
	// Label reference: emit a placeholder immediate now and fix it up in
	// resolve() once every label's pc is known.
	v := ImmValue(0)
	idx := len(p.text) // this Inst hasn't been appended yet; caller fixes below
	p.labelRefs = append(p.labelRefs, labelRef{name: tok, instIdx: idx})
	return v, nil
}

type labelRef struct {
	name    string
	instIdx int // index into p.text, set once the owning Inst is appended
}

func (p *asmParser) resolve() error {
	for _, ref := range p.labelRefs {
		pc, ok := p.labels[ref.name]
		if !ok {
			return fmt.Errorf("undefined label %q", ref.name)
		}
		p.text[ref.instIdx].Jmp = ImmValue(pc)
	}
	return nil
}

func parseInt(tok string) (int, error) {
	tok = strings.TrimSpace(tok)
	neg := false
	if strings.HasPrefix(tok, "-") {
		neg = true
		tok = tok[1:]
	}
	base := 10
	if strings.HasPrefix(tok, "0x") || strings.HasPrefix(tok, "0X") {
		base = 16
		tok = tok[2:]
	}
	n, err := strconv.ParseInt(tok, base, 64)
	if err != nil {
		return 0, err
	}
	if neg {
		n = -n
	}
	return int(n), nil
}
