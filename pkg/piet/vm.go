package piet

import (
	"fmt"

	"github.com/pogorzelski/elvmgo/pkg/ir"
)

// State is the stack-machine side this package's tests check lowered
// programs against, rather than decoding a rendered PPM and driving a
// real Piet interpreter over it (expansion; mirrors pkg/desmos/eval.go's
// "native Go oracle for the emitted ADT" approach). It implements the
// handful of Piet primitives LowerProgram's output actually uses:
// push/pop/arithmetic/compare/dup/roll and byte IO.
type State struct {
	Stack  []int
	Stdin  []int
	Stdout []int
	PC     int
	Exited bool
}

func (s *State) push(v int) { s.Stack = append(s.Stack, v) }

func (s *State) pop() int {
	n := len(s.Stack)
	if n == 0 {
		return 0
	}
	v := s.Stack[n-1]
	s.Stack = s.Stack[:n-1]
	return v
}

func (s *State) top() int {
	if len(s.Stack) == 0 {
		return 0
	}
	return s.Stack[len(s.Stack)-1]
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// floorMod matches real Piet's mod (and the wraparound §4.6 masks
// register results with): the result takes the sign of the divisor.
func floorMod(a, b int) int {
	if b == 0 {
		return 0
	}
	m := a % b
	if m != 0 && (m < 0) != (b < 0) {
		m += b
	}
	return m
}

func floorDiv(a, b int) int {
	if b == 0 {
		return 0
	}
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// rotateWindow rolls the depth-item window (ordered bottom-to-top, index
// 0 = deepest) by count steps: positive count cycles the top item to the
// bottom of the window, negative count cycles the bottom item to the
// top, matching real Piet's roll.
func rotateWindow(win []int, count int) {
	n := len(win)
	if n == 0 {
		return
	}
	count %= n
	if count < 0 {
		count += n
	}
	out := make([]int, n)
	for i, v := range win {
		out[(i+count)%n] = v
	}
	copy(win, out)
}

// step executes one symbolic instruction. Piet tolerates operations that
// don't have enough operands by treating them as no-ops (the roll case
// below is the one this package's bootstrap actually relies on: a slot
// that has never been pushed yet rolls as a no-op instead of panicking).
func (s *State) step(inst Inst) {
	switch inst.Op {
	case PUSH:
		s.push(inst.Arg)
	case POP:
		s.pop()
	case ADD:
		b, a := s.pop(), s.pop()
		s.push(a + b)
	case SUB:
		b, a := s.pop(), s.pop()
		s.push(a - b)
	case MUL:
		b, a := s.pop(), s.pop()
		s.push(a * b)
	case DIV:
		b, a := s.pop(), s.pop()
		s.push(floorDiv(a, b))
	case MOD:
		b, a := s.pop(), s.pop()
		s.push(floorMod(a, b))
	case NOT:
		s.push(boolInt(s.pop() == 0))
	case GT:
		b, a := s.pop(), s.pop()
		s.push(boolInt(a > b))
	case DUP:
		s.push(s.top())
	case ROLL:
		count := s.pop()
		depth := s.pop()
		if depth <= 0 || depth > len(s.Stack) {
			return
		}
		rotateWindow(s.Stack[len(s.Stack)-depth:], count)
	case IN:
		if len(s.Stdin) == 0 {
			s.push(256)
			return
		}
		s.push(s.Stdin[0])
		s.Stdin = s.Stdin[1:]
	case OUT:
		s.Stdout = append(s.Stdout, s.pop())
	case PTR, SWITCH, INN, OUTN:
		// unused by this package's lowering; the geometric control-flow
		// and numeric IO primitives it would drive are never emitted.
	}
}

// MaxSteps bounds Run against a lowering bug that never reaches EXIT.
const MaxSteps = 1_000_000

// Run executes the lowered program from pc 0 until EXIT, mirroring the
// dispatcher each rendered row implements: run one block's instructions,
// then treat the value left on top of stack as the next pc, unless the
// block itself ended in EXIT.
func Run(cfg Config, m *ir.Module, stdin []int) (*State, error) {
	if cfg.MemSize <= 0 {
		cfg.MemSize = DefaultConfig().MemSize
	}
	if err := ValidateMemBounds(cfg, m); err != nil {
		return nil, err
	}
	if err := ValidateJumpTargets(m); err != nil {
		return nil, err
	}

	blocks := LowerProgram(cfg, m)
	byPC := make(map[int]Block, len(blocks))
	for _, b := range blocks {
		byPC[b.PC] = b
	}

	s := &State{Stdin: append([]int(nil), stdin...)}

	for steps := 0; !s.Exited; steps++ {
		if steps >= MaxSteps {
			return s, fmt.Errorf("piet: exceeded %d steps without reaching exit", MaxSteps)
		}
		blk, ok := byPC[s.PC]
		if !ok {
			return s, fmt.Errorf("piet: no block for pc %d", s.PC)
		}

		exited := false
		for _, inst := range blk.Prog.Insts {
			if inst.Op == EXIT {
				exited = true
				break
			}
			if inst.Op == JMP {
				break
			}
			s.step(inst)
		}
		if exited {
			s.Exited = true
			break
		}
		s.PC = s.pop()
	}
	return s, nil
}

// Reg reads register r's current value out of a state that has run to
// completion (or paused), by locating its static stack slot directly —
// valid only once the slot has actually been written at least once.
func (s *State) Reg(r ir.Reg) int {
	slot := regSlot(r)
	if slot > len(s.Stack) {
		return 0
	}
	return s.Stack[len(s.Stack)-slot]
}
