package ir

import "fmt"

// State is the register/memory/stdio model of §3: seven registers, flat
// addressable memory, and byte-queue stdin/stdout. It is mutated in place
// by Step, mirroring the teacher's cpu.State/Exec shape.
type State struct {
	Regs    [NumRegs]int
	Mem     map[int]int
	Stdin   []byte
	Stdout  []byte
	Running bool

	// RegMask bounds every register write (ADD/SUB/MOV of an
	// out-of-range immediate, GETC) to the backend's register width —
	// both backends' DefaultConfig use 16-bit (0x10000); a RegMask of 0
	// or less disables masking.
	RegMask int
}

// NewState builds a State from a Module's initial memory image, index 0
// first (§3), with PC starting at 0 and RUNNING true.
func NewState(m *Module, regMask int, stdin []byte) *State {
	s := &State{
		Mem:     make(map[int]int, len(m.Data)),
		Stdin:   append([]byte(nil), stdin...),
		Running: true,
		RegMask: regMask,
	}
	for i, d := range m.Data {
		s.Mem[i] = d.V
	}
	return s
}

func (s *State) mask(v int) int {
	if s.RegMask <= 0 {
		return v
	}
	v %= s.RegMask
	if v < 0 {
		v += s.RegMask
	}
	return v
}

// Interp executes a Module against the reference semantics of §3/§4.4's
// canonical per-opcode meanings — not a backend's lowering, but the
// ground truth both lowerings must reproduce. Grounded on the teacher's
// pkg/cpu.Exec switch-dispatch shape and pkg/search/verifier.go's
// run-and-compare idea, repurposed here as an oracle for backend tests
// rather than an instruction-equivalence search.
type Interp struct {
	byPC map[int][]Inst
	maxPC int
}

// NewInterp indexes a Module's instructions by pc for fast dispatch.
func NewInterp(m *Module) *Interp {
	it := &Interp{byPC: map[int][]Inst{}, maxPC: m.MaxPC()}
	for _, inst := range m.Text {
		it.byPC[inst.PC] = append(it.byPC[inst.PC], inst)
	}
	return it
}

// MaxSteps bounds Run against a non-terminating program; it is generous
// enough for any program these tests construct while still catching a
// lowering bug that loops forever.
const MaxSteps = 1_000_000

// Run executes from pc 0 until EXIT or the instruction stream runs past
// the last populated pc, returning the final state. An error indicates a
// structural problem with the Module itself (§4.8's "compile-time
// failures" class, reinterpreted here as runtime detection since this
// interpreter has no separate compile phase).
func (it *Interp) Run(s *State) error {
	for steps := 0; s.Running; steps++ {
		if steps >= MaxSteps {
			return fmt.Errorf("ir: exceeded %d steps without EXIT", MaxSteps)
		}
		pc := s.Regs[RegPC]
		insts, ok := it.byPC[pc]
		if !ok {
			if pc > it.maxPC {
				return nil
			}
			s.Regs[RegPC] = s.mask(pc + 1)
			continue
		}

		jumped := false
		for i := range insts {
			if err := it.step(s, &insts[i], &jumped); err != nil {
				return err
			}
			if !s.Running {
				return nil
			}
		}
		if !jumped {
			s.Regs[RegPC] = s.mask(pc + 1)
		}
	}
	return nil
}

func (it *Interp) value(s *State, v Value) (int, error) {
	switch v.Kind {
	case REG:
		return s.Regs[v.Reg], nil
	case IMM:
		return v.Imm, nil
	}
	return 0, fmt.Errorf("ir: value with neither REG nor IMM kind")
}

func (it *Interp) setDst(s *State, dst Value, val int) error {
	if dst.Kind != REG {
		return fmt.Errorf("ir: destination operand is not a register")
	}
	s.Regs[dst.Reg] = s.mask(val)
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func compare(op Op, a, b int) bool {
	switch op {
	case EQ:
		return a == b
	case NE:
		return a != b
	case LT:
		return a < b
	case GT:
		return a > b
	case LE:
		return a <= b
	case GE:
		return a >= b
	}
	return false
}

func (it *Interp) step(s *State, inst *Inst, jumped *bool) error {
	switch inst.Op {
	case MOV:
		v, err := it.value(s, inst.Src)
		if err != nil {
			return err
		}
		return it.setDst(s, inst.Dst, v)

	case ADD:
		d, err := it.value(s, inst.Dst)
		if err != nil {
			return err
		}
		v, err := it.value(s, inst.Src)
		if err != nil {
			return err
		}
		return it.setDst(s, inst.Dst, d+v)

	case SUB:
		d, err := it.value(s, inst.Dst)
		if err != nil {
			return err
		}
		v, err := it.value(s, inst.Src)
		if err != nil {
			return err
		}
		return it.setDst(s, inst.Dst, d-v)

	case LOAD:
		addr, err := it.value(s, inst.Src)
		if err != nil {
			return err
		}
		return it.setDst(s, inst.Dst, s.Mem[addr])

	case STORE:
		// STORE dst, src: dst is the value, src is the address (§4.4).
		val, err := it.value(s, inst.Dst)
		if err != nil {
			return err
		}
		addr, err := it.value(s, inst.Src)
		if err != nil {
			return err
		}
		s.Mem[addr] = s.mask(val)

	case PUTC:
		v, err := it.value(s, inst.Src)
		if err != nil {
			return err
		}
		s.Stdout = append(s.Stdout, byte(v))

	case GETC:
		var b int
		if len(s.Stdin) > 0 {
			b = int(s.Stdin[0])
			s.Stdin = s.Stdin[1:]
		}
		return it.setDst(s, inst.Dst, b)

	case EXIT:
		s.Running = false

	case DUMP:
		// silently skipped, per §7's error handling policy.

	case EQ, NE, LT, GT, LE, GE:
		d, err := it.value(s, inst.Dst)
		if err != nil {
			return err
		}
		v, err := it.value(s, inst.Src)
		if err != nil {
			return err
		}
		return it.setDst(s, inst.Dst, boolInt(compare(inst.Op, d, v)))

	case JMP:
		target, err := it.value(s, inst.Jmp)
		if err != nil {
			return err
		}
		s.Regs[RegPC] = s.mask(target)
		*jumped = true

	case JEQ, JNE, JLT, JGT, JLE, JGE:
		d, err := it.value(s, inst.Dst)
		if err != nil {
			return err
		}
		v, err := it.value(s, inst.Src)
		if err != nil {
			return err
		}
		if compare(CondBase(inst.Op), d, v) {
			target, err := it.value(s, inst.Jmp)
			if err != nil {
				return err
			}
			s.Regs[RegPC] = s.mask(target)
			*jumped = true
		}

	default:
		return fmt.Errorf("ir: unimplemented opcode %s", inst.Op)
	}
	return nil
}
