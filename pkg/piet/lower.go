package piet

import (
	"fmt"

	"github.com/pogorzelski/elvmgo/pkg/ir"
	"github.com/pogorzelski/elvmgo/pkg/opfmt"
)

// Block is one pc-block: the POP-prefixed instruction sequence §4.6
// describes, one per distinct pc value encountered in source order.
type Block struct {
	PC   int
	Prog Prog
}

// blockLowerer emits one block's opcodes while tracking extra, the
// number of transient stack items currently sitting above the static
// register/memory file. Every roll this package issues needs the target
// slot's true current depth-from-top, which is its static position plus
// whatever is transiently pending — exactly what extra records — so
// slot access stays correct no matter how deep into an instruction's
// intermediate arithmetic a load/store happens to fall, instead of
// hand-picking a depth constant per call site.
type blockLowerer struct {
	prog  *Prog
	cfg   Config
	extra int
}

func (bl *blockLowerer) push(v int)  { bl.prog.emitPush(v); bl.extra++ }
func (bl *blockLowerer) dup()        { bl.prog.emit(DUP); bl.extra++ }
func (bl *blockLowerer) pop()        { bl.prog.emit(POP); bl.extra-- }
func (bl *blockLowerer) un(op Op)    { bl.prog.emit(op) }
func (bl *blockLowerer) binary(op Op) {
	bl.prog.emit(op)
	bl.extra--
}

// pushRollCount pushes count as ROLL's second operand; PUSH only encodes
// non-negative magnitudes, so a negative count (the original's rroll
// direction) is synthesized as 0 minus the magnitude.
func (bl *blockLowerer) pushRollCount(count int) {
	switch {
	case count == 0:
		bl.push(0)
	case count > 0:
		bl.push(count)
	default:
		bl.push(0)
		bl.push(-count)
		bl.binary(SUB)
	}
}

// rollStatic rolls the stack so static slot becomes reachable at the
// top. A slot's true depth-from-top is always slot+bl.extra+1 — verified
// against piet.c's piet_load/piet_store_top, whose hardcoded pos+1/pos+2
// roll constants are exactly this formula's extra=0/extra=1 special
// cases (see DESIGN.md) — so the whole correction is a single Go-time
// integer, pushed as one immediate; no runtime arithmetic is needed
// since slot and bl.extra are both known while lowering.
func (bl *blockLowerer) rollStatic(slot, count int) {
	bl.push(slot + bl.extra + 1)
	bl.pushRollCount(count)
	bl.prog.emit(ROLL)
	bl.extra -= 2
}

// rollDynamic is rollStatic's counterpart for a runtime-computed slot
// number already sitting on top of the stack (pushed by the caller, e.g.
// pushMemRaw): since the target depth isn't known until execution, the
// slot+bl.extra+1 correction (now just bl.extra, since the runtime slot
// value's own presence on the stack already accounts for the static
// formula's "+1") is computed with a runtime ADD instead.
func (bl *blockLowerer) rollDynamic(count int) {
	bl.push(bl.extra)
	bl.binary(ADD)
	bl.pushRollCount(count)
	bl.prog.emit(ROLL)
	bl.extra -= 2
}

// load brings the value at static slot to the top, leaving a duplicate
// behind in its original position (§4.5).
func (bl *blockLowerer) load(slot int) {
	bl.rollStatic(slot, -1)
	bl.dup()
	bl.rollStatic(slot, 1)
}

// storeTop consumes the top-of-stack value into static slot, discarding
// whatever was there (§4.5).
func (bl *blockLowerer) storeTop(slot int) {
	bl.rollStatic(slot, -1)
	bl.pop()
	bl.rollStatic(slot, 1)
}

func (bl *blockLowerer) maskImm(n int) int {
	if bl.cfg.RegMask <= 0 {
		return n
	}
	n %= bl.cfg.RegMask
	if n < 0 {
		n += bl.cfg.RegMask
	}
	return n
}

func (bl *blockLowerer) pushValue(v ir.Value) {
	if v.Kind == ir.REG {
		bl.load(regSlot(v.Reg))
		return
	}
	bl.push(bl.maskImm(v.Imm))
}

// pushMemRaw computes addr+memBase for a dynamic memory access, leaving
// the uncorrected slot number (ready for rollDynamic) on top.
func (bl *blockLowerer) pushMemRaw(addr ir.Value) {
	bl.pushValue(addr)
	bl.push(memSlot(0))
	bl.binary(ADD)
}

// loadMem reads memory word addr, leaving its value on top — the dynamic
// counterpart of load(), recomputing the address a second time (§4.6)
// rather than trying to keep the first computation's result alive across
// the intervening roll.
func (bl *blockLowerer) loadMem(addr ir.Value) {
	bl.pushMemRaw(addr)
	bl.rollDynamic(-1)
	bl.dup()
	bl.pushMemRaw(addr)
	bl.rollDynamic(1)
}

// storeMem writes the top-of-stack value into memory word addr (§4.6);
// the value must already be pushed by the caller.
func (bl *blockLowerer) storeMem(addr ir.Value) {
	bl.pushMemRaw(addr)
	bl.rollDynamic(-1)
	bl.pop()
	bl.pushMemRaw(addr)
	bl.rollDynamic(1)
}

func (bl *blockLowerer) pushSigned(n int) {
	if n >= 0 {
		bl.push(n)
		return
	}
	bl.push(0)
	bl.push(-n)
	bl.binary(SUB)
}

// cmpValue lowers one comparison, leaving exactly 0 or 1 on top (§4.6):
// reduced via opfmt.NormalizeCond to SUB;NOT (EQ), SUB;NOT;NOT (NE, fully
// boolified even for the jump-condition use — see DESIGN.md, since the
// arithmetic-select JCC lowering below needs an exact 0/1, not merely a
// truthy value), or GT (+ a trailing NOT for LE/GE).
func (bl *blockLowerer) cmpValue(op ir.Op, dst, src ir.Value) {
	norm := opfmt.NormalizeCond(op)
	a, b := dst, src
	if norm.Swapped {
		a, b = src, dst
	}
	bl.pushValue(a)
	bl.pushValue(b)
	switch norm.Base {
	case ir.EQ:
		bl.binary(SUB)
		bl.un(NOT)
	case ir.NE:
		bl.binary(SUB)
		bl.un(NOT)
		bl.un(NOT)
	case ir.GT:
		bl.binary(GT)
	}
	if norm.Negate {
		bl.un(NOT)
	}
}

// lowerInst appends one instruction's opcodes to bl. It reports whether
// the instruction already terminates the block (JMP and JCC push their
// own final next-pc value), suppressing the automatic trailing
// successor-pc push lowerBlock otherwise appends.
func lowerInst(bl *blockLowerer, inst *ir.Inst) (terminates bool) {
	switch inst.Op {
	case ir.MOV:
		bl.pushValue(inst.Src)
		bl.storeTop(regSlot(inst.Dst.Reg))

	case ir.ADD:
		bl.pushValue(inst.Dst)
		bl.pushValue(inst.Src)
		bl.binary(ADD)
		bl.push(bl.cfg.RegMask)
		bl.binary(MOD)
		bl.storeTop(regSlot(inst.Dst.Reg))

	case ir.SUB:
		bl.pushValue(inst.Dst)
		bl.pushValue(inst.Src)
		bl.binary(SUB)
		bl.push(bl.cfg.RegMask)
		bl.binary(MOD)
		bl.storeTop(regSlot(inst.Dst.Reg))

	case ir.LOAD:
		bl.loadMem(inst.Src)
		bl.storeTop(regSlot(inst.Dst.Reg))

	case ir.STORE:
		// STORE dst,src: dst is the value, src is the address (§4.4/§4.6).
		bl.pushValue(inst.Dst)
		bl.push(bl.cfg.RegMask)
		bl.binary(MOD)
		bl.storeMem(inst.Src)

	case ir.PUTC:
		bl.pushValue(inst.Src)
		bl.binary(OUT)

	case ir.GETC:
		// x*NOT(NOT(x-256)): the EOF sentinel (256) collapses to 0,
		// any real byte passes through unchanged — no branch needed.
		bl.un(IN)
		bl.extra++
		bl.dup()
		bl.push(256)
		bl.binary(SUB)
		bl.un(NOT)
		bl.un(NOT)
		bl.binary(MUL)
		bl.storeTop(regSlot(inst.Dst.Reg))

	case ir.EXIT:
		bl.prog.emit(EXIT)

	case ir.DUMP:
		// silently skipped (§4.4/§7).

	case ir.EQ, ir.NE, ir.LT, ir.GT, ir.LE, ir.GE:
		bl.cmpValue(inst.Op, inst.Dst, inst.Src)
		bl.storeTop(regSlot(inst.Dst.Reg))

	case ir.JMP:
		bl.push(inst.Jmp.Imm)
		bl.prog.emit(JMP)
		return true

	case ir.JEQ, ir.JNE, ir.JLT, ir.JGT, ir.JLE, ir.JGE:
		bl.cmpValue(inst.Op, inst.Dst, inst.Src)
		delta := inst.Jmp.Imm - (inst.PC + 1)
		bl.pushSigned(delta)
		bl.binary(MUL)
		bl.push(inst.PC + 1)
		bl.binary(ADD)
		bl.prog.emit(JMP)
		return true
	}
	return false
}

// lowerBlock renders one pc's full instruction list, including the
// leading dispatch POP and (unless the block ends with JMP/JCC's
// own computed next-pc) the successor-pc push (§4.6).
func lowerBlock(cfg Config, pc int, insts []ir.Inst) Block {
	blk := Block{PC: pc}
	bl := &blockLowerer{prog: &blk.Prog, cfg: cfg}
	bl.prog.emit(POP)

	terminated := false
	for i := range insts {
		terminated = lowerInst(bl, &insts[i])
	}
	if !terminated {
		bl.push(pc + 1)
	}
	return blk
}

// ValidateMemBounds checks every statically-addressed LOAD/STORE (an
// immediate, not a register, operand) against cfg.MemSize, the number of
// memory words this configuration reserves below the register file.
// Register-addressed accesses are left unchecked — their target isn't
// known until execution, the same way a real out-of-bounds index would
// only surface once the program actually runs.
func ValidateMemBounds(cfg Config, m *ir.Module) error {
	check := func(pc int, addr ir.Value) error {
		if addr.Kind != ir.IMM {
			return nil
		}
		if addr.Imm < 0 || addr.Imm >= cfg.MemSize {
			return fmt.Errorf("piet: pc %d: memory address %d out of bounds [0,%d)", pc, addr.Imm, cfg.MemSize)
		}
		return nil
	}
	for i := range m.Text {
		inst := &m.Text[i]
		switch inst.Op {
		case ir.LOAD, ir.STORE:
			if err := check(inst.PC, inst.Src); err != nil {
				return err
			}
		}
	}
	return nil
}

// ValidateJumpTargets rejects any register-addressed jump target: Piet's
// dispatcher only ever computes a next pc from a Go-time constant
// (JMP.Imm, or JCC's Imm-(pc+1) delta), so a target read from a register
// would silently lower to push 0 instead of jumping anywhere meaningful
// (§4.8/§7.1, "jump target in a register (statically unsupported)").
func ValidateJumpTargets(m *ir.Module) error {
	for i := range m.Text {
		inst := &m.Text[i]
		switch inst.Op {
		case ir.JMP, ir.JEQ, ir.JNE, ir.JLT, ir.JGT, ir.JLE, ir.JGE:
			if inst.Jmp.Kind != ir.IMM {
				return fmt.Errorf("piet: pc %d: jump target in a register is not supported", inst.PC)
			}
		}
	}
	return nil
}

// LowerProgram groups m's instructions by pc (source order, §4.1) and
// lowers each into one Block.
func LowerProgram(cfg Config, m *ir.Module) []Block {
	var blocks []Block
	var cur []ir.Inst
	curPC := -1

	flush := func() {
		if len(cur) > 0 {
			blocks = append(blocks, lowerBlock(cfg, curPC, cur))
			cur = nil
		}
	}

	for i := range m.Text {
		inst := m.Text[i]
		if inst.PC != curPC {
			flush()
			curPC = inst.PC
		}
		cur = append(cur, inst)
	}
	flush()

	if len(blocks) == 0 {
		blocks = append(blocks, lowerBlock(cfg, 0, nil))
	}
	return blocks
}
