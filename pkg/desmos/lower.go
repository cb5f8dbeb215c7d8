package desmos

import "github.com/pogorzelski/elvmgo/pkg/ir"

// writeSet returns the set of variable names an instruction assigns,
// used by the micro-step splitter (§4.4) to decide whether the
// instruction must open a new (pc,ip) branch.
func writeSet(inst *ir.Inst) []string {
	switch inst.Op {
	case ir.MOV, ir.ADD, ir.SUB, ir.LOAD,
		ir.EQ, ir.NE, ir.LT, ir.GT, ir.LE, ir.GE:
		if inst.Dst.Kind == ir.REG {
			return []string{inst.Dst.Reg.String()}
		}
		return nil
	case ir.GETC:
		if inst.Dst.Kind == ir.REG {
			return []string{inst.Dst.Reg.String(), "STDIN"}
		}
		return []string{"STDIN"}
	case ir.STORE:
		return []string{"MEM"} // all chunk lists, conservatively one name
	case ir.PUTC:
		return []string{"STDOUT"}
	case ir.EXIT:
		return []string{"RUNNING"}
	case ir.JMP, ir.JEQ, ir.JNE, ir.JLT, ir.JGT, ir.JLE, ir.JGE:
		return []string{"PC", "IP"}
	}
	return nil
}

// microStep is one (pc,ip) branch's worth of instructions, grouped by
// plan (§9 Design Notes: "pure function plan(instr_seq) -> [[instr]]").
type microStep struct {
	insts []*ir.Inst
}

// plan groups a pc's instructions into maximal touch-disjoint runs: an
// instruction starts a new microStep exactly when it would re-touch a
// variable already written earlier in the current run (§4.4).
func plan(insts []*ir.Inst) []microStep {
	var steps []microStep
	var cur microStep
	touched := map[string]bool{}

	flush := func() {
		if len(cur.insts) > 0 {
			steps = append(steps, cur)
			cur = microStep{}
			touched = map[string]bool{}
		}
	}

	for _, inst := range insts {
		for _, w := range writeSet(inst) {
			if touched[w] {
				flush()
				break
			}
		}
		cur.insts = append(cur.insts, inst)
		for _, w := range writeSet(inst) {
			touched[w] = true
		}
	}
	flush()
	return steps
}

// LowerProgram runs the whole module through D1 and returns every
// (pc,ip) branch across every chunk, flattened. Compile (backend.go)
// instead keeps chunks separate to build the real f_c/callf structure;
// this flattened form is what eval.go ticks through, since check(p,i) is
// globally unique and callf's chunk dispatch is an emission-only detail.
func LowerProgram(cfg Config, m *ir.Module) []Branch {
	var all []Branch
	var pcGroups [][]ir.Inst
	var cur []ir.Inst

	flushPC := func() {
		if len(cur) > 0 {
			pcGroups = append(pcGroups, cur)
			cur = nil
		}
	}

	ir.Walk(m, cfg.ChunkSize, ir.Callbacks{
		Prologue: func(int) {
			pcGroups = nil
			cur = nil
		},
		PCChange: func(int) {
			flushPC()
		},
		Inst: func(inst *ir.Inst) {
			cur = append(cur, *inst)
		},
		Epilogue: func() {
			flushPC()
			all = append(all, lowerChunkFunc(cfg, pcGroups).Branches...)
		},
	})
	return all
}

// lowerChunkFunc renders one chunk's body: a single Piecewise with one
// branch per (pc,ip) micro-step, source-ordered as §4.4's tie-break rule
// requires even though check(p,i) makes order semantically irrelevant.
func lowerChunkFunc(cfg Config, pcGroups [][]ir.Inst) Piecewise {
	var branches []Branch
	for _, group := range pcGroups {
		if len(group) == 0 {
			continue
		}
		pc := group[0].PC
		ptrs := make([]*ir.Inst, len(group))
		for i := range group {
			ptrs[i] = &group[i]
		}
		steps := plan(ptrs)
		for ip, step := range steps {
			branches = append(branches, lowerMicroStep(cfg, pc, ip, step))
		}
	}
	return Piecewise{Branches: branches}
}

// lowerMicroStep builds the check(pc,ip)=1 branch for one micro-step,
// applying each instruction's canonical Desmos form (§4.4).
func lowerMicroStep(cfg Config, pc, ip int, step microStep) Branch {
	cond := Compare{"=", Call{"check", []Expr{Lit{pc}, Lit{ip}}}, Lit{1}}

	var actions []Expr
	suppressIncIP := false

	for _, inst := range step.insts {
		acts, suppress := lowerInst(cfg, inst)
		actions = append(actions, acts...)
		if suppress {
			suppressIncIP = true
		}
	}
	if !suppressIncIP {
		actions = append(actions, Assign{"IP", BinOp{"+", Ident{"IP"}, Lit{1}}})
	}
	return Branch{Cond: cond, Val: ActionBundle{actions}}
}

func regOperand(v ir.Value) Expr {
	if v.Kind == ir.REG {
		return Ident{v.Reg.String()}
	}
	return Lit{v.Imm}
}

// lowerInst renders one instruction's canonical Desmos form (§4.4's
// per-opcode table) as zero or more actions. The bool return reports
// whether this instruction already performs a pc/ip-changing action,
// suppressing the automatic trailing IP<-IP+1 (JMP/JCC, per S4).
func lowerInst(cfg Config, inst *ir.Inst) ([]Expr, bool) {
	dst := regOperand(inst.Dst)
	src := regOperand(inst.Src)

	switch inst.Op {
	case ir.MOV:
		return []Expr{Assign{inst.Dst.Reg.String(), src}}, false

	case ir.ADD:
		return []Expr{Assign{inst.Dst.Reg.String(), Call{"mod", []Expr{BinOp{"+", dst, src}}}}}, false

	case ir.SUB:
		return []Expr{Assign{inst.Dst.Reg.String(), Call{"mod", []Expr{BinOp{"-", dst, src}}}}}, false

	case ir.LOAD:
		return []Expr{Assign{inst.Dst.Reg.String(), Call{"load", []Expr{src}}}}, false

	case ir.STORE:
		// STORE dst,src: dst is the value, src is the address (§4.4).
		return []Expr{Assign{"MEM", Call{"store", []Expr{src, dst}}}}, false

	case ir.PUTC:
		return []Expr{Assign{"STDOUT", Call{"append", []Expr{Ident{"STDOUT"}, src}}}}, false

	case ir.GETC:
		return []Expr{
			Assign{inst.Dst.Reg.String(), Call{"getc", nil}},
			Assign{"STDIN", Call{"pop", []Expr{Ident{"STDIN"}}}},
		}, false

	case ir.EXIT:
		return []Expr{Assign{"RUNNING", Lit{0}}}, false

	case ir.DUMP:
		return nil, false // silently skipped, §4.4/§7

	case ir.EQ, ir.NE, ir.LT, ir.GT, ir.LE, ir.GE:
		return []Expr{Assign{inst.Dst.Reg.String(), comparePiecewise(inst.Op, dst, src)}}, false

	case ir.JMP:
		jmp := regOperand(inst.Jmp)
		return []Expr{Call{"changepc", []Expr{jmp}}}, true

	case ir.JEQ, ir.JNE, ir.JLT, ir.JGT, ir.JLE, ir.JGE:
		jmp := regOperand(inst.Jmp)
		cmp := comparePiecewise(ir.CondBase(inst.Op), dst, src)
		// "match => changepc(jmp), otherwise => IP<-IP+1" (§4.4):
		// embed both arms as one action-valued piecewise so the outer
		// micro-step needs no separate trailing increment.
		action := Piecewise{
			Branches: []Branch{{
				Cond: Compare{"=", cmp, Lit{1}},
				Val:  Call{"changepc", []Expr{jmp}},
			}},
			Else: Assign{"IP", BinOp{"+", Ident{"IP"}, Lit{1}}},
		}
		return []Expr{action}, true
	}
	return nil, false
}

// comparePiecewise renders dst<cmp>src as the 1/0-valued piecewise §4.4
// describes. NE swaps EQ's arms rather than repeating the comparison.
func comparePiecewise(op ir.Op, dst, src Expr) Expr {
	opLatex := map[ir.Op]string{
		ir.EQ: "=", ir.LT: "<", ir.GT: ">", ir.LE: "\\le", ir.GE: "\\ge",
	}
	if op == ir.NE {
		return Piecewise{
			Branches: []Branch{{Cond: Compare{"=", dst, src}, Val: Lit{0}}},
			Else:     Lit{1},
		}
	}
	return Piecewise{
		Branches: []Branch{{Cond: Compare{opLatex[op], dst, src}, Val: Lit{1}}},
		Else:     Lit{0},
	}
}
