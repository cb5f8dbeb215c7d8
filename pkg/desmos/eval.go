package desmos

import (
	"fmt"

	"github.com/pogorzelski/elvmgo/pkg/ir"
)

// Env is the Desmos-side execution state eval.go interprets the emitted
// expression tree against: registers, the micro-ip, STDIN/STDOUT lists,
// and flat memory (§3's STDIN/STDOUT/memory model).
//
// This is a test-only oracle (expansion): it evaluates the ADT lower.go
// actually produces, rather than a real Desmos session, so backend tests
// can check D1's lowering without needing Desmos itself. Grounded on the
// teacher's pkg/search/verifier.go "execute and compare" idea.
type Env struct {
	Regs    map[string]int
	PC, IP  int
	Running bool
	Stdin   []int
	Stdout  []int
	Mem     map[int]int
	RegMask int
}

// NewEnv builds the initial state from a Module's memory image (§3).
func NewEnv(m *ir.Module, cfg Config, stdin []int) *Env {
	e := &Env{
		Regs:    map[string]int{"A": 0, "B": 0, "C": 0, "D": 0, "BP": 0, "SP": 0},
		Running: true,
		Stdin:   append([]int(nil), stdin...),
		Mem:     make(map[int]int, len(m.Data)),
		RegMask: cfg.RegMask,
	}
	for i, d := range m.Data {
		e.Mem[i] = d.V
	}
	return e
}

// Value is either a scalar or a list, mirroring Desmos's own dynamic
// value kinds; registers/PC/IP/RUNNING are scalars, STDIN/STDOUT are
// lists.
type Value struct {
	Num    int
	List   []int
	IsList bool
}

func intV(n int) Value    { return Value{Num: n} }
func listV(l []int) Value { return Value{List: l, IsList: true} }

// MaxTicks bounds Run against a lowering bug that never satisfies any
// check(pc,ip) branch.
const MaxTicks = 1_000_000

// Run ticks the emitted program (as reconstructed by LowerProgram) until
// RUNNING goes false or MaxTicks is exceeded, mirroring how the real
// ticker would repeatedly call update() (§4.3).
func Run(cfg Config, m *ir.Module, stdin []int) (*Env, error) {
	branches := LowerProgram(cfg, m)
	env := NewEnv(m, cfg, stdin)

	for ticks := 0; env.Running; ticks++ {
		if ticks >= MaxTicks {
			return env, fmt.Errorf("desmos: exceeded %d ticks without RUNNING=0", MaxTicks)
		}
		matched := false
		for _, br := range branches {
			if env.eval(br.Cond).Num != 0 {
				env.apply(br.Val)
				matched = true
				break
			}
		}
		if !matched {
			return env, fmt.Errorf("desmos: no check(%d,%d) branch matched (property 3 violated)", env.PC, env.IP)
		}
	}
	return env, nil
}

func (e *Env) regMod(n int) int {
	if e.RegMask <= 0 {
		return n
	}
	n %= e.RegMask
	if n < 0 {
		n += e.RegMask
	}
	return n
}

// eval computes the value of a value-producing Expr node.
func (e *Env) eval(expr Expr) Value {
	switch v := expr.(type) {
	case Lit:
		return intV(v.Value)
	case Ident:
		return e.ident(v.Name)
	case BinOp:
		l, r := e.eval(v.L).Num, e.eval(v.R).Num
		switch v.Op {
		case "+":
			return intV(l + r)
		case "-":
			return intV(l - r)
		case "*":
			return intV(l * r)
		}
		return intV(0)
	case Compare:
		l, r := e.eval(v.L).Num, e.eval(v.R).Num
		switch v.Op {
		case "=":
			return intV(boolInt(l == r))
		case "\\ne":
			return intV(boolInt(l != r))
		case "<":
			return intV(boolInt(l < r))
		case ">":
			return intV(boolInt(l > r))
		case "\\le":
			return intV(boolInt(l <= r))
		case "\\ge":
			return intV(boolInt(l >= r))
		}
		return intV(0)
	case And:
		return intV(boolInt(e.eval(v.L).Num != 0 && e.eval(v.R).Num != 0))
	case Frac:
		num, den := e.eval(v.Num).Num, e.eval(v.Den).Num
		if den == 0 {
			return intV(0)
		}
		return intV(num / den)
	case Index:
		list := e.eval(v.List)
		at := e.eval(v.At).Num
		if at < 1 || at > len(list.List) {
			return intV(0)
		}
		return intV(list.List[at-1])
	case Call:
		return e.evalCall(v)
	case Piecewise:
		for _, br := range v.Branches {
			if e.eval(br.Cond).Num != 0 {
				return e.eval(br.Val)
			}
		}
		if v.Else != nil {
			return e.eval(v.Else)
		}
	}
	return intV(0)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (e *Env) ident(name string) Value {
	switch name {
	case "PC":
		return intV(e.PC)
	case "IP":
		return intV(e.IP)
	case "RUNNING":
		return intV(boolInt(e.Running))
	case "STDIN":
		return listV(e.Stdin)
	case "STDOUT":
		return listV(e.Stdout)
	}
	return intV(e.Regs[name])
}

// evalCall gives the fixed runtime catalogue (§4.3) its native semantics,
// rather than re-interpreting runtime.go's own FuncDef bodies: those
// exist for emission fidelity, while this oracle implements the same
// contract directly in Go, which is sufficient to check D1's lowering
// (the only thing this package's tests need verified end to end).
func (e *Env) evalCall(c Call) Value {
	arg := func(i int) Value { return e.eval(c.Args[i]) }

	switch c.Name {
	case "mod":
		return intV(e.regMod(arg(0).Num))
	case "floor":
		return arg(0)
	case "length":
		return intV(len(arg(0).List))
	case "getc":
		if len(e.Stdin) == 0 {
			return intV(0)
		}
		return intV(e.Stdin[0])
	case "append":
		l := arg(0).List
		out := append(append([]int(nil), l...), arg(1).Num)
		return listV(out)
	case "pop":
		l := arg(0).List
		if len(l) < 2 {
			return listV(nil)
		}
		return listV(append([]int(nil), l[1:]...))
	case "load":
		return intV(e.Mem[arg(0).Num])
	case "check":
		p, ip := arg(0).Num, arg(1).Num
		return intV(boolInt(e.PC == p && e.IP == ip))
	}
	return intV(0)
}

// apply executes an action-producing Expr node (Assign, ActionBundle, a
// changepc()/store() Call, or an action-valued Piecewise as JCC emits).
func (e *Env) apply(expr Expr) {
	switch v := expr.(type) {
	case ActionBundle:
		for _, a := range v.Actions {
			e.apply(a)
		}
	case Assign:
		e.applyAssign(v)
	case Call:
		e.applyActionCall(v)
	case Piecewise:
		for _, br := range v.Branches {
			if e.eval(br.Cond).Num != 0 {
				e.apply(br.Val)
				return
			}
		}
		if v.Else != nil {
			e.apply(v.Else)
		}
	}
}

// Assign performs a single var<-val action against the environment; it
// is the same machinery Run uses internally, exposed directly so tests
// can exercise one helper call (e.g. append/pop) without building a full
// program around it.
func (e *Env) Assign(name string, val Expr) {
	e.applyAssign(Assign{Var: name, Val: val})
}

func (e *Env) applyAssign(a Assign) {
	if a.Var == "MEM" {
		call, ok := a.Val.(Call)
		if !ok || call.Name != "store" {
			return
		}
		addr := e.eval(call.Args[0]).Num
		val := e.eval(call.Args[1]).Num
		e.Mem[addr] = e.regMod(val)
		return
	}

	val := e.eval(a.Val)
	switch a.Var {
	case "RUNNING":
		e.Running = val.Num != 0
	case "PC":
		e.PC = val.Num
	case "IP":
		e.IP = val.Num
	case "STDOUT":
		e.Stdout = val.List
	case "STDIN":
		e.Stdin = val.List
	default:
		e.Regs[a.Var] = e.regMod(val.Num)
	}
}

func (e *Env) applyActionCall(c Call) {
	if c.Name != "changepc" {
		return
	}
	target := e.eval(c.Args[0]).Num
	if e.PC == target {
		e.IP++
		return
	}
	e.PC = target
	e.IP = 0
}
