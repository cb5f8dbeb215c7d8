// Package desmos lowers the IR into a JSON document that drives the
// Desmos graphing calculator's ticker mechanism (§4.2-4.4, §9 "Tagged
// variants, not string-built LaTeX").
package desmos

import "strings"

// Expr is one node of the LaTeX expression tree. Every node renders to
// LaTeX in exactly one place (Render), per the Design Notes' explicit
// instruction to avoid sprintf-built LaTeX scattered across the lowerer.
type Expr interface {
	Render() string
}

// Ident is a register, list, or auxiliary variable reference: A, STDIN,
// IP, or a chunk list m_0, m_1, ....
type Ident struct{ Name string }

func (i Ident) Render() string { return identLatex(i.Name) }

// identLatex applies the "_{subscript}" convention (§6) to names that
// carry a numeric suffix after an underscore, e.g. "m_0" -> "m_{0}".
func identLatex(name string) string {
	if idx := strings.IndexByte(name, '_'); idx >= 0 {
		return name[:idx] + "_{" + name[idx+1:] + "}"
	}
	return name
}

// Lit is an integer literal.
type Lit struct{ Value int }

func (l Lit) Render() string { return itoa(l.Value) }

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [24]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// BinOp is a two-operand arithmetic expression: "+", "-" or "*".
type BinOp struct {
	Op   string
	L, R Expr
}

func (b BinOp) Render() string {
	return "\\left(" + b.L.Render() + b.Op + b.R.Render() + "\\right)"
}

// Compare is a comparison: "=", "\\ne", "<", ">", "\\le", "\\ge".
type Compare struct {
	Op   string
	L, R Expr
}

func (c Compare) Render() string { return c.L.Render() + c.Op + c.R.Render() }

// And joins two piecewise conditions; Desmos piecewise branches accept
// comma-separated conditions meaning logical AND, so rendering this
// inline inside a Branch.Cond position produces "cond1,cond2".
type And struct{ L, R Expr }

func (a And) Render() string { return a.L.Render() + "," + a.R.Render() }

// Call is a named function application, rendered with Desmos's
// \operatorname{} wrapper (floor, mod, length, or one of this package's
// own runtime helpers).
type Call struct {
	Name string
	Args []Expr
}

func (c Call) Render() string {
	parts := make([]string, len(c.Args))
	for i, a := range c.Args {
		parts[i] = a.Render()
	}
	return "\\operatorname{" + c.Name + "}\\left(" + strings.Join(parts, ",") + "\\right)"
}

// Frac is a LaTeX fraction.
type Frac struct{ Num, Den Expr }

func (f Frac) Render() string {
	return "\\frac{" + f.Num.Render() + "}{" + f.Den.Render() + "}"
}

// ListLit is a literal list, possibly empty.
type ListLit struct{ Elems []Expr }

func (l ListLit) Render() string {
	parts := make([]string, len(l.Elems))
	for i, e := range l.Elems {
		parts[i] = e.Render()
	}
	return "\\left[" + strings.Join(parts, ",") + "\\right]"
}

// Index is a 1-based list index, Desmos's own list-indexing convention.
type Index struct{ List, At Expr }

func (x Index) Render() string {
	return x.List.Render() + "\\left[" + x.At.Render() + "\\right]"
}

// ListComp is a Desmos list comprehension: [body]_{var=from}^{to}.
type ListComp struct {
	Body     Expr
	Var      string
	From, To Expr
}

func (l ListComp) Render() string {
	return "\\left[" + l.Body.Render() + "\\right]_{" + l.Var + "=" + l.From.Render() +
		"}^{" + l.To.Render() + "}"
}

// Sum is a Desmos sum, used by the Design Notes as the template for any
// fold-style helper that needs one (kept for completeness; this repo's
// helpers are expressed with ListComp/Piecewise instead).
type Sum struct {
	Var      string
	From, To Expr
	Body     Expr
}

func (s Sum) Render() string {
	return "\\sum_{" + s.Var + "=" + s.From.Render() + "}^{" + s.To.Render() + "}" + s.Body.Render()
}

// Branch is one arm of a Piecewise.
type Branch struct{ Cond, Val Expr }

// Piecewise is the only branching construct Desmos expressions have
// (Glossary). Else may be nil, meaning the piecewise is undefined when no
// branch matches (used for check(), whose caller discards a non-match).
type Piecewise struct {
	Branches []Branch
	Else     Expr
}

func (p Piecewise) Render() string {
	parts := make([]string, 0, len(p.Branches)+1)
	for _, br := range p.Branches {
		parts = append(parts, br.Cond.Render()+":"+br.Val.Render())
	}
	if p.Else != nil {
		parts = append(parts, p.Else.Render())
	}
	return "\\left\\{" + strings.Join(parts, ",") + "\\right\\}"
}

// Assign is a single-variable action, the Desmos ticker's only
// side-effecting primitive (Glossary: "Action (Desmos)").
type Assign struct {
	Var string
	Val Expr
}

func (a Assign) Render() string { return identLatex(a.Var) + "\\to " + a.Val.Render() }

// ActionBundle groups several actions into one comma-joined action, fired
// atomically by the ticker in a single frame. Each element is usually an
// Assign, but may be any action-producing Expr (a changepc() Call, or a
// Piecewise whose arms are themselves actions, as JCC lowering needs).
type ActionBundle struct{ Actions []Expr }

func (b ActionBundle) Render() string {
	parts := make([]string, len(b.Actions))
	for i, a := range b.Actions {
		parts[i] = a.Render()
	}
	return "\\left(" + strings.Join(parts, ",") + "\\right)"
}

// VarDef renders a plain top-level definition, e.g. "m_{0}=[...]". Unlike
// Assign (a ticker action, "\to") or FuncDef (a function definition), this
// is the graph-level "name=value" form Desmos uses to seed a variable or
// list's initial value (§3's initial memory image, for the m_k chunks).
type VarDef struct {
	Name string
	Val  Expr
}

func (v VarDef) Render() string { return identLatex(v.Name) + "=" + v.Val.Render() }

// FuncDef renders a named function definition, e.g. "f\left(x\right)=...".
type FuncDef struct {
	Name   string
	Params []string
	Body   Expr
}

func (f FuncDef) Render() string {
	return "\\operatorname{" + f.Name + "}\\left(" + strings.Join(f.Params, ",") + "\\right)=" +
		f.Body.Render()
}
