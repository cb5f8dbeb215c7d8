package desmos_test

import (
	"sort"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pogorzelski/elvmgo/pkg/desmos"
	"github.com/pogorzelski/elvmgo/pkg/ir"
)

// branchPCIP extracts the (pc,ip) pair a check(pc,ip)=1 condition encodes.
func branchPCIP(cond desmos.Expr) (pc, ip int, ok bool) {
	cmp, isCmp := cond.(desmos.Compare)
	if !isCmp {
		return 0, 0, false
	}
	call, isCall := cmp.L.(desmos.Call)
	if !isCall || call.Name != "check" || len(call.Args) != 2 {
		return 0, 0, false
	}
	pcLit, ok1 := call.Args[0].(desmos.Lit)
	ipLit, ok2 := call.Args[1].(desmos.Lit)
	if !ok1 || !ok2 {
		return 0, 0, false
	}
	return pcLit.Value, ipLit.Value, true
}

// topLevelAssignVars collects the Var name of every directly-visible
// Assign in an action tree — the set the micro-step splitter promises is
// duplicate-free per branch (property 4). JCC's nested action-valued
// Piecewise represents mutually exclusive alternatives, not simultaneous
// assignments, so only one arm's variable would ever actually fire; we
// still walk into it to make sure no single arm doubles up.
func topLevelAssignVars(e desmos.Expr) []string {
	switch v := e.(type) {
	case desmos.ActionBundle:
		var out []string
		for _, a := range v.Actions {
			out = append(out, topLevelAssignVars(a)...)
		}
		return out
	case desmos.Assign:
		return []string{v.Var}
	case desmos.Piecewise:
		// each arm is an alternative, not a simultaneous assignment;
		// report the union for the purposes of this check since the
		// splitter must not duplicate within any single reachable arm.
		var out []string
		for _, br := range v.Branches {
			out = append(out, topLevelAssignVars(br.Val)...)
		}
		if v.Else != nil {
			out = append(out, topLevelAssignVars(v.Else)...)
		}
		return out
	}
	return nil
}

var _ = Describe("Desmos instruction lowering", func() {
	cfg := desmos.DefaultConfig()

	mustAssemble := func(src string) *ir.Module {
		m, err := ir.Assemble(strings.NewReader(src))
		Expect(err).NotTo(HaveOccurred())
		return m
	}

	It("covers every pc with contiguous micro-ips (property 3)", func() {
		m := mustAssemble(`text:
0: mov A, 1
0: mov A, 2
1: mov B, 3
2: exit
`)
		branches := desmos.LowerProgram(cfg, m)

		byPC := map[int][]int{}
		for _, br := range branches {
			pc, ip, ok := branchPCIP(br.Cond)
			Expect(ok).To(BeTrue(), "every branch's condition must be check(pc,ip)=1")
			byPC[pc] = append(byPC[pc], ip)
		}

		for _, pc := range []int{0, 1, 2} {
			ips := byPC[pc]
			Expect(ips).NotTo(BeEmpty(), "pc %d has no branch", pc)
			sort.Ints(ips)
			for i, ip := range ips {
				Expect(ip).To(Equal(i), "pc %d micro-ips must be contiguous from 0", pc)
			}
		}
	})

	It("never assigns the same variable twice within one micro-step (property 4)", func() {
		m := mustAssemble(`text:
0: mov A, 1
0: mov A, 2
1: store A, A
2: exit
`)
		branches := desmos.LowerProgram(cfg, m)
		for _, br := range branches {
			vars := topLevelAssignVars(br.Val)
			seen := map[string]bool{}
			for _, v := range vars {
				Expect(seen[v]).To(BeFalse(), "variable %q assigned twice in one branch", v)
				seen[v] = true
			}
		}
	})

	It("splits two GETCs at the same pc into separate micro-steps (property 4)", func() {
		m := mustAssemble(`text:
0: getc A
0: getc B
1: exit
`)
		branches := desmos.LowerProgram(cfg, m)
		for _, br := range branches {
			vars := topLevelAssignVars(br.Val)
			seen := map[string]bool{}
			for _, v := range vars {
				Expect(seen[v]).To(BeFalse(), "variable %q assigned twice in one branch", v)
				seen[v] = true
			}
		}
	})

	It("round-trips append/pop (property 5)", func() {
		m := mustAssemble("text:\n0: exit\n")
		env := desmos.NewEnv(m, cfg, nil)
		env.Stdout = []int{1, 2, 3}

		appended := desmos.Call{Name: "append", Args: []desmos.Expr{desmos.Ident{Name: "STDOUT"}, desmos.Lit{Value: 4}}}
		env.Assign("STDOUT", appended)
		Expect(env.Stdout).To(Equal([]int{1, 2, 3, 4}))

		popped := desmos.Call{Name: "pop", Args: []desmos.Expr{desmos.Ident{Name: "STDOUT"}}}
		env.Assign("STDOUT", popped)
		Expect(env.Stdout).To(Equal([]int{2, 3, 4}))
	})
})
