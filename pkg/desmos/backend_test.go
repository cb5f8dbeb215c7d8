package desmos_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/pogorzelski/elvmgo/pkg/desmos"
	"github.com/pogorzelski/elvmgo/pkg/ir"
)

func assemble(t *testing.T, src string) *ir.Module {
	t.Helper()
	m, err := ir.Assemble(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	return m
}

// S1 — empty program.
func TestBackendEmptyProgram(t *testing.T) {
	m := assemble(t, "text:\n0: exit\n")
	env, err := desmos.Run(desmos.DefaultConfig(), m, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if env.Running {
		t.Fatal("expected Running = false after EXIT")
	}
}

// S2 — hello-world stub: STDOUT = [72].
func TestBackendHelloWorld(t *testing.T) {
	m := assemble(t, "text:\n0: mov A, 72\n1: putc A\n2: exit\n")
	env, err := desmos.Run(desmos.DefaultConfig(), m, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(env.Stdout) != 1 || env.Stdout[0] != 72 {
		t.Fatalf("Stdout = %v, want [72]", env.Stdout)
	}
}

// S3 — touched-register split: the plan() splitter must open a new
// micro-step rather than silently dropping the first write.
func TestBackendTouchedRegisterSplit(t *testing.T) {
	m := assemble(t, "text:\n0: mov A, 1\n0: mov A, 2\n1: exit\n")
	branches := desmos.LowerProgram(desmos.DefaultConfig(), m)
	if len(branches) != 3 { // (0,0), (0,1), (1,0)
		t.Fatalf("len(branches) = %d, want 3", len(branches))
	}
	env, err := desmos.Run(desmos.DefaultConfig(), m, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if env.Regs["A"] != 2 {
		t.Fatalf("A = %d, want 2", env.Regs["A"])
	}
}

// S4 — jump: no trailing IP increment after changepc.
func TestBackendJump(t *testing.T) {
	m := assemble(t, `text:
0: mov A, 1
1: mov A, 2
2: mov A, 3
3: jmp done
done:
7: mov B, 9
8: exit
`)
	env, err := desmos.Run(desmos.DefaultConfig(), m, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if env.Regs["B"] != 9 {
		t.Fatalf("B = %d, want 9", env.Regs["B"])
	}
}

// The initial memory image (§3) seeds the m_k chunk lists Compile emits,
// not just the Env oracle's flat map.
func TestCompileEmitsInitialMemoryImage(t *testing.T) {
	m := assemble(t, "text:\n0: exit\n")
	m.Data = []ir.Data{{V: 111}, {V: 222}, {V: 333}}

	cfg := desmos.DefaultConfig()
	var buf bytes.Buffer
	if err := desmos.Compile(&buf, m, cfg); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	latex := buf.String()
	if !strings.Contains(latex, "m_{0}=") {
		t.Fatal("Compile output missing m_{0} chunk initializer")
	}
	if !strings.Contains(latex, "111") || !strings.Contains(latex, "222") || !strings.Contains(latex, "333") {
		t.Fatalf("Compile output missing seeded data values: %s", latex)
	}
}

// §7.3 — a data image longer than capacity is truncated, not rejected.
func TestCompileTruncatesOversizedMemoryImage(t *testing.T) {
	m := assemble(t, "text:\n0: exit\n")
	cfg := desmos.DefaultConfig()
	cfg.MemSize = 2
	cfg.ChunkSize = 2
	m.Data = []ir.Data{{V: 111}, {V: 222}, {V: 999}}

	var buf bytes.Buffer
	if err := desmos.Compile(&buf, m, cfg); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if strings.Contains(buf.String(), "999") {
		t.Fatalf("Compile output should not contain the truncated word: %s", buf.String())
	}
}

// S5 — memory round-trip.
func TestBackendMemoryRoundTrip(t *testing.T) {
	m := assemble(t, `text:
0: mov A, 42
1: mov C, 5
2: store A, C
3: load B, C
4: exit
`)
	env, err := desmos.Run(desmos.DefaultConfig(), m, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if env.Regs["B"] != 42 {
		t.Fatalf("B = %d, want 42", env.Regs["B"])
	}
}

// S6 — GETC EOF.
func TestBackendGetcEOF(t *testing.T) {
	m := assemble(t, "text:\n0: getc A\n1: exit\n")
	env, err := desmos.Run(desmos.DefaultConfig(), m, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if env.Regs["A"] != 0 {
		t.Fatalf("A = %d, want 0", env.Regs["A"])
	}
	if len(env.Stdin) != 0 {
		t.Fatalf("Stdin = %v, want empty", env.Stdin)
	}
}

func TestBackendMatchesReferenceInterpreter(t *testing.T) {
	src := `text:
0: mov A, 10
1: mov B, 3
2: add A, B
3: mov C, 100
4: store A, C
5: load D, C
6: eq A, D
7: putc A
8: exit
`
	m := assemble(t, src)

	refState := ir.NewState(m, desmos.DefaultConfig().RegMask, nil)
	if err := ir.NewInterp(m).Run(refState); err != nil {
		t.Fatalf("reference Run: %v", err)
	}

	env, err := desmos.Run(desmos.DefaultConfig(), m, nil)
	if err != nil {
		t.Fatalf("desmos Run: %v", err)
	}

	if refState.Regs[ir.RegA] != env.Regs["A"] {
		t.Errorf("A: reference=%d desmos=%d", refState.Regs[ir.RegA], env.Regs["A"])
	}
	if refState.Regs[ir.RegD] != env.Regs["D"] {
		t.Errorf("D: reference=%d desmos=%d", refState.Regs[ir.RegD], env.Regs["D"])
	}
	if string(refState.Stdout) != string(intsToBytes(env.Stdout)) {
		t.Errorf("Stdout: reference=%v desmos=%v", refState.Stdout, env.Stdout)
	}
}

func intsToBytes(xs []int) []byte {
	out := make([]byte, len(xs))
	for i, x := range xs {
		out[i] = byte(x)
	}
	return out
}

// Property 2 — JSON well-formedness.
func TestCompileProducesValidJSON(t *testing.T) {
	m := assemble(t, "text:\n0: mov A, 72\n1: putc A\n2: exit\n")
	var buf bytes.Buffer
	if err := desmos.Compile(&buf, m, desmos.DefaultConfig()); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !json.Valid(buf.Bytes()) {
		t.Fatalf("Compile output is not valid JSON: %s", buf.String())
	}
}

// Property 1 — expression id uniqueness and contiguity.
func TestCompileExpressionIDsContiguous(t *testing.T) {
	m := assemble(t, "text:\n0: mov A, 72\n1: putc A\n2: exit\n")
	var buf bytes.Buffer
	if err := desmos.Compile(&buf, m, desmos.DefaultConfig()); err != nil {
		t.Fatalf("Compile: %v", err)
	}

	var doc struct {
		Expressions struct {
			List []struct {
				ID int `json:"id"`
			} `json:"list"`
		} `json:"expressions"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	seen := map[int]bool{}
	max := 0
	for _, item := range doc.Expressions.List {
		if seen[item.ID] {
			t.Fatalf("duplicate id %d", item.ID)
		}
		seen[item.ID] = true
		if item.ID > max {
			max = item.ID
		}
	}
	for i := 1; i <= max; i++ {
		if !seen[i] {
			t.Fatalf("id %d missing; ids must be contiguous from 1", i)
		}
	}
}
