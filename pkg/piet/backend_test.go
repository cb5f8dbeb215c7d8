package piet_test

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/pogorzelski/elvmgo/pkg/ir"
	"github.com/pogorzelski/elvmgo/pkg/piet"
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
	st, err := piet.Run(piet.DefaultConfig(), m, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !st.Exited {
		t.Fatal("expected Exited = true after EXIT")
	}
}

// S2 — hello-world stub: stdout = [72].
func TestBackendHelloWorld(t *testing.T) {
	m := assemble(t, "text:\n0: mov A, 72\n1: putc A\n2: exit\n")
	st, err := piet.Run(piet.DefaultConfig(), m, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(st.Stdout) != 1 || st.Stdout[0] != 72 {
		t.Fatalf("Stdout = %v, want [72]", st.Stdout)
	}
}

// S3 — touched-register overwrite within the same pc.
func TestBackendRegisterOverwrite(t *testing.T) {
	m := assemble(t, "text:\n0: mov A, 1\n0: mov A, 2\n1: exit\n")
	st, err := piet.Run(piet.DefaultConfig(), m, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := st.Reg(ir.RegA); got != 2 {
		t.Fatalf("A = %d, want 2", got)
	}
}

// S4 — jump: control lands on the target block, skipping what's between.
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
	st, err := piet.Run(piet.DefaultConfig(), m, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := st.Reg(ir.RegB); got != 9 {
		t.Fatalf("B = %d, want 9", got)
	}
}

// S5 — memory round-trip through a register-addressed STORE/LOAD pair.
func TestBackendMemoryRoundTrip(t *testing.T) {
	m := assemble(t, `text:
0: mov A, 42
1: mov C, 5
2: store A, C
3: load B, C
4: exit
`)
	st, err := piet.Run(piet.DefaultConfig(), m, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := st.Reg(ir.RegB); got != 42 {
		t.Fatalf("B = %d, want 42", got)
	}
}

// S6 — GETC EOF lowers to 0 via the x*NOT(NOT(x-256)) arithmetic select,
// matching the reference interpreter's dst=0-on-EOF contract.
func TestBackendGetcEOF(t *testing.T) {
	m := assemble(t, "text:\n0: getc A\n1: exit\n")
	st, err := piet.Run(piet.DefaultConfig(), m, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := st.Reg(ir.RegA); got != 0 {
		t.Fatalf("A = %d, want 0", got)
	}
}

func TestBackendGetcPassesThroughByte(t *testing.T) {
	m := assemble(t, "text:\n0: getc A\n1: exit\n")
	st, err := piet.Run(piet.DefaultConfig(), m, []int{65})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := st.Reg(ir.RegA); got != 65 {
		t.Fatalf("A = %d, want 65", got)
	}
}

// Cross-checks the symbolic stack machine against the reference
// interpreter over arithmetic, memory, the EQ and LT comparisons, and PUTC.
func TestBackendMatchesReferenceInterpreter(t *testing.T) {
	src := `text:
0: mov A, 10
1: mov B, 3
2: add A, B
3: mov C, 100
4: store A, C
5: load D, C
6: eq A, D
7: lt B, A
8: putc A
9: exit
`
	m := assemble(t, src)

	cfg := piet.DefaultConfig()
	refState := ir.NewState(m, cfg.RegMask, nil)
	if err := ir.NewInterp(m).Run(refState); err != nil {
		t.Fatalf("reference Run: %v", err)
	}

	st, err := piet.Run(cfg, m, nil)
	if err != nil {
		t.Fatalf("piet Run: %v", err)
	}

	if got, want := st.Reg(ir.RegA), refState.Regs[ir.RegA]; got != want {
		t.Errorf("A: piet=%d reference=%d", got, want)
	}
	if got, want := st.Reg(ir.RegD), refState.Regs[ir.RegD]; got != want {
		t.Errorf("D: piet=%d reference=%d", got, want)
	}
	if len(st.Stdout) != len(refState.Stdout) || (len(st.Stdout) > 0 && byte(st.Stdout[0]) != refState.Stdout[0]) {
		t.Errorf("Stdout: piet=%v reference=%v", st.Stdout, refState.Stdout)
	}
}

// Conditional jumps resolved via arithmetic select (§4.6, no geometric
// branch): verifies both the taken and not-taken path of a loop.
func TestBackendLoopCountdown(t *testing.T) {
	m := assemble(t, `text:
0: mov A, 3
1: mov B, 0
loop:
2: mov C, A
3: jeq C, B, done
4: sub A, 1
5: jmp loop
done:
6: exit
`)
	st, err := piet.Run(piet.DefaultConfig(), m, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := st.Reg(ir.RegA); got != 0 {
		t.Fatalf("A = %d, want 0", got)
	}
}

// Property 8 — every immediate in the configured register range
// round-trips through Push's base-6 encoding.
func TestPushRoundTrips(t *testing.T) {
	cfg := piet.DefaultConfig()
	samples := []int{0, 1, 5, 6, 7, 35, 36, 100, 1000, 12345, cfg.RegMask - 1}
	for _, v := range samples {
		var prog piet.Prog
		prog.Push(v)

		var s piet.State
		for _, inst := range prog.Insts {
			switch inst.Op {
			case piet.PUSH:
				s.Stack = append(s.Stack, inst.Arg)
			default:
				execBasic(&s, inst.Op)
			}
		}
		if len(s.Stack) != 1 || s.Stack[0] != v {
			t.Fatalf("Push(%d) round-trip = %v, want [%d]", v, s.Stack, v)
		}
	}
}

// execBasic runs the non-PUSH opcodes Push's own output ever emits
// (MUL, ADD, NOT) against a bare stack, for TestPushRoundTrips.
func execBasic(s *piet.State, op piet.Op) {
	switch op {
	case piet.MUL:
		b, a := pop(s), pop(s)
		s.Stack = append(s.Stack, a*b)
	case piet.ADD:
		b, a := pop(s), pop(s)
		s.Stack = append(s.Stack, a+b)
	case piet.NOT:
		a := pop(s)
		v := 0
		if a == 0 {
			v = 1
		}
		s.Stack = append(s.Stack, v)
	}
}

func pop(s *piet.State) int {
	n := len(s.Stack)
	v := s.Stack[n-1]
	s.Stack = s.Stack[:n-1]
	return v
}

// Property 6 — Compile emits a structurally valid PPM: "P6" magic,
// positive width/height, maxval 255, and exactly 3*w*h pixel bytes
// following the header.
func TestCompileProducesValidPPM(t *testing.T) {
	m := assemble(t, "text:\n0: mov A, 72\n1: putc A\n2: exit\n")
	var buf bytes.Buffer
	if err := piet.Compile(&buf, m, piet.DefaultConfig()); err != nil {
		t.Fatalf("Compile: %v", err)
	}

	r := bufio.NewReader(&buf)
	magic, err := r.ReadString('\n')
	if err != nil || strings.TrimSpace(magic) != "P6" {
		t.Fatalf("magic = %q, want P6", magic)
	}
	var line string
	for {
		line, err = r.ReadString('\n')
		if err != nil {
			t.Fatalf("read dims: %v", err)
		}
		if strings.TrimSpace(line) != "" {
			break
		}
	}
	var w, h int
	if _, err := fmt.Sscanf(line, "%d %d", &w, &h); err != nil {
		t.Fatalf("parse dims %q: %v", line, err)
	}
	if w <= 0 || h <= 0 {
		t.Fatalf("dims = %dx%d, want positive", w, h)
	}
	maxLine, err := r.ReadString('\n')
	if err != nil || strings.TrimSpace(maxLine) != "255" {
		t.Fatalf("maxval = %q, want 255", maxLine)
	}

	rest := new(bytes.Buffer)
	if _, err := rest.ReadFrom(r); err != nil {
		t.Fatalf("read pixels: %v", err)
	}
	if rest.Len() != w*h*3 {
		t.Fatalf("pixel bytes = %d, want %d (%dx%d*3)", rest.Len(), w*h*3, w, h)
	}
}

// A statically out-of-range memory address is rejected before lowering
// rather than silently producing a block that mis-addresses the stack.
func TestBackendRejectsOutOfRangeStaticAddress(t *testing.T) {
	cfg := piet.DefaultConfig()
	m := assemble(t, fmt.Sprintf("text:\n0: mov A, 1\n1: store A, %d\n2: exit\n", cfg.MemSize))
	if _, err := piet.Run(cfg, m, nil); err == nil {
		t.Fatal("Run: want an out-of-bounds error, got nil")
	}
	var buf bytes.Buffer
	if err := piet.Compile(&buf, m, cfg); err == nil {
		t.Fatal("Compile: want an out-of-bounds error, got nil")
	}
}

func TestBackendRejectsRegisterJumpTarget(t *testing.T) {
	cfg := piet.DefaultConfig()
	m := assemble(t, "text:\n0: mov A, 1\n1: jmp A\n")
	if _, err := piet.Run(cfg, m, nil); err == nil {
		t.Fatal("Run: want a register-jump-target error, got nil")
	}
	var buf bytes.Buffer
	if err := piet.Compile(&buf, m, cfg); err == nil {
		t.Fatal("Compile: want a register-jump-target error, got nil")
	}
}

// Property 7 — the color-transition walk never revisits the starting
// color on the very next step, the condition Piet imposes on adjacent
// codels so op boundaries stay visible.
func TestColorTransitionsMoveOff(t *testing.T) {
	for c := 0; c < 18; c++ {
		for op := piet.PUSH; op <= piet.OUT; op++ {
			next := piet.NextColor(c, op)
			if next == c {
				t.Fatalf("nextColor(%d, %v) = %d, want a different color", c, op, next)
			}
			if next < 0 || next >= 18 {
				t.Fatalf("nextColor(%d, %v) = %d, out of [0,18)", c, op, next)
			}
		}
	}
}
