package desmos

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/pogorzelski/elvmgo/pkg/ir"
)

// Compile drives pkg/ir.Walk over m and writes the resulting Desmos
// document to w (§4.2-§4.4, §6's output shape). Grounded on the teacher's
// cmd/z80opt/main.go top-level orchestration style: build a config, run
// the pass, write the result.
func Compile(w io.Writer, m *ir.Module, cfg Config) error {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = ir.DefaultChunkSize
	}
	if cfg.MemSize <= 0 {
		cfg.MemSize = DefaultConfig().MemSize
	}

	em := NewEmitter()
	for _, def := range runtimeHelpers(cfg) {
		em.Expression(def)
	}
	for _, def := range memChunkDefs(cfg, m.Data) {
		em.Expression(def)
	}

	var pcGroups [][]ir.Inst
	var cur []ir.Inst
	var chunkIDs []int
	var curChunkID int

	flushPC := func() {
		if len(cur) > 0 {
			pcGroups = append(pcGroups, cur)
			cur = nil
		}
	}

	ir.Walk(m, cfg.ChunkSize, ir.Callbacks{
		Prologue: func(id int) {
			pcGroups = nil
			cur = nil
			curChunkID = id
		},
		PCChange: func(int) {
			flushPC()
		},
		Inst: func(inst *ir.Inst) {
			cur = append(cur, *inst)
		},
		Epilogue: func() {
			flushPC()
			fn := lowerChunkFunc(cfg, pcGroups)
			em.Expression(FuncDef{Name: chunkFuncName(curChunkID), Body: fn})
			chunkIDs = append(chunkIDs, curChunkID)
		},
	})

	em.Expression(callfDispatcher(chunkIDs))

	doc, err := em.Document(Call{"update", nil})
	if err != nil {
		return fmt.Errorf("desmos: %w", err)
	}
	if _, err := w.Write(doc); err != nil {
		return fmt.Errorf("desmos: write output: %w", err)
	}
	return nil
}

// memChunkDefs builds the m_0, m_1, ... initial-value definitions the
// store()/load() helpers read and write (§3's initial memory image). A
// data image longer than cfg.MemSize is truncated to capacity with a
// warning rather than a hard failure, per §7.3.
func memChunkDefs(cfg Config, data []ir.Data) []VarDef {
	if len(data) > cfg.MemSize {
		slog.Warn("desmos: initial memory image truncated to capacity",
			"words", len(data), "capacity", cfg.MemSize)
		data = data[:cfg.MemSize]
	}

	numChunks := cfg.NumMemChunks()
	defs := make([]VarDef, 0, numChunks)
	for k := 0; k < numChunks; k++ {
		elems := make([]Expr, cfg.ChunkSize)
		for i := 0; i < cfg.ChunkSize; i++ {
			addr := k*cfg.ChunkSize + i
			v := 0
			if addr < len(data) {
				v = data[addr].V
			}
			elems[i] = Lit{v}
		}
		defs = append(defs, VarDef{Name: memChunkName(k), Val: ListLit{Elems: elems}})
	}
	return defs
}

func chunkFuncName(id int) string { return "f_" + itoa(id) }

// callfDispatcher builds the callf(c) piecewise that update() (§4.3) uses
// to select the right per-chunk function by id.
func callfDispatcher(chunkIDs []int) FuncDef {
	c := Ident{"c"}
	branches := make([]Branch, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		branches = append(branches, Branch{
			Cond: Compare{"=", c, Lit{id}},
			Val:  Call{chunkFuncName(id), nil},
		})
	}
	return FuncDef{Name: "callf", Params: []string{"c"}, Body: Piecewise{Branches: branches}}
}
