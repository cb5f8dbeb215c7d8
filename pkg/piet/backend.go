package piet

import (
	"fmt"
	"io"

	"github.com/pogorzelski/elvmgo/pkg/ir"
)

// Compile lowers m and writes the resulting PPM image to w (§4.5-§4.7).
// Unlike the Desmos backend, Piet lowering doesn't chunk via pkg/ir.Walk:
// every pc becomes exactly one dispatcher row, so LowerProgram groups
// m.Text by pc directly.
func Compile(w io.Writer, m *ir.Module, cfg Config) error {
	if cfg.RegMask <= 0 {
		cfg.RegMask = DefaultConfig().RegMask
	}
	if cfg.MemSize <= 0 {
		cfg.MemSize = DefaultConfig().MemSize
	}
	if err := ValidateMemBounds(cfg, m); err != nil {
		return err
	}
	if err := ValidateJumpTargets(m); err != nil {
		return err
	}

	blocks := LowerProgram(cfg, m)
	img := Render(blocks)

	if _, err := w.Write(img); err != nil {
		return fmt.Errorf("piet: write output: %w", err)
	}
	return nil
}
