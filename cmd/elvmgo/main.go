// Command elvmgo compiles the register-machine assembly (§3/§6) into a
// Desmos calculator document or a Piet PPM image.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/pogorzelski/elvmgo/pkg/desmos"
	"github.com/pogorzelski/elvmgo/pkg/ir"
	"github.com/pogorzelski/elvmgo/pkg/opfmt"
	"github.com/pogorzelski/elvmgo/pkg/piet"
)

var logger *slog.Logger

func main() {
	logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	atexit.Register(func() { os.Stderr.Sync() })

	rootCmd := &cobra.Command{
		Use:   "elvmgo",
		Short: "Compile register-machine IR to a Desmos graph or a Piet image",
	}

	rootCmd.AddCommand(compileCmd(), dumpCmd(), verifyCmd())

	if err := rootCmd.Execute(); err != nil {
		logger.Error("command failed", "error", err)
		atexit.Exit(1)
	}
	atexit.Exit(0)
}

func openInput(path string) (*ir.Module, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	m, err := ir.Assemble(f)
	if err != nil {
		return nil, fmt.Errorf("assemble %s: %w", path, err)
	}
	return m, nil
}

func openOutput(path string) (*os.File, error) {
	if path == "" || path == "-" {
		return os.Stdout, nil
	}
	return os.Create(path)
}

// compileCmd implements `compile desmos|piet <input>`.
func compileCmd() *cobra.Command {
	var output string
	var desmosMem int
	var desmosChunk int
	var pietMem int

	cmd := &cobra.Command{
		Use:   "compile <desmos|piet> <input.elvm>",
		Short: "Lower a program into a Desmos document or a Piet image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, inputPath := args[0], args[1]

			m, err := openInput(inputPath)
			if err != nil {
				return err
			}
			logger.Info("assembled module", "pcs", m.MaxPC()+1, "data_words", len(m.Data))

			out, err := openOutput(output)
			if err != nil {
				return err
			}
			if out != os.Stdout {
				defer out.Close()
			}

			switch target {
			case "desmos":
				cfg := desmos.DefaultConfig()
				if desmosMem > 0 {
					cfg.MemSize = desmosMem
				}
				if desmosChunk > 0 {
					cfg.ChunkSize = desmosChunk
				}
				if err := desmos.Compile(out, m, cfg); err != nil {
					return err
				}
			case "piet":
				cfg := piet.DefaultConfig()
				if pietMem > 0 {
					cfg.MemSize = pietMem
				}
				if err := piet.Compile(out, m, cfg); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown target %q: want desmos or piet", target)
			}

			logger.Info("compiled", "target", target, "output", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "-", "Output path (- for stdout)")
	cmd.Flags().IntVar(&desmosMem, "desmos-mem-size", 0, "Override Desmos memory size (0 = default)")
	cmd.Flags().IntVar(&desmosChunk, "desmos-chunk-size", 0, "Override Desmos chunk size K (0 = default)")
	cmd.Flags().IntVar(&pietMem, "piet-mem-size", 0, "Override Piet memory size (0 = default)")
	return cmd
}

// dumpCmd implements `dump <input>`: a pc/opcode/operand table, grounded
// on the teacher's verbose-mode progress tables.
func dumpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump <input.elvm>",
		Short: "Print the parsed instruction stream as a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openInput(args[0])
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"pc", "op", "dst", "src", "jmp"})
			for _, inst := range m.Text {
				t.AppendRow(table.Row{
					inst.PC, inst.Op.String(),
					opfmt.FormatValue(inst.Dst), opfmt.FormatValue(inst.Src), opfmt.FormatValue(inst.Jmp),
				})
			}
			t.Render()
			return nil
		},
	}
	return cmd
}

// verifyCmd implements `verify desmos|piet <input>`: run the requested
// backend's symbolic oracle (pkg/desmos.Run or pkg/piet.Run) against the
// reference interpreter (pkg/ir.Interp) and report any state mismatch.
func verifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <desmos|piet> <input.elvm>",
		Short: "Check a backend's lowering against the reference interpreter",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, inputPath := args[0], args[1]

			m, err := openInput(inputPath)
			if err != nil {
				return err
			}

			switch target {
			case "desmos":
				cfg := desmos.DefaultConfig()
				ref := ir.NewState(m, cfg.RegMask, nil)
				if err := ir.NewInterp(m).Run(ref); err != nil {
					return fmt.Errorf("reference: %w", err)
				}
				env, err := desmos.Run(cfg, m, nil)
				if err != nil {
					return fmt.Errorf("desmos: %w", err)
				}
				return reportRegMismatch("A", ref.Regs[ir.RegA], env.Regs["A"])

			case "piet":
				cfg := piet.DefaultConfig()
				ref := ir.NewState(m, cfg.RegMask, nil)
				if err := ir.NewInterp(m).Run(ref); err != nil {
					return fmt.Errorf("reference: %w", err)
				}
				st, err := piet.Run(cfg, m, nil)
				if err != nil {
					return fmt.Errorf("piet: %w", err)
				}
				return reportRegMismatch("A", ref.Regs[ir.RegA], st.Reg(ir.RegA))

			default:
				return fmt.Errorf("unknown target %q: want desmos or piet", target)
			}
		},
	}
	return cmd
}

func reportRegMismatch(name string, want, got int) error {
	if want != got {
		return fmt.Errorf("register %s mismatch: reference=%d backend=%d", name, want, got)
	}
	fmt.Printf("OK: register %s = %d\n", name, got)
	return nil
}
