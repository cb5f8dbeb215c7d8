package desmos

// runtimeHelpers builds the fixed catalogue of piecewise helper function
// definitions C3 must emit (§4.3): append, pop, mod, getc, check,
// changepc, load, store (with its s_c sub-helper), and update. Each is
// built once from the Expr ADT and handed to the Emitter, which is the
// only place LaTeX/JSON text is produced (§9 Design Notes).
func runtimeHelpers(cfg Config) []FuncDef {
	l, i, p, ip, h, n := Ident{"l"}, Ident{"i"}, Ident{"p"}, Ident{"ip"}, Ident{"h"}, Ident{"n"}

	length := func(list Expr) Expr { return Call{"length", []Expr{list}} }

	appendDef := FuncDef{
		Name: "append", Params: []string{"l", "i"},
		Body: ListComp{
			Var: "n", From: Lit{1}, To: BinOp{"+", length(l), Lit{1}},
			Body: Piecewise{
				Branches: []Branch{{Cond: Compare{"\\le", n, length(l)}, Val: Index{l, n}}},
				Else:     i,
			},
		},
	}

	popDef := FuncDef{
		Name: "pop", Params: []string{"l"},
		Body: Piecewise{
			Branches: []Branch{{Cond: Compare{"<", length(l), Lit{2}}, Val: ListLit{}}},
			Else: ListComp{
				Var: "n", From: Lit{1}, To: BinOp{"-", length(l), Lit{1}},
				Body: Index{l, BinOp{"+", n, Lit{1}}},
			},
		},
	}

	modDef := FuncDef{
		Name: "mod", Params: []string{"i"},
		Body: BinOp{"-", i, BinOp{"*", Lit{cfg.RegMask}, Call{"floor", []Expr{Frac{i, Lit{cfg.RegMask}}}}}},
	}

	getcDef := FuncDef{
		Name: "getc", Params: nil,
		Body: Piecewise{
			Branches: []Branch{{Cond: Compare{"=", length(Ident{"STDIN"}), Lit{0}}, Val: Lit{0}}},
			Else:     Index{Ident{"STDIN"}, Lit{1}},
		},
	}

	checkDef := FuncDef{
		Name: "check", Params: []string{"p", "ip"},
		Body: Piecewise{
			Branches: []Branch{{
				Cond: And{Compare{"=", Ident{"PC"}, p}, Compare{"=", Ident{"IP"}, ip}},
				Val:  Lit{1},
			}},
		},
	}

	changepcDef := FuncDef{
		Name: "changepc", Params: []string{"p"},
		Body: Piecewise{
			Branches: []Branch{{
				Cond: Compare{"=", Ident{"PC"}, p},
				Val:  Assign{"IP", BinOp{"+", Ident{"IP"}, Lit{1}}},
			}},
			Else: ActionBundle{[]Expr{Assign{"PC", p}, Assign{"IP", Lit{0}}}},
		},
	}

	numChunks := cfg.NumMemChunks()

	// chunkIndex/chunkOffset decompose an address l into a chunk number
	// and an in-chunk offset (§4.3's "splitting l into chunk-index
	// floor(l/chunk) and offset mod(l,chunk)+1"); this is arithmetic on
	// chunkSize, distinct from mod()'s register-width wraparound, so it
	// is spelled out directly rather than reusing the mod() helper.
	chunkIndex := func(addr Expr) Expr {
		return Call{"floor", []Expr{Frac{addr, Lit{cfg.ChunkSize}}}}
	}
	chunkOffset := func(addr Expr) Expr {
		return BinOp{"-", addr, BinOp{"*", Lit{cfg.ChunkSize}, chunkIndex(addr)}}
	}

	loadBranches := make([]Branch, 0, numChunks)
	for k := 0; k < numChunks; k++ {
		loadBranches = append(loadBranches, Branch{
			Cond: Compare{"=", chunkIndex(l), Lit{k}},
			Val:  Index{Ident{memChunkName(k)}, BinOp{"+", chunkOffset(l), Lit{1}}},
		})
	}
	loadDef := FuncDef{Name: "load", Params: []string{"l"}, Body: Piecewise{Branches: loadBranches}}

	// s_c(h,l,i,curList): curList (chunk h's current list, passed by the
	// caller since Desmos functions can't look a variable up by a
	// computed name) with the slot at l's offset replaced by i when l
	// falls in chunk h, else curList unchanged (§4.3).
	curList := Ident{"curList"}
	scDef := FuncDef{
		Name: "s_c", Params: []string{"h", "l", "i", "curList"},
		Body: Piecewise{
			Branches: []Branch{{
				Cond: Compare{"=", chunkIndex(l), h},
				Val: ListComp{
					Var: "n", From: Lit{1}, To: Lit{cfg.ChunkSize},
					Body: Piecewise{
						Branches: []Branch{{
							Cond: Compare{"=", n, BinOp{"+", chunkOffset(l), Lit{1}}},
							Val:  i,
						}},
						Else: Index{curList, n},
					},
				},
			}},
			Else: curList,
		},
	}

	storeActions := make([]Expr, 0, numChunks)
	for k := 0; k < numChunks; k++ {
		storeActions = append(storeActions, Assign{
			Var: memChunkName(k),
			Val: Call{"s_c", []Expr{Lit{k}, l, i, Ident{memChunkName(k)}}},
		})
	}
	storeDef := FuncDef{
		Name: "store", Params: []string{"l", "i"},
		Body: ActionBundle{storeActions},
	}

	updateDef := FuncDef{
		Name: "update", Params: nil,
		Body: Piecewise{
			Branches: []Branch{{
				Cond: Compare{"=", Ident{"RUNNING"}, Lit{1}},
				Val:  Call{"callf", []Expr{Call{"floor", []Expr{Frac{Ident{"PC"}, Lit{cfg.ChunkSize}}}}}},
			}},
		},
	}

	return []FuncDef{appendDef, popDef, modDef, getcDef, checkDef, changepcDef, loadDef, scDef, storeDef, updateDef}
}
