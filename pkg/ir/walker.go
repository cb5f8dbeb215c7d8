package ir

// DefaultChunkSize is the tunable CHUNKED_FUNC_SIZE contract (§3, §9):
// the number of consecutive pc values grouped into one Desmos chunk
// function. The Piet backend does not chunk; it lowers one block per pc.
const DefaultChunkSize = 8

// Callbacks are the backend hooks the walker invokes while visiting a
// Module (§4.1, §6). A backend supplies whichever of these it needs;
// nil callbacks are simply skipped.
type Callbacks struct {
	// Prologue is called once per chunk, before any pc in it is visited.
	// funcID is the chunk index, starting at 0.
	Prologue func(funcID int)

	// Epilogue is called once per chunk, after every pc in it has been
	// visited.
	Epilogue func()

	// PCChange is called exactly once per populated pc, before the
	// Inst callback fires for that pc's instructions.
	PCChange func(pc int)

	// Inst is called once per instruction, in source order, immediately
	// after the PCChange call for its pc.
	Inst func(inst *Inst)
}

// Walk drives Callbacks over m's instruction stream, grouped into chunks of
// chunkSize consecutive pc values (§4.1). It returns the number of chunks,
// which is ceil((maxPC+1)/chunkSize); an empty module yields one empty
// chunk so that backends always have somewhere to emit a trivial program.
//
// The walker makes no assumption about which pc values are populated: gaps
// are allowed, and a pc with no instructions simply never triggers
// PCChange/Inst, matching §4.1's "for every pc that has at least one
// instruction".
func Walk(m *Module, chunkSize int, cb Callbacks) int {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	maxPC := m.MaxPC()
	numChunks := 1
	if maxPC >= 0 {
		numChunks = (maxPC + chunkSize) / chunkSize
	}

	// Text is assumed already sorted by ascending (pc, source order); the
	// textual assembler and any other Module producer must uphold this
	// invariant, same as the original walker's contract on its caller.
	idx := 0
	for chunk := 0; chunk < numChunks; chunk++ {
		if cb.Prologue != nil {
			cb.Prologue(chunk)
		}

		chunkStart := chunk * chunkSize
		chunkEnd := chunkStart + chunkSize // exclusive

		curPC := -1
		for idx < len(m.Text) && m.Text[idx].PC < chunkEnd {
			inst := &m.Text[idx]
			if inst.PC != curPC {
				if cb.PCChange != nil {
					cb.PCChange(inst.PC)
				}
				curPC = inst.PC
			}
			if cb.Inst != nil {
				cb.Inst(inst)
			}
			idx++
		}

		if cb.Epilogue != nil {
			cb.Epilogue()
		}
	}

	return numChunks
}
