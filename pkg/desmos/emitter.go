package desmos

import (
	"encoding/json"
	"fmt"
)

// Emitter assembles the top-level Desmos document (C2, §4.2): a stream of
// expression/folder list items with monotonically increasing ids and
// JSON/LaTeX escaping handled in one place.
//
// Grounded on spec.md §4.2 directly; the outer JSON shape mirrors the
// teacher's encoding/json-based serialization idiom in cmd/z80opt/main.go,
// applied to emission rather than parsing. The LaTeX-in-JSON escaping is a
// hand-written function (escapeLatexJSON below) because no library
// escapes "JSON inside LaTeX inside JSON" for us, and the exact control-
// character table spec.md calls out doesn't match encoding/json's default
// escaping byte-for-byte (it also escapes '<','>','&' for HTML safety,
// which would corrupt LaTeX).
type Emitter struct {
	nextID   int
	folderID int // -1 = none
	items    []listItem
}

// NewEmitter returns an Emitter ready to assign ids starting at 1 (0 is
// reserved, §4.2).
func NewEmitter() *Emitter {
	return &Emitter{nextID: 1, folderID: -1}
}

type listItem struct {
	Type      string          `json:"type"`
	Hidden    bool            `json:"hidden,omitempty"`
	FolderID  int             `json:"folderId,omitempty"`
	ID        int             `json:"id"`
	Latex     json.RawMessage `json:"latex,omitempty"`
	Collapsed bool            `json:"collapsed,omitempty"`
	Title     string          `json:"title,omitempty"`
}

// Folder opens a new folder and returns its id; subsequent Expression
// calls carry this id as folderId until the next Folder call.
func (e *Emitter) Folder(title string) int {
	id := e.take()
	e.items = append(e.items, listItem{
		Type: "folder", Collapsed: true, ID: id, Title: title,
	})
	e.folderID = id
	return id
}

// Expression adds a hidden expression item carrying the given Expr's
// rendered LaTeX, and returns its id.
func (e *Emitter) Expression(expr Expr) int {
	id := e.take()
	item := listItem{
		Type:   "expression",
		Hidden: true,
		ID:     id,
		Latex:  escapeLatexJSON(expr.Render()),
	}
	if e.folderID >= 0 {
		item.FolderID = e.folderID
	}
	e.items = append(e.items, item)
	return id
}

func (e *Emitter) take() int {
	id := e.nextID
	e.nextID++
	return id
}

// NumItems returns how many list items have been emitted so far.
func (e *Emitter) NumItems() int { return len(e.items) }

type document struct {
	Version     int             `json:"version"`
	Expressions expressionsField `json:"expressions"`
}

type expressionsField struct {
	Ticker tickerField `json:"ticker"`
	List   []listItem  `json:"list"`
}

type tickerField struct {
	HandlerLatex json.RawMessage `json:"handlerLatex"`
	Open         bool            `json:"open"`
	Playing      bool            `json:"playing"`
}

// Document assembles the final JSON document (§6's output shape). ticker
// is the LaTeX of the single-argument call the calculator evaluates once
// per frame (the update() helper, §4.3).
func (e *Emitter) Document(ticker Expr) ([]byte, error) {
	doc := document{
		Version: 9,
		Expressions: expressionsField{
			Ticker: tickerField{
				HandlerLatex: escapeLatexJSON(ticker.Render()),
				Open:         true,
				Playing:      false,
			},
			List: e.items,
		},
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("desmos: marshal document: %w", err)
	}
	return b, nil
}

// escapeLatexJSON returns a fully JSON-quoted string (including the
// surrounding quotes) for embedding as json.RawMessage, per §4.2's exact
// escaping contract: '"' and '\' are escaped, the six named C0 controls
// get their short escapes, every other byte below 0x20 becomes \u00XX,
// and everything else — including multi-byte UTF-8 — passes through
// verbatim.
func escapeLatexJSON(s string) json.RawMessage {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			out = append(out, '\\', '"')
		case '\\':
			out = append(out, '\\', '\\')
		case '\b':
			out = append(out, '\\', 'b')
		case '\t':
			out = append(out, '\\', 't')
		case '\n':
			out = append(out, '\\', 'n')
		case '\v':
			out = append(out, '\\', 'v')
		case '\f':
			out = append(out, '\\', 'f')
		case '\r':
			out = append(out, '\\', 'r')
		default:
			if c < 0x20 {
				const hex = "0123456789abcdef"
				out = append(out, '\\', 'u', '0', '0', hex[c>>4], hex[c&0xf])
			} else {
				out = append(out, c)
			}
		}
	}
	out = append(out, '"')
	return json.RawMessage(out)
}
