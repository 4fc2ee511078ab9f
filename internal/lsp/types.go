package lsp

// Position is a zero-based line/character offset in a document.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Location identifies a range inside a document.
type Location struct {
	URI   string `json:"uri"`
	Range Range  `json:"range"`
}
