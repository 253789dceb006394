// Package quote owns the quote block wire format exchanged between the
// negotiation engine and the responder personas. Suppliers are prompted to end
// every reply with a block delimited by BlockStart and BlockEnd; Parse lifts the
// commercial terms out of that block and Format renders one in the same
// grammar. The grammar is versioned through GrammarVersion and must only change
// together with every persona prompt that teaches it.
package quote
