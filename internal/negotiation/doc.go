// Package negotiation runs the two-round sourcing negotiation between one
// buyer and the catalog's suppliers.
//
// A run fans round one out over every supplier, waits for all of them at a
// barrier, optionally writes a cross-supplier reflection memo, fans round two
// out with per-supplier counters, scores the final quotes and asks the buyer
// responder to narrate the decision. Progress is reported as a typed Event
// stream; the returned Result is the run's only terminal artifact.
package negotiation
