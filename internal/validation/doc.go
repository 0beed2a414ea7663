// Package validation checks agent proposals before they reach governance.
//
// Validation happens in two layers. The schema layer checks a single intent
// against the rules for its type: required fields, value types, enumerations,
// numeric ranges and string lengths first, then cross-field rules such as the
// trust delta bound. Structural failures suppress the cross-field rules for
// that intent.
//
// The proposal layer checks the envelope (speech length, at most five
// intents), runs the schema layer over every intent, and applies the rules
// that hold for any intent inside a proposal:
//   - memory, trust and moderation intents need confidence >= 0.7
//   - every justification is at least 10 characters
//   - global memories never name a user or player
//
// Every violation across every intent is reported in one pass.
//
// Ledger keeps running counts of outcomes and the most recent rejections for
// dashboards and health checks.
package validation
