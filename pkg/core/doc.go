// Package core defines the shared language of the oigen system.
//
// This package contains:
//   - Domain entities (RawRow, Node, Record)
//   - Record lifecycle rules (RecordStatus and its transitions)
//   - Service interfaces (RecordStore)
//   - The error taxonomy shared by every stage of a run
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
