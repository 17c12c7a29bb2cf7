// Package pncp defines the core types and collaborator interfaces for the
// edital harvesting pipeline. It includes the canonical record model, the
// candidate stubs produced by the listing scan, and the run summary returned
// by the reconciliation engine.
package pncp
