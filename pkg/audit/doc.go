// Package audit maintains the tamper-evident audit trail.
//
// Every security-relevant action appends one AuditEvent. Events of the same
// signing file form a chain: each event stores the hash of the event before
// it (prevEventHash) and its own hash (eventHash), a SHA-256 over the
// canonical serialization produced by Canonical. Events without a signing
// file form a separate system chain. There is no ordering across chains.
//
// # Writing
//
// Chain.Append is the only writer. Inside one transaction it reads the head
// of the chain, links the new event, hashes it and inserts it. Metadata is
// redacted inside Append, so no caller can store tokens, OTP codes or
// passwords by mistake.
//
// The table itself rejects UPDATE and ungranted DELETE (see package store).
//
// # Verifying
//
// Verify walks a chain in order and reports the first event whose link or
// hash does not match; that event and every later one are reported broken.
// VerifyDocument loads and verifies one chain from the store.
package audit
