// Package license implements activation and offline-tolerant
// validation of Dhandha licenses.
//
// The engine binds a license key to a hardware fingerprint through a
// remote authority, persists one local Record per installation, and
// keeps it fresh with a background verification scheduler. When the
// authority is unreachable the license degrades into a bounded
// offline grace period instead of failing hard; explicit revocation
// by the authority is immediate and terminal.
//
// Validity logic is expressed as pure functions over an immutable
// Record snapshot and an explicit clock (IsValid, NeedsVerification,
// WarningMessage), so the state machine is testable without a live
// clock, network, or disk. All durable mutation funnels through the
// Manager, which serializes user-triggered activation and
// deactivation against scheduler check-ins.
package license
