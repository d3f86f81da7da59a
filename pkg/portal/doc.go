// Package portal knows the broker portal's wire formats.
//
// It holds the endpoint catalogue (paths and pagination parameters for every
// listing and detail call), the raw response payloads, and the normalizers
// that turn raw payloads into the flat records of package records. Nothing
// here performs I/O; package harvest drives the calls.
package portal
