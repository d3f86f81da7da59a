// Package syncer merges harvested record batches into the relational store.
//
// The Engine has one operation per entity kind (customers, proposals,
// pending payments, life products, pension products). Every operation runs
// its records in input order inside one batch transaction:
//
//   - the owning customer is resolved by cleaned document and tenant, and a
//     minimal customer row is created when none exists (get-or-create)
//   - the stored row is looked up by the entity's natural key, then inserted,
//     updated when a tracked field changed, or left alone
//   - a failing record rolls back to its savepoint and is counted; the
//     others still commit
//
// Losing the store connection aborts the batch without committing.
//
// A Runner feeds the Engine from harvest files on disk. It resolves the
// file's broker once, syncs customers first and the dependent kinds after,
// and moves each fully processed file aside.
package syncer
