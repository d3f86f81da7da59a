// Package records defines the flat record kinds produced by a harvest and
// consumed by a sync run, plus the small value helpers shared by both sides.
//
// Five record kinds exist:
//
//   - Customer: one per portal customer, keyed by its internal id
//   - PensionProduct: one per pension ("PREV") product of a customer
//   - LifeProduct: one per coverage of a life ("VIDA") product
//   - PendingPayment: one per overdue installment on the pending report
//   - ProposalStatus: one per proposal with a first-installment detail
//
// Records travel between the two halves of the pipeline as named batches
// ({"name": "...", "data": [...]}). Classify maps a batch name to its Kind.
//
// Optional scalars use Text, which distinguishes an absent value from an
// empty one and accepts numbers where the portal is inconsistent about types.
// Money values use decimal.NullDecimal.
package records
