// Package store defines the item-store contract the tracker runs against:
// point reads, unconditional puts, conditional updates guarded by a
// server-side predicate, sharded secondary-index queries, and the bulk
// scan/delete maintenance operations.
//
// Two backends implement the contract: store/dynamo (Amazon DynamoDB, the
// pattern's native target) and store/pebble (an embedded Pebble database
// that emulates conditional writes and the status index, for local use and
// tests).
package store
