// Package state provides the observable building blocks used by the
// repository layer.
//
//   - Cell: a nullable value with change notification. The current value is
//     always readable without blocking.
//   - WeakContainer: a key to Cell registry that holds cells weakly, so its
//     footprint follows the number of cells somebody is still observing.
//   - LazyCell: a Cell whose value is computed on first observation, with
//     RequestBatch to compute many of them inside one shared operation such
//     as a database transaction.
//
// All types are safe for concurrent use. Subscriber callbacks run on the
// goroutine that changed the value and must not write to the same cell.
package state
