// Package poller implements the price poller.
//
// The poller:
//   - Resolves the symbol universe each cycle (configured file ∪ alert symbols)
//   - Fetches quotes concurrently with bounded in-flight requests
//   - Writes into the price cache before triggering alert evaluation
//   - Backs a persistently failing symbol off exponentially without
//     blocking the others
package poller
