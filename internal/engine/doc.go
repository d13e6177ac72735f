// Package engine plans and executes simulation jobs. It expands the
// scenario collection into one job per (scenario, leak config) pair,
// admits jobs against a shared memory budget, and walks each job through
// its lifecycle while updating the store.
package engine
