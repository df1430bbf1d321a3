// Package feed provides the batch scheduling and emission engine for batchfeed.
//
// # Reading Guide
//
// Start with these files to understand a run:
//   - policy.go: arrival policies (constant, random range, increasing) and their state
//   - scheduler.go: the tick loop (wait, size, log, sample, emit)
//   - emitter.go: the exclusive-create artifact writer consumed downstream
//
// # Architecture
//
// The feed package owns the decision logic; collaborators live in sub-packages:
//   - feed/tracker/: the append-only JSON-lines run log
//   - feed/dataset/: sample loaders (CIFAR-10 binary, synthetic)
//   - feed/workspace/: the pre-run reset of output, log and archive paths
//   - feed/watch/: a directory watcher that checks the consumer file contract
//   - feed/metrics/: prometheus counters for emitted batches
//
// A run is strictly sequential: each tick appends its tracker record before
// its artifact is written, so a crash between the two leaves a logged tick
// with no artifact. Reconcile reports that window after the fact.
package feed
