// Package updates implements the update channel a driver exposes while a
// flow runs: a stream of Update values carrying either a node's completion
// record or a lifecycle narration string.
//
// Updates are delivered through a Manager in strict evaluation order: a
// single run's updates are never reordered or interleaved across observers,
// even though multiple observers may be registered. This is a deliberate
// departure from a fire-and-forget, goroutine-per-event dispatcher — ordering
// is part of the channel's contract, not an implementation detail.
//
//	mgr := updates.NewManager()
//	mgr.Register(updates.NewConsoleObserver())
//	mgr.Notify(ctx, updates.Narration("Starting process."))
//	mgr.Notify(ctx, updates.NodeUpdate(runID, flowID, nodeID, "operator.add", d, result))
package updates
