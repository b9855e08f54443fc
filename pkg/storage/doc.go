// Package storage backs the "/api/flow" CRUD surface pkg/server exposes
// (spec §6's save/load/list/delete, the Go equivalent of the source's
// app/main.py db.create_flow/get_flow/list_flows/delete_flow), plus a
// record of how often each stored flow has actually been run.
//
// # Usage
//
//	store := storage.NewInMemoryStore()
//
//	id, err := store.Save("my-flow", "", flowData)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	flow, err := store.Load(id)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// pkg/server.handleRun calls this when a run of id is requested, before it starts.
//	if err := store.RecordRun(id); err != nil {
//	    log.Fatal(err)
//	}
//
//	flows := store.List() // each FlowSummary carries RunCount/LastRunAt
//
// # Security Considerations
//
// The in-memory store is suitable for development and single-process
// deployments. It does not persist across restarts; swap in a database-backed
// Store implementation for durability.
package storage
