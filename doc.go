// Package farmcode coordinates a fixed, ordered sequence of delivery phases,
// each executed by an external worker process. The coordinator drives
// progress using only externally observable evidence: a durable pointer
// record (where the workflow is) and a worker-written completion journal
// (what actually happened). Either side may crash at any time; on restart
// the control loop recovers from the pointer and journal alone, without
// double-dispatching work.
//
// Farmcode is designed as a library. Import it, configure a pointer store
// and a dispatch gateway, and track workflows:
//
//	c, err := farmcode.New(
//	    farmcode.WithLoop(loop),
//	    farmcode.WithWakeScanner(poller),
//	)
//	c.Track(ctx, workflowID)
//
// # Architecture
//
// Each subsystem lives in its own package: pointer (durable progress
// record), journal (worker-written outcome documents in a version
// controlled artifact store), gateway (worker capacity and job dispatch),
// signal (approval polling for await-phases), reconcile (the control
// loop), and projector (best-effort status labels). Pointer store backends
// live under store/.
//
// All entity IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based
// identifiers.
package farmcode
