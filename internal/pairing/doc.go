// Package pairing runs the pair, connect and unpair workflows for saved
// devices.
//
// The Executor performs one backend call and judges the result from the
// enumerator afterwards, never from the backend output. Attempt
// wraps it in a bounded retry loop. The Orchestrator turns display events
// and manual requests into per-device workflows, runs them in parallel and
// asks the registry for one refresh when a batch completes.
//
// Per device id, at most one workflow touches the backend at a time and the
// newest request wins. A request for the same workflow as the newest
// unfinished one joins it; any other request queues, and a queued request
// that has been overtaken by a newer one is dropped as superseded.
package pairing
