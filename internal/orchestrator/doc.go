// Package orchestrator runs queued tasks through an agent.
//
// # Processing cycle
//
// A Dispatcher worker claims the oldest QUEUED task and then:
//
//	compose prompt → run agent → scrub → guard/resolve → format/validate → persist
//
// Prompts are composed by the supervisor registered for the configured root,
// using the project recorded at Submit or derived from the task's working
// directory. The agent runs under the project's effective timeout; transport
// failures are retried with exponential backoff up to MaxRetries, and a
// timeout becomes a BLOCKED result with reason TIMEOUT.
//
// The guard (see package guard) decides the persisted status. BLOCKED is
// never written: it becomes AWAITING_RESPONSE with a clarification question.
// Output that violates supervisor rules is logged and counted but does not
// fail the task.
//
// # Replies
//
// When a reply moves a task straight back to RUNNING, callers hand the id to
// Resume and the next free worker processes it before claiming new work.
package orchestrator
