// Package smartsalud provides a durable appointment-confirmation workflow
// engine for healthcare messaging.
//
// Each workflow instance walks a patient through confirming an upcoming
// appointment: a reminder message, alternative slots if they cancel, an
// automated voice call if they go quiet, and finally escalation to human
// staff. The engine survives restarts: an instance suspended while waiting
// for a patient reply is plain persisted state, not a blocked goroutine.
//
// # Core Concepts
//
//  1. Engine
//  2. Catalogue
//  3. Collaborators
//  4. Worker
//  5. LocalRunner
//
// # Engine
//
// The Engine owns workflow instances end to end. It provides APIs to:
//   - start confirmation workflows
//   - deliver external events (patient replies, voice-call outcomes,
//     timeouts) to waiting instances
//   - classify free-text patient replies and route them to the right
//     instance
//   - cancel, resume and recover instances
//
// Engines can be backed by different storage systems:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite (embedded durability)
//   - Badger (embedded key-value durability)
//   - Redis
//
// All operations on a single instance are serialized, so an event arriving
// while a step is executing waits its turn instead of racing it.
//
// # Catalogue
//
// The Catalogue is the fixed, ordered list of steps every confirmation
// workflow walks through, together with each step's retry budget, backoff
// and timeout. DefaultCatalogue returns the standard eight-step process;
// custom catalogues can tune the timing without changing the engine.
//
// # Collaborators
//
// Collaborators are the external services the steps talk to: the outbound
// message channel, the alternative-slot source, the calendar, and the voice
// channel. They are plain interfaces; tests substitute fakes, production
// wires vendor clients.
//
// # Worker
//
// A Worker pulls tasks from a queue and executes them against an Engine:
// starting workflows and delivering events. Delayed tasks (NotBefore) are
// how reminders are scheduled ahead of time and how waiting instances get a
// TIMEOUT nudge when the patient never answers.
//
// # LocalRunner
//
// LocalRunner bundles an in-memory engine, queue, and worker into a single
// process-local helper for development and unit testing. It is intentionally
// not crash-durable; NewSQLiteBundle is the durable equivalent.
//
// For examples, see the /examples directory.
package smartsalud
