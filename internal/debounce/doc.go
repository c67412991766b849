// Package debounce coalesces bursts of inbound messages per conversation
// into batches for a slow processor without ever dropping a message.
//
// Every message is first appended to a durable store.BufferStore. The first
// message of an idle conversation registers a Handle and schedules a one-shot
// timer; later messages only append. When the quiet period elapses the timer
// drains the buffer, hands the batch to the Processor and then checks the
// buffer again: anything that arrived while the batch was being processed is
// picked up by a follow-up cycle that keeps the chain's original start time.
//
// Cycle lifecycle:
//
//	Scheduled → Running → Draining → Invoking → Completed
//	                                   │             │
//	                    (empty drain) ─┘             ├─ buffer empty → released
//	                                                 └─ buffer pending → Scheduled (same OriginalStart)
package debounce
