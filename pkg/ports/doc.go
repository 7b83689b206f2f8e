/*
Package ports defines the driven ports (interfaces) of the Journey engine.

These interfaces decouple the dispatch core from the runtime it executes on and
from the adapters that feed it events.

# Key Interfaces

  - Scheduler: where tasks run and how they suspend (wall clock or virtual time).
  - Dispatcher: fires named trigger sources; consumed by the HTTP and Redis adapters.
*/
package ports
