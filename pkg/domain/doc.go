/*
Package domain contains the core vocabulary of the Journey dispatch engine.

It defines what flows between trigger sources and activities, and the contracts
an owning object must satisfy. The package is pure: no I/O, no scheduling, no
third-party dependencies, so every other package can share it.

# Key Entities

  - Mode: concurrency policy of an activity (Drop or Schedule).
  - Params: the named parameter bundle handed to a handler, pre-filled with Unset.
  - Event: a single firing of a trigger source (senders + sender parameters).
  - Receiver: the dispatch context, either WithInstance(owner) or Standalone().
  - Owner / ExceptionHandler: the collaborator chain that receives handler failures.
  - LifecycleHooks: observability callbacks emitted by the dispatch core.
*/
package domain
