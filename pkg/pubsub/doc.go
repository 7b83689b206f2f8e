/*
Package pubsub is the trigger/activity dispatch core of Journey.

A trigger source (Registry, or anything implementing Source) keeps an ordered
set of subscribed activities. Firing a source starts every subscriber, in
subscription order, on the injected scheduler. Each Activity wraps one handler
and owns a weight-1 lock: in ModeDrop a firing that finds the lock held is
discarded, in ModeSchedule it queues behind the running invocation.

Descriptor is the class-level form of a trigger: activities declared on it
before any owner exists are copied into every per-owner binding created later
by Get, and additions made afterwards are broadcast to the bindings that already
exist. Bindings hold only weak references to their owners.

Handler failures never escape to the trigger source when an owner exists: they
are delivered to Owner.Root().HandleException. Without an owner (Standalone) the
failure is logged and returned to the caller.
*/
package pubsub
