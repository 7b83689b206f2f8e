/*
Package journey is a reactive trigger/activity dispatch engine for building
node-graph automation.

Trigger sources (periodic clocks, plain triggers fired over HTTP or Redis)
publish events; activities subscribed to them receive the event parameters they
declared and run with a defined concurrency policy. A failing activity never
disturbs the source that fired it or the other subscribers: its failure is
delivered to the root of the owner tree the source belongs to.

# Concepts

  - Activity: a handler plus a lock. In drop mode a firing that arrives while
    the handler runs is discarded; in schedule mode it waits its turn (FIFO).
  - Trigger source: an ordered, duplicate-free set of activities that fires
    them all with one event.
  - Descriptor: a source declared once for a type of owner and realized lazily
    per owner object. Owners are tracked weakly.
  - Clock: a source that fires every period while running. Stop is cooperative.

# Usage

The Engine is the declarative entry point; the pkg/pubsub and pkg/clock
packages can be used directly for typed, per-object declarations.

	eng := journey.New(journey.WithLogger(logger))

	beat, _ := eng.AddClock("beat", clock.WithFrequency(2))
	eng.RegisterHandler("tick", func(ctx context.Context, call pubsub.Call) error {
		log.Println("tick from", call.Event.Senders[0])
		return nil
	})
	eng.Declare(journey.ActivityDecl{Trigger: "beat", Handler: "tick", Mode: domain.ModeDrop})

	<-beat.Start()
	defer eng.Stop(context.Background())
*/
package journey
