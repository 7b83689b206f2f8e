// Package clock provides the periodic trigger source.
//
// A clock is declared once per owner type with Declare and realized lazily per
// owner with Static.Of, or created directly with NewDynamic. While running, an
// Instance sleeps for its period on the injected scheduler and then fires every
// subscribed activity with the clock as sole sender, an empty parameter bundle
// and its owner as instance context.
//
// Stop is cooperative: the sleep in progress is not interrupted and activities
// already running are left to finish, but the next firing never happens.
package clock
