// Package event defines the typed events produced by classifying agent
// output lines, and the synchronous [Bus] that delivers them.
//
// # Event Kinds
//
//   - [ThinkingStart], [ThinkingComplete]: reasoning burst boundaries
//   - [ToolStart], [ToolComplete]: tool invocations and their outcome
//   - [ServiceStatus]: "<glyph> <target>: <narrative>" progress lines
//   - [RawNarrative]: everything else
//
// Events carry no wall-clock time. Consumers receive the observation time
// alongside each event, which keeps classification a pure function of the
// line text.
//
// # Delivery
//
// The [Bus] calls handlers synchronously on the publisher's goroutine.
// During a run only the output reader publishes, so the phase aggregator,
// target tracker and metrics see events strictly in line order without
// further locking.
//
//	bus := event.NewBus(logger)
//	bus.Subscribe(event.TypeServiceStatus, func(e event.Event) {
//	    st := e.(event.ServiceStatus)
//	    tracker.Observe(st, at)
//	})
//	bus.Publish(ev)
package event
