// Package audit defines the audit event model and the sink
// implementations shipped with the engine.
//
// The event vocabulary itself (event type strings, emission points) is
// owned by the root package; this package only carries the transport
// pieces so sinks can be implemented without importing the engine.
package audit
