// Package dispatch implements the single-request pipeline that turns an
// incoming HTTP request into an HTTP response.
//
// A request flows through a fixed sequence of stages: route resolution,
// operation wiring check, request context construction, authentication,
// plugin pre-controller hooks, parameter and body extraction, controller
// invocation, response validation, and response materialization. Every
// stage after context construction is gated on the response not having
// been finished by an earlier stage, so a plugin that writes a response
// directly short-circuits the rest of the pipeline.
//
// All stage failures bubble unchanged to the dispatcher, which applies a
// single error policy: failures carrying an HTTP status are converted to
// JSON responses when auto-handling is enabled, everything else is
// returned to the caller untouched.
package dispatch
