// Package plugin provides the pipeline extensions shipped with the
// dispatcher: request ID propagation, access logging, and rate
// limiting.
//
// Each plugin implements dispatch.Plugin and the hook interfaces it
// needs. Plugins run strictly in configured order; a plugin that
// finishes the response short-circuits the rest of the pipeline.
package plugin
