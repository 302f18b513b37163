// Package router maps incoming requests to registered operations.
//
// Operations are registered from OperationSpec values and compiled into
// matchers ahead of serving. Resolution picks the highest-priority match:
// exact paths beat templated paths, and header-restricted registrations
// beat unrestricted ones. The compiled operation carries the controller,
// the security schemes evaluated before it, and an optional response
// contract checked after it.
package router
