// Package security provides the authentication schemes that operations
// run during the dispatch pipeline's security stage.
//
// Each scheme inspects the request context for its own kind of
// credentials. A scheme that finds no credentials reports
// ErrNoCredentials, which the operation treats as "scheme did not
// match"; credentials that are present but invalid produce a
// status-bearing failure that aborts the pipeline.
package security
