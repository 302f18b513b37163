package dispatch

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/vyrodovalexey/apidispatch/internal/util"
)

// defaultMaxBodyBytes caps how much of a request body the context will
// buffer during extraction.
const defaultMaxBodyBytes = 10 << 20

// ResponseState is the mutable outgoing response half of a request
// context. Plugins and controllers mutate it; the materializer reads it.
type ResponseState struct {
	statusCode int
	headers    http.Header
	body       any
	bodySet    bool
}

// StatusCode returns the response status code.
func (r *ResponseState) StatusCode() int {
	return r.statusCode
}

// SetStatus sets the response status code.
func (r *ResponseState) SetStatus(code int) {
	r.statusCode = code
}

// SetHeader sets a response header.
func (r *ResponseState) SetHeader(key, value string) {
	r.headers.Set(key, value)
}

// Header returns the first value of a response header.
func (r *ResponseState) Header(key string) string {
	return r.headers.Get(key)
}

// Headers returns the underlying header map.
func (r *ResponseState) Headers() http.Header {
	return r.headers
}

// SetBody sets the response body candidate. The value is interpreted by
// the materializer at the end of the pipeline.
func (r *ResponseState) SetBody(body any) {
	r.body = body
	r.bodySet = true
}

// Body returns the response body candidate and whether one was set.
func (r *ResponseState) Body() (any, bool) {
	return r.body, r.bodySet
}

// Params holds the parsed request parameters.
type Params struct {
	Path   map[string]string
	Query  url.Values
	Header http.Header
}

// RequestContext is the per-request mutable state threaded through every
// pipeline stage. It is owned exclusively by one request's pipeline and
// must not be shared across requests.
type RequestContext struct {
	Req        *http.Request
	API        any
	Operation  Operation
	PathParams map[string]string

	// Security holds the raw authentication result; User is the
	// convenience principal set when exactly one scheme matched.
	Security SecurityResult
	User     any

	res          *ResponseState
	writer       *util.StatusCapturingResponseWriter
	params       *Params
	body         any
	bodyParsed   bool
	finished     bool
	maxBodyBytes int64
}

// NewRequestContext builds a fresh request context bound to the resolved
// operation and the raw request/response handles. The writer may be nil
// when the caller renders the returned Result itself.
func NewRequestContext(w http.ResponseWriter, r *http.Request, resolved *Resolved) *RequestContext {
	rc := &RequestContext{
		Req:          r,
		maxBodyBytes: defaultMaxBodyBytes,
		res: &ResponseState{
			statusCode: http.StatusOK,
			headers:    make(http.Header),
		},
	}

	if resolved != nil {
		rc.API = resolved.API
		rc.Operation = resolved.Operation
		rc.PathParams = resolved.PathParams
	}

	if w != nil {
		if sc, ok := w.(*util.StatusCapturingResponseWriter); ok {
			rc.writer = sc
		} else {
			rc.writer = util.NewStatusCapturingResponseWriter(w)
		}
	}

	return rc
}

// Response returns the mutable response state.
func (rc *RequestContext) Response() *ResponseState {
	return rc.res
}

// Writer returns the underlying response writer, or nil when the pipeline
// runs detached from a transport. Writing to it marks the response
// finished for the remaining stages.
func (rc *RequestContext) Writer() http.ResponseWriter {
	if rc.writer == nil {
		return nil
	}
	return rc.writer
}

// Finish marks the response as finished. Subsequent gated stages are
// skipped for this request.
func (rc *RequestContext) Finish() {
	rc.finished = true
}

// ResponseFinished reports whether the response has been finished, either
// explicitly or by writing to the underlying transport.
func (rc *RequestContext) ResponseFinished() bool {
	if rc.finished {
		return true
	}
	return rc.HeadersSent()
}

// HeadersSent reports whether the underlying transport has already
// written response headers.
func (rc *RequestContext) HeadersSent() bool {
	return rc.writer != nil && rc.writer.HeaderWritten
}

// GetParams parses and caches the request parameters: captured path
// parameters, the query string, and request headers.
func (rc *RequestContext) GetParams(ctx context.Context) (*Params, error) {
	if rc.params != nil {
		return rc.params, nil
	}

	query, err := url.ParseQuery(rc.Req.URL.RawQuery)
	if err != nil {
		return nil, util.NewValidationError(http.StatusBadRequest, util.ValidationIssue{
			Location: "query",
			Message:  "malformed query string",
		})
	}

	path := rc.PathParams
	if path == nil {
		path = map[string]string{}
	}

	rc.params = &Params{
		Path:   path,
		Query:  query,
		Header: rc.Req.Header,
	}
	return rc.params, nil
}

// GetBody reads and caches the request body. JSON payloads are decoded
// into their structured form; anything else is returned as raw bytes. An
// absent body yields nil.
func (rc *RequestContext) GetBody(ctx context.Context) (any, error) {
	if rc.bodyParsed {
		return rc.body, nil
	}

	if rc.Req.Body == nil {
		rc.bodyParsed = true
		return nil, nil
	}

	raw, err := io.ReadAll(io.LimitReader(rc.Req.Body, rc.maxBodyBytes))
	if err != nil {
		return nil, util.NewStatusErrorWithCause(http.StatusBadRequest, "failed to read request body", err)
	}

	if len(raw) == 0 {
		rc.bodyParsed = true
		return nil, nil
	}

	if isJSONContentType(rc.Req.Header.Get("Content-Type")) {
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, util.NewValidationError(http.StatusBadRequest, util.ValidationIssue{
				Location: "body",
				Message:  "invalid JSON payload",
			})
		}
		rc.body = decoded
	} else {
		rc.body = raw
	}

	rc.bodyParsed = true
	return rc.body, nil
}

// responseView builds the validation view of the response: the status and
// lower-cased headers from the response state plus the body candidate
// that will be materialized.
func (rc *RequestContext) responseView(controllerResult any) ResponseView {
	candidate, ok := rc.res.Body()
	if !ok {
		candidate = controllerResult
	}

	return ResponseView{
		Status:        rc.res.StatusCode(),
		Headers:       lowercaseHeaders(rc.res.Headers()),
		BodyCandidate: candidate,
	}
}

// isJSONContentType reports whether a Content-Type denotes JSON,
// including +json suffixed media types.
func isJSONContentType(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// lowercaseHeaders flattens an http.Header into a map with lower-cased
// keys, joining repeated values.
func lowercaseHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[strings.ToLower(k)] = strings.Join(v, ", ")
	}
	return out
}
