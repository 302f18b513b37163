package router

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/vyrodovalexey/apidispatch/internal/dispatch"
	"github.com/vyrodovalexey/apidispatch/internal/observability"
	"github.com/vyrodovalexey/apidispatch/internal/util"
)

// Router registers operations and resolves requests against them. It
// implements dispatch.Resolver. Registration and resolution are safe
// for concurrent use.
type Router struct {
	mu         sync.RWMutex
	operations []*routedOperation
	api        any
	logger     observability.Logger
}

// routedOperation pairs a compiled operation with its routing key.
type routedOperation struct {
	method string
	path   string
	op     *compiledOperation
}

// Option is a functional option for the router.
type Option func(*Router)

// WithAPI sets the API description object attached to every resolution.
func WithAPI(api any) Option {
	return func(r *Router) {
		r.api = api
	}
}

// WithRouterLogger sets the logger.
func WithRouterLogger(logger observability.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

// New creates an empty router.
func New(opts ...Option) *Router {
	r := &Router{
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register compiles and adds one operation. Registering the same
// method, path, and header restrictions twice is a configuration
// error.
func (r *Router) Register(spec OperationSpec) error {
	op, err := compileOperation(spec)
	if err != nil {
		return err
	}

	method := strings.ToUpper(spec.Method)

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.operations {
		if existing.method == method && existing.path == spec.Path && sameHeaders(existing.op.headers, op.headers) {
			return util.NewConfigError("router.operation",
				fmt.Sprintf("duplicate registration for %s %s", method, spec.Path))
		}
	}

	r.operations = append(r.operations, &routedOperation{
		method: method,
		path:   spec.Path,
		op:     op,
	})
	sort.SliceStable(r.operations, func(i, j int) bool {
		return r.operations[i].op.priority > r.operations[j].op.priority
	})

	r.logger.Debug("operation registered",
		observability.String("operation", spec.ID),
		observability.String("method", method),
		observability.String("path", spec.Path),
	)
	return nil
}

// MustRegister registers a batch of operations and panics on the first
// failure. Intended for static wiring at startup.
func (r *Router) MustRegister(specs ...OperationSpec) {
	for _, spec := range specs {
		if err := r.Register(spec); err != nil {
			panic(err)
		}
	}
}

// Resolve implements dispatch.Resolver. It returns nil when no
// registered operation matches.
func (r *Router) Resolve(method, path string, headers http.Header) *dispatch.Resolved {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, routed := range r.operations {
		if !strings.EqualFold(method, routed.method) {
			continue
		}

		matched, params := routed.op.path.Match(path)
		if !matched {
			continue
		}

		if !matchHeaders(routed.op.headers, headers) {
			continue
		}

		return &dispatch.Resolved{
			API:        r.api,
			Operation:  routed.op,
			PathParams: params,
		}
	}

	return nil
}

// Operations returns the IDs of all registered operations in priority
// order.
func (r *Router) Operations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.operations))
	for _, routed := range r.operations {
		ids = append(ids, routed.op.id)
	}
	return ids
}

func matchHeaders(matchers []headerMatcher, headers http.Header) bool {
	for _, m := range matchers {
		if !m.Match(headers.Get(m.name)) {
			return false
		}
	}
	return true
}

func sameHeaders(a, b []headerMatcher) bool {
	if len(a) != len(b) {
		return false
	}
	want := make(map[string]string, len(a))
	for _, m := range a {
		want[strings.ToLower(m.name)] = m.value
	}
	for _, m := range b {
		if value, ok := want[strings.ToLower(m.name)]; !ok || value != m.value {
			return false
		}
	}
	return true
}

// Compile-time interface assertion.
var _ dispatch.Resolver = (*Router)(nil)
