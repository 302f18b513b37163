package router

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vyrodovalexey/apidispatch/internal/util"
)

// Match priorities. Exact paths always win over templated ones; among
// templated paths, more literal segments win.
const (
	priorityExact     = 1000
	priorityTemplated = 500
	priorityPerHeader = 10
)

// templateParamPattern matches one {name} path template parameter.
var templateParamPattern = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// pathMatcher matches a request path and extracts template parameters.
type pathMatcher interface {
	Match(path string) (bool, map[string]string)
	Priority() int
}

// exactPathMatcher matches paths exactly.
type exactPathMatcher struct {
	path string
}

func (m *exactPathMatcher) Match(path string) (bool, map[string]string) {
	return path == m.path, nil
}

func (m *exactPathMatcher) Priority() int {
	return priorityExact
}

// templatePathMatcher matches templated paths such as /users/{id},
// capturing each parameter as one path segment.
type templatePathMatcher struct {
	regex    *regexp.Regexp
	names    []string
	priority int
}

func (m *templatePathMatcher) Match(path string) (bool, map[string]string) {
	matches := m.regex.FindStringSubmatch(path)
	if matches == nil {
		return false, nil
	}

	params := make(map[string]string, len(m.names))
	for i, name := range m.names {
		if name != "" && i < len(matches) {
			params[name] = matches[i]
		}
	}
	return true, params
}

func (m *templatePathMatcher) Priority() int {
	return m.priority
}

// compilePathMatcher builds the matcher for a registered path. Paths
// without template parameters get an exact matcher.
func compilePathMatcher(path string) (pathMatcher, error) {
	if path == "" || path[0] != '/' {
		return nil, util.NewConfigError("router.path", fmt.Sprintf("path %q must start with /", path))
	}

	if !strings.Contains(path, "{") {
		return &exactPathMatcher{path: path}, nil
	}

	var pattern strings.Builder
	pattern.WriteString("^")

	literals := 0
	rest := path
	for rest != "" {
		loc := templateParamPattern.FindStringSubmatchIndex(rest)
		if loc == nil {
			pattern.WriteString(regexp.QuoteMeta(rest))
			literals += len(rest)
			break
		}
		pattern.WriteString(regexp.QuoteMeta(rest[:loc[0]]))
		literals += loc[0]
		pattern.WriteString("(?P<" + rest[loc[2]:loc[3]] + ">[^/]+)")
		rest = rest[loc[1]:]
	}
	pattern.WriteString("$")

	regex, err := regexp.Compile(pattern.String())
	if err != nil {
		return nil, util.NewConfigError("router.path", fmt.Sprintf("path %q: %v", path, err))
	}

	return &templatePathMatcher{
		regex:    regex,
		names:    regex.SubexpNames(),
		priority: priorityTemplated + literals,
	}, nil
}

// headerMatcher requires one request header to carry an exact value.
// Header names are compared case-insensitively.
type headerMatcher struct {
	name  string
	value string
}

func (m *headerMatcher) Match(value string) bool {
	return value == m.value
}
