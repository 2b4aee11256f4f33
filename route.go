package relay

import (
	"fmt"
	"regexp"
	"strings"
)

// paramKind distinguishes single-segment captures from wildcard captures.
type paramKind int

const (
	paramSegment  paramKind = iota // :name — one path segment, no '/'
	paramWildcard                  // {name:path} — remainder of the path
)

// routeParam is one named capture in a compiled path template, in
// declaration order.
type routeParam struct {
	name string
	kind paramKind
}

// route is a registered (method, pattern) binding. Immutable once the
// router is frozen; read concurrently without synchronization.
type route struct {
	method  string
	pattern string
	re      *regexp.Regexp
	params  []routeParam
	handler Handler
	deps    []string
	meta    map[string]any
}

// RouteOption configures a route at registration time.
type RouteOption func(*route)

// WithDeps names the providers resolved into the request's scope before the
// handler runs. Resolved values are available via Ctx.Dep.
func WithDeps(names ...string) RouteOption {
	return func(rt *route) {
		rt.deps = append(rt.deps, names...)
	}
}

// WithMeta attaches a metadata key/value to the route. Metadata is carried
// on the Match and surfaced by Router.Routes.
func WithMeta(key string, value any) RouteOption {
	return func(rt *route) {
		if rt.meta == nil {
			rt.meta = make(map[string]any)
		}
		rt.meta[key] = value
	}
}

var wildcardSegment = regexp.MustCompile(`^\{([A-Za-z_][A-Za-z0-9_]*):path\}$`)

// compilePattern turns a path template into an anchored regexp plus the
// ordered list of captured parameter names. Literal segments match verbatim,
// ":name" captures one segment, "{name:path}" greedily captures the
// remainder of the path including embedded separators.
func compilePattern(pattern string) (*regexp.Regexp, []routeParam, error) {
	if !strings.HasPrefix(pattern, "/") {
		return nil, nil, fmt.Errorf("pattern %q must start with '/'", pattern)
	}

	var (
		params []routeParam
		expr   strings.Builder
	)
	expr.WriteString("^")

	segments := strings.Split(pattern, "/")
	for i, seg := range segments[1:] {
		expr.WriteString("/")
		switch {
		case strings.HasPrefix(seg, ":"):
			name := seg[1:]
			if name == "" {
				return nil, nil, fmt.Errorf("pattern %q: empty parameter name", pattern)
			}
			params = append(params, routeParam{name: name, kind: paramSegment})
			expr.WriteString("([^/]+)")
		case wildcardSegment.MatchString(seg):
			name := wildcardSegment.FindStringSubmatch(seg)[1]
			if i != len(segments)-2 {
				return nil, nil, fmt.Errorf("pattern %q: wildcard %q must be the final segment", pattern, seg)
			}
			params = append(params, routeParam{name: name, kind: paramWildcard})
			expr.WriteString("(.+)")
		default:
			expr.WriteString(regexp.QuoteMeta(seg))
		}
	}
	expr.WriteString("$")

	re, err := regexp.Compile(expr.String())
	if err != nil {
		return nil, nil, fmt.Errorf("pattern %q: %w", pattern, err)
	}
	return re, params, nil
}

// match reports whether path matches the compiled pattern, returning the
// captured parameters on success.
func (rt *route) match(path string) (PathParams, bool) {
	m := rt.re.FindStringSubmatch(path)
	if m == nil {
		return PathParams{}, false
	}
	p := PathParams{
		names: make([]string, len(rt.params)),
		vals:  make(map[string]string, len(rt.params)),
	}
	for i, rp := range rt.params {
		p.names[i] = rp.name
		p.vals[rp.name] = m[i+1]
	}
	return p, true
}

// PathParams holds captured path parameters. Names preserves the declaration
// order of the path template.
type PathParams struct {
	names []string
	vals  map[string]string
}

// Get returns the captured value for name, or "" if absent.
func (p PathParams) Get(name string) string { return p.vals[name] }

// Lookup returns the captured value for name and whether it was captured.
func (p PathParams) Lookup(name string) (string, bool) {
	v, ok := p.vals[name]
	return v, ok
}

// Names returns the parameter names in declaration order.
func (p PathParams) Names() []string { return p.names }

// Len returns the number of captured parameters.
func (p PathParams) Len() int { return len(p.names) }
