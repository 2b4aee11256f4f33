package relay

import (
	"encoding/json"
	"io"

	"gopkg.in/yaml.v3"
)

// RouteInfo describes one registered route for introspection and tooling.
type RouteInfo struct {
	Method  string         `json:"method" yaml:"method"`
	Pattern string         `json:"pattern" yaml:"pattern"`
	Params  []string       `json:"params,omitempty" yaml:"params,omitempty"`
	Deps    []string       `json:"deps,omitempty" yaml:"deps,omitempty"`
	Meta    map[string]any `json:"meta,omitempty" yaml:"meta,omitempty"`
}

// Routes returns the registered routes in registration order.
func (r *Router) Routes() []RouteInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]RouteInfo, len(r.routes))
	for i, rt := range r.routes {
		info := RouteInfo{
			Method:  rt.method,
			Pattern: rt.pattern,
			Deps:    rt.deps,
			Meta:    rt.meta,
		}
		for _, p := range rt.params {
			info.Params = append(info.Params, p.name)
		}
		infos[i] = info
	}
	return infos
}

// WriteRoutes writes the route table as indented JSON to w.
func (r *Router) WriteRoutes(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r.Routes())
}

// WriteRoutesYAML writes the route table as YAML to w.
func (r *Router) WriteRoutesYAML(w io.Writer) error {
	return yaml.NewEncoder(w).Encode(r.Routes())
}
