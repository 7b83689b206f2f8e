package domain

type unset struct{}

func (unset) String() string { return "<unset>" }

// Unset marks a declared parameter that the firing did not supply.
// Handlers compare against it (or use Params.Lookup) instead of expecting an error.
var Unset any = unset{}

// IsUnset reports whether v is the Unset sentinel.
func IsUnset(v any) bool {
	_, ok := v.(unset)
	return ok
}

// Params is the resolved parameter bundle passed to a handler.
// Every declared name is present; names the sender did not provide hold Unset.
type Params map[string]any

// NewParams builds a template with every name set to Unset.
func NewParams(names ...string) Params {
	p := make(Params, len(names))
	for _, n := range names {
		p[n] = Unset
	}
	return p
}

// Clone returns a shallow copy of the bundle.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Resolve copies the template and overwrites each declared name found in
// supplied. Names present in supplied but not declared are ignored.
func (p Params) Resolve(supplied map[string]any) Params {
	out := p.Clone()
	for name := range out {
		if v, ok := supplied[name]; ok {
			out[name] = v
		}
	}
	return out
}

// Lookup returns the value of name and whether it was supplied by the sender.
func (p Params) Lookup(name string) (any, bool) {
	v, ok := p[name]
	if !ok || IsUnset(v) {
		return nil, false
	}
	return v, true
}

// Names returns the declared parameter names (unordered).
func (p Params) Names() []string {
	names := make([]string, 0, len(p))
	for k := range p {
		names = append(names, k)
	}
	return names
}
