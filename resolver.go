package twotier

// Operation is a cache operation about to run against a set of caches.
type Operation struct {
	// Name describes the operation in errors, e.g. "get user".
	Name string
	// Caches lists the base cache names the operation targets.
	Caches []string
	// Suffix is appended to every base name before lookup.
	Suffix string
}

func (op Operation) String() string { return op.Name }

// Resolver maps an Operation to the caches it should use.
type Resolver struct {
	reg *Registry
}

func NewResolver(reg *Registry) *Resolver { return &Resolver{reg: reg} }

// Resolve returns one Cache per name in op.Caches, in order. A name the
// registry cannot provide fails the whole call with a *ResolveError.
func (r *Resolver) Resolve(op Operation) ([]Cache, error) {
	out := make([]Cache, 0, len(op.Caches))
	for _, base := range op.Caches {
		name := base + op.Suffix
		c, err := r.reg.Cache(name)
		if err != nil {
			return nil, &ResolveError{Name: name, Op: op.String(), Err: err}
		}
		out = append(out, c)
	}
	return out, nil
}
