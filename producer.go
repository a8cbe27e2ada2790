package logconf

// Producer supplies a value which may not exist yet when the producer is
// created.
type Producer interface {
	Object() any
}

type immediate struct {
	v any
}

func (p immediate) Object() any {
	return p.v
}

// Immediate wraps an already resolved value.
func Immediate(v any) Producer {
	return immediate{v: v}
}

// NullProducer produces nil.
var NullProducer Producer = immediate{}

type deferred struct {
	name   string
	lookup func(name string) (any, bool)
}

func (p deferred) Object() any {
	v, _ := p.lookup(p.name)
	return v
}

// Deferred looks name up again on every call to Object, so a replacement of
// the named object is picked up.  Object returns nil while the name is
// missing.
func Deferred(name string, lookup func(name string) (any, bool)) Producer {
	return deferred{name: name, lookup: lookup}
}
