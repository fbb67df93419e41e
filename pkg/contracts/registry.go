package contracts

import (
	"errors"
	"fmt"
)

var (
	// ErrContractNotFound is returned when a dataset name is not registered
	ErrContractNotFound = errors.New("contract not found")
	// ErrDuplicateContract is returned when two contracts share a name
	ErrDuplicateContract = errors.New("duplicate contract")
)

// Dataset names of the built-in registry
const (
	Pays   = "pays"
	Taps   = "taps"
	Prints = "prints"
)

// Registry holds the contracts of a run, in declaration order. It is read-only once built.
type Registry struct {
	order  []string
	byName map[string]Contract
}

// NewRegistry validates and registers the given contracts
func NewRegistry(contracts ...Contract) (*Registry, error) {
	r := &Registry{
		order:  make([]string, 0, len(contracts)),
		byName: make(map[string]Contract, len(contracts)),
	}

	for i := range contracts {
		c := contracts[i]
		if err := c.Validate(); err != nil {
			return nil, err
		}

		if _, exists := r.byName[c.Name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateContract, c.Name)
		}

		r.order = append(r.order, c.Name)
		r.byName[c.Name] = c.clone()
	}

	return r, nil
}

// Get returns a copy of the named contract
func (r *Registry) Get(name string) (Contract, error) {
	c, ok := r.byName[name]
	if !ok {
		return Contract{}, fmt.Errorf("%w: %s", ErrContractNotFound, name)
	}

	return c.clone(), nil
}

// All returns copies of every contract in declaration order
func (r *Registry) All() []Contract {
	out := make([]Contract, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name].clone())
	}

	return out
}

// Names returns the registered dataset names in declaration order
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Len returns the number of registered contracts
func (r *Registry) Len() int {
	return len(r.order)
}

// EventFlatColumns is the flat shape shared by the taps and prints event logs
func EventFlatColumns() []string {
	return []string{"day", "position", "value_prop", "user_id"}
}

// Defaults returns the built-in contracts with locations resolved against rawDir
func Defaults(rawDir string) []Contract {
	eventSchema := []Column{
		{Name: "day", Type: TypeDate},
		{Name: "event_data", Type: TypeNested},
		{Name: "user_id", Type: TypeInteger},
	}

	return []Contract{
		{
			Name:     Pays,
			Kind:     KindTabular,
			Location: ResolveLocation(rawDir, "pays.csv"),
			Schema: []Column{
				{Name: "pay_date", Type: TypeDate},
				{Name: "total", Type: TypeFloat},
				{Name: "user_id", Type: TypeInteger},
				{Name: "value_prop", Type: TypeString},
			},
			AllowNewColumns: true,
		},
		{
			Name:            Taps,
			Kind:            KindEvent,
			Location:        ResolveLocation(rawDir, "taps.json"),
			Schema:          append([]Column(nil), eventSchema...),
			FlatColumns:     EventFlatColumns(),
			AllowNewColumns: true,
		},
		{
			Name:            Prints,
			Kind:            KindEvent,
			Location:        ResolveLocation(rawDir, "prints.json"),
			Schema:          append([]Column(nil), eventSchema...),
			FlatColumns:     EventFlatColumns(),
			AllowNewColumns: true,
		},
	}
}

// Default builds the built-in registry rooted at rawDir
func Default(rawDir string) *Registry {
	r, err := NewRegistry(Defaults(rawDir)...)
	if err != nil {
		// The built-in contracts are static; failing here is a programming error.
		panic(err)
	}

	return r
}
