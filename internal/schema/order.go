package schema

import "sort"

// Order is a linear table sequence in which every referenced table precedes
// the tables that reference it, except inside foreign key cycles.
type Order struct {
	// Sequence lists tables dependencies first
	Sequence []string
	// Cyclic holds the tables Kahn's algorithm could not place. They are
	// appended to Sequence in name order and rely on deferred constraint checks.
	Cyclic []string
}

// Insert returns the order in which tables must be populated
func (o Order) Insert() []string {
	out := make([]string, len(o.Sequence))
	copy(out, o.Sequence)
	return out
}

// Truncate returns the order in which tables must be cleared: the exact reverse of Insert
func (o Order) Truncate() []string {
	out := make([]string, len(o.Sequence))
	for i, name := range o.Sequence {
		out[len(o.Sequence)-1-i] = name
	}
	return out
}

// HasCycles reports whether any foreign key cycle was found
func (o Order) HasCycles() bool {
	return len(o.Cyclic) > 0
}

// ResolveOrder sorts tables topologically over the foreign key edges using Kahn's
// algorithm. Self-references are ignored. Tables that take part in no foreign key
// are appended after the graph, and residual cycle members are appended in name
// order rather than failing. Ready tables are taken in name order so the result
// is deterministic.
func ResolveOrder(tables []string, edges []ForeignKey) Order {
	// dependsOn[x] is the set of tables x references; dependents[y] the tables referencing y
	dependsOn := make(map[string]map[string]bool)
	dependents := make(map[string]map[string]bool)
	involved := make(map[string]bool)

	for _, fk := range edges {
		if fk.Table == fk.ReferencedTable || fk.Table == "" || fk.ReferencedTable == "" {
			continue
		}
		involved[fk.Table] = true
		involved[fk.ReferencedTable] = true

		if dependsOn[fk.Table] == nil {
			dependsOn[fk.Table] = make(map[string]bool)
		}
		if dependents[fk.ReferencedTable] == nil {
			dependents[fk.ReferencedTable] = make(map[string]bool)
		}
		dependsOn[fk.Table][fk.ReferencedTable] = true
		dependents[fk.ReferencedTable][fk.Table] = true
	}

	inDegree := make(map[string]int, len(involved))
	var ready []string
	for name := range involved {
		inDegree[name] = len(dependsOn[name])
		if inDegree[name] == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	sequence := make([]string, 0, len(involved)+len(tables))
	placed := make(map[string]bool, len(involved))

	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		sequence = append(sequence, name)
		placed[name] = true

		var released []string
		for dependent := range dependents[name] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				released = append(released, dependent)
			}
		}
		if len(released) > 0 {
			ready = append(ready, released...)
			sort.Strings(ready)
		}
	}

	var cyclic []string
	for name := range involved {
		if !placed[name] {
			cyclic = append(cyclic, name)
		}
	}
	sort.Strings(cyclic)
	for _, name := range cyclic {
		sequence = append(sequence, name)
		placed[name] = true
	}

	independent := make([]string, 0)
	seen := make(map[string]bool)
	for _, name := range tables {
		if !placed[name] && !seen[name] {
			independent = append(independent, name)
			seen[name] = true
		}
	}
	sort.Strings(independent)
	sequence = append(sequence, independent...)

	return Order{Sequence: sequence, Cyclic: cyclic}
}

// ResolveSnapshotOrder resolves the order for every table of a snapshot
func ResolveSnapshotOrder(s *Snapshot) Order {
	return ResolveOrder(s.TableNames(), s.ForeignKeys())
}
