package core

// Table is a total function over the state space, stored as its image of
// every class in index order.
type Table [NumClasses]Class

// IdentityTable returns the table mapping every class to itself.
func IdentityTable() Table {
	var t Table
	for i := range t {
		t[i] = Class(i)
	}
	return t
}

// GeneratorTable returns the table of g^power.
func GeneratorTable(g Generator, power int) Table {
	return loadTables().transforms[g][ReducePower(g, power)]
}

// TableOf tabulates fn over every class.
func TableOf(fn func(Class) Class) Table {
	var t Table
	for i := range t {
		t[i] = fn(Class(i))
	}
	return t
}

// Apply looks up the image of c.
func (t *Table) Apply(c Class) Class {
	return t[c]
}

// Then returns the table of t followed by u.
func (t Table) Then(u Table) Table {
	var out Table
	for i, c := range t {
		out[i] = u[c]
	}
	return out
}

// IsIdentity reports whether t maps every class to itself.
func (t Table) IsIdentity() bool {
	for i, c := range t {
		if int(c) != i {
			return false
		}
	}
	return true
}

// IsPermutation reports whether t is a bijection.
func (t Table) IsPermutation() bool {
	var seen [NumClasses]bool
	for _, c := range t {
		if !c.Valid() || seen[c] {
			return false
		}
		seen[c] = true
	}
	return true
}

// Valid reports whether every image lies inside the state space.
func (t Table) Valid() bool {
	for _, c := range t {
		if !c.Valid() {
			return false
		}
	}
	return true
}

// MatchGenerator reports whether t equals a single non-trivial generator
// power g^p. R, D and T are tried before M.
func MatchGenerator(t Table) (Generator, int, bool) {
	ts := loadTables()
	for _, g := range Generators {
		for p := 1; p < g.Order(); p++ {
			if ts.transforms[g][p] == t {
				return g, p, true
			}
		}
	}
	return 0, 0, false
}
