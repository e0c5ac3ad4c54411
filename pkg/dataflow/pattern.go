package dataflow

// patternKind selects one of the three dependency shapes an operator can
// declare.
type patternKind int

const (
	functionPattern  patternKind = iota // fixed arity, per-slot element
	reductionPattern                    // any arity, single element
	arrayPattern                        // fixed arity, single element
)

// Pattern is the dynamic descriptor of an operator's dependency vector. It
// replaces compile-time tuple deduction: every node checks its dependencies
// against its operator's pattern at construction, so downcasts of dependency
// values inside compute functions are safe afterwards.
//
// Three shapes exist:
//   - FunctionOf(e0, e1, ...): exactly len(e) dependencies, slot i must
//     produce element e[i].
//   - ReductionOf(e): any number (including zero) of dependencies of
//     element e.
//   - ArrayOf(e, n): exactly n dependencies of element e.
type Pattern struct {
	kind  patternKind
	slots []Element // functionPattern: one per slot
	elem  Element   // reduction/array element
	n     int       // arrayPattern arity
}

// FunctionOf returns the pattern of a fixed-arity heterogeneous operator.
func FunctionOf(slots ...Element) Pattern {
	return Pattern{kind: functionPattern, slots: slots}
}

// ReductionOf returns the pattern of a variadic homogeneous operator.
func ReductionOf(e Element) Pattern {
	return Pattern{kind: reductionPattern, elem: e}
}

// ArrayOf returns the pattern of a fixed-arity homogeneous operator.
func ArrayOf(e Element, n int) Pattern {
	return Pattern{kind: arrayPattern, elem: e, n: n}
}

// check validates deps against the pattern on behalf of a node of the given
// kind. Errors are fatal construction errors naming the kind and the
// offending dependency index.
func (p Pattern) check(kind Kind, deps []*Node) error {
	switch p.kind {
	case functionPattern:
		if len(deps) != len(p.slots) {
			return newConstructionError(kind, -1, "expected %d dependencies, got %d", len(p.slots), len(deps))
		}
	case arrayPattern:
		if len(deps) != p.n {
			return newConstructionError(kind, -1, "expected %d dependencies, got %d", p.n, len(deps))
		}
	}
	for i, d := range deps {
		if d == nil {
			return newConstructionError(kind, i, "nil dependency")
		}
		want := p.elem
		if p.kind == functionPattern {
			want = p.slots[i]
		}
		if d.elem != want {
			return newConstructionError(kind, i, "expected element %s, got %s (node %s)",
				want.Name(), d.elem.Name(), d.kind)
		}
	}
	return nil
}
