package dataflow

import "fmt"

// Dim describes the shape of a node value as rows x columns.
//
// Scalars use ScalarDim (1x1). Row vectors are 1xN. The dimension of a node
// is fixed at construction and is what derivation uses to build zero and one
// constants of the right shape before any value has been computed.
type Dim struct {
	Rows int
	Cols int
}

// ScalarDim is the dimension shared by all scalar-valued nodes.
var ScalarDim = Dim{Rows: 1, Cols: 1}

// String returns "RxC".
func (d Dim) String() string {
	return fmt.Sprintf("%dx%d", d.Rows, d.Cols)
}

// Element describes an element type a node can produce: scalar real, matrix,
// opaque model witness, and so on. The engine is polymorphic over elements;
// dependency type checking at construction compares Element descriptors
// instead of Go types.
//
// Implementations must be comparable values (typically empty structs) so that
// an Element can be used as part of a map key. Zero and One may return nil
// for elements that have no meaningful zero or one (for example opaque model
// witnesses); derivation reports an error when it needs a constant such an
// element cannot provide.
type Element interface {
	// Name identifies the element in error messages and operator kinds.
	Name() string

	// Accepts reports whether v is a value of this element type.
	Accepts(v any) bool

	// Equal reports whether two values of this element type are equal.
	// Used by parameter assignment to skip no-op invalidations.
	Equal(a, b any) bool

	// Zero returns the additive identity of the given dimension, or nil.
	Zero(dim Dim) any

	// One returns the multiplicative identity of the given dimension, or nil.
	One(dim Dim) any

	// IsZero reports whether v is the zero of this element type.
	IsZero(v any) bool

	// IsOne reports whether v is the one of this element type.
	IsOne(v any) bool
}

// DimensionedElement is implemented by elements whose values carry an
// intrinsic shape. Fits reports whether v conforms to dim; Constant,
// Parameter and SetValue reject values that do not fit the node dimension.
type DimensionedElement interface {
	Element
	Fits(v any, dim Dim) bool
}

// Float is the scalar real element. Values are float64.
var Float Element = floatElement{}

type floatElement struct{}

func (floatElement) Name() string { return "float" }

func (floatElement) Accepts(v any) bool {
	_, ok := v.(float64)
	return ok
}

func (floatElement) Equal(a, b any) bool {
	av, aok := a.(float64)
	bv, bok := b.(float64)
	return aok && bok && av == bv
}

func (floatElement) Zero(Dim) any { return float64(0) }
func (floatElement) One(Dim) any { return float64(1) }

func (floatElement) IsZero(v any) bool {
	f, ok := v.(float64)
	return ok && f == 0
}

func (floatElement) IsOne(v any) bool {
	f, ok := v.(float64)
	return ok && f == 1
}
