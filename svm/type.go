// Package svm names the support vector machine variants an alternate
// classifier backend can be configured with.
package svm

import "strconv"

// Type identifies an SVM formulation. The zero value is CSVC.
type Type int

const (
	// CSVC is C-support vector classification with C > 0 as the
	// regularization parameter.
	CSVC Type = iota
	// NuSVC is nu-support vector classification, nu bounding the fraction of
	// training errors and support vectors.
	NuSVC
	// OneClass estimates the support of a high-dimensional distribution.
	OneClass
	// EpsilonSVR is epsilon-support vector regression.
	EpsilonSVR
	// NuSVR is nu-support vector regression, nu controlling the number of
	// support vectors.
	NuSVR
)

var names = [...]string{
	CSVC:       "c_svc",
	NuSVC:      "nu_svc",
	OneClass:   "one_class",
	EpsilonSVR: "epsilon_svr",
	NuSVR:      "nu_svr",
}

// Len returns the number of known SVM types.
func Len() int {
	return len(names)
}

// All returns every SVM type in ordinal order.
func All() []Type {
	out := make([]Type, len(names))
	for i := range names {
		out[i] = Type(i)
	}
	return out
}

// Get returns the type with ordinal i. Unknown ordinals yield CSVC.
func Get(i int) Type {
	if i < 0 || i >= len(names) {
		return CSVC
	}
	return Type(i)
}

// Parse returns the type named s, accepting either the canonical name or the
// decimal ordinal. Anything else yields CSVC.
func Parse(s string) Type {
	for i, name := range names {
		if s == name || s == strconv.Itoa(i) {
			return Type(i)
		}
	}
	return CSVC
}

// Ordinal returns the numeric index of t.
func (t Type) Ordinal() int {
	return int(t)
}

// String returns the canonical lowercase name of t.
func (t Type) String() string {
	return names[Get(int(t))]
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It never fails; unknown
// values become CSVC.
func (t *Type) UnmarshalText(text []byte) error {
	*t = Parse(string(text))
	return nil
}
