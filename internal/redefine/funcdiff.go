package redefine

import (
	"errors"
	"fmt"
	"reflect"
)

type funcDifferences struct {
	In  []*argDifference
	Out []*argDifference
}

type argDifference struct {
	A reflect.Type
	B reflect.Type
}

// err joins every difference into one error, or returns nil if the
// signatures match.
func (d *funcDifferences) err() error {
	errs := []error{}
	for i, arg := range d.In {
		if arg != nil {
			errs = append(errs, fmt.Errorf("argument %d: %v != %v", i, arg.A, arg.B))
		}
	}
	for i, out := range d.Out {
		if out != nil {
			errs = append(errs, fmt.Errorf("output %d: %v != %v", i, out.A, out.B))
		}
	}

	return errors.Join(errs...)
}

func diffFuncs(a, b reflect.Value) *funcDifferences {
	at := a.Type()
	bt := b.Type()

	return &funcDifferences{
		In:  diffTypes(at.NumIn(), bt.NumIn(), at.In, bt.In),
		Out: diffTypes(at.NumOut(), bt.NumOut(), at.Out, bt.Out),
	}
}

// diffTypes compares two type lists position by position. A missing position
// on either side is reported with a nil type.
func diffTypes(na, nb int, ta, tb func(int) reflect.Type) []*argDifference {
	n := max(na, nb)
	diffs := make([]*argDifference, n)

	for i := 0; i < n; i++ {
		var a, b reflect.Type
		if i < na {
			a = ta(i)
		}
		if i < nb {
			b = tb(i)
		}
		if a != b {
			diffs[i] = &argDifference{A: a, B: b}
		}
	}

	return diffs
}
