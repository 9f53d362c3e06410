package job

import (
	"errors"
	"fmt"
)

// Kind is a node in the error-kind hierarchy. Kinds form a single-parent
// tree rooted at Root; handlers match a kind and all of its descendants.
// Kinds are created once at program start and are immutable.
type Kind struct {
	name   string
	parent *Kind
}

// Root is the ancestor of every kind. Errors carrying no explicit kind
// belong to Root, so a handler on Root matches any error.
var Root = &Kind{name: "Error"}

// NewKind creates a kind under the given parent. A nil parent attaches
// the kind directly under Root.
func NewKind(name string, parent *Kind) *Kind {
	if parent == nil {
		parent = Root
	}
	return &Kind{name: name, parent: parent}
}

// Name returns the kind's name as it appears in formatted errors.
func (k *Kind) Name() string { return k.name }

// Parent returns the kind's parent, nil for Root.
func (k *Kind) Parent() *Kind { return k.parent }

// DistanceTo returns the number of hierarchy steps from k up to ancestor,
// and whether ancestor is k or one of its ancestors.
func (k *Kind) DistanceTo(ancestor *Kind) (int, bool) {
	d := 0
	for cur := k; cur != nil; cur = cur.parent {
		if cur == ancestor {
			return d, true
		}
		d++
	}
	return 0, false
}

// New returns an error of this kind with the given message.
func (k *Kind) New(msg string) error {
	return &kindedError{kind: k, err: errors.New(msg)}
}

// Errorf returns a formatted error of this kind. The format verb %w is
// supported and preserved for errors.Is/As matching.
func (k *Kind) Errorf(format string, args ...any) error {
	return &kindedError{kind: k, err: fmt.Errorf(format, args...)}
}

// Wrap attaches this kind to an existing error. Wrapping nil returns nil.
func (k *Kind) Wrap(err error) error {
	if err == nil {
		return nil
	}
	return &kindedError{kind: k, err: err}
}

// Kinded is implemented by errors that carry an explicit kind. Application
// error types may implement it directly instead of using Kind.Wrap.
type Kinded interface {
	Kind() *Kind
}

type kindedError struct {
	kind *Kind
	err  error
}

func (e *kindedError) Error() string { return e.err.Error() }
func (e *kindedError) Unwrap() error { return e.err }
func (e *kindedError) Kind() *Kind   { return e.kind }

// KindOf returns the kind carried by err, walking the wrap chain.
// Errors without an explicit kind belong to Root.
func KindOf(err error) *Kind {
	var kinded Kinded
	if errors.As(err, &kinded) {
		return kinded.Kind()
	}
	return Root
}

// FormatError renders err in the persisted "<Kind>: <message>" form.
func FormatError(err error) string {
	return KindOf(err).Name() + ": " + err.Error()
}
