package httpmw

// Validatable is implemented by decoded JSON request bodies that can
// check their own invariants before a handler acts on them.
type Validatable interface {
	Validate() error
}
