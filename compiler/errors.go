package compiler

import "fmt"

// DeveloperError signals an invariant the compiler itself must never
// violate (a malformed opcode table, an out-of-range pool index assembled
// by the compiler's own code) as opposed to a problem with the expression
// being compiled, which is always reported through xprerr.Error instead.
type DeveloperError struct {
	Message string
}

func (e DeveloperError) Error() string {
	return fmt.Sprintf("🤖 DeveloperError: %s", e.Message)
}
