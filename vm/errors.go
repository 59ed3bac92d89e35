package vm

import "fmt"

// RuntimeError signals an invariant the VM itself must never violate (an
// opcode the compiler could never have emitted, a pool index out of
// range) as opposed to a problem with the expression or its callbacks,
// which is always reported through xprerr.Error instead.
type RuntimeError struct {
	Message string
}

func (e RuntimeError) Error() string {
	return fmt.Sprintf("💥 RuntimeError: %s", e.Message)
}
