//go:build tamago && arm64

package exception

// vbarWrite writes VBAR_EL1.
//
// defined in vector_arm64.s
func vbarWrite(v uint64)

// isb issues an instruction-synchronization barrier.
//
// defined in vector_arm64.s
func isb()
