//go:build !(tamago && arm64)

package exception

var lastVBAR uint64

func vbarWrite(v uint64) { lastVBAR = v }
func isb()                {}
