//go:build !(tamago && arm64)

package irq

var lastDAIF uint64

func readDAIF() uint64   { return lastDAIF }
func writeDAIF(v uint64) { lastDAIF = v }
