package engine

// rotateStrike is the pure strike rotation rule. runsRun is the rotation run
// count the classifier produced (wide and no-ball penalties already
// excluded): an odd count swaps ends. At over completion ends swap once more,
// so an odd-run final ball leaves the original owners in place.
func rotateStrike(striker, nonStriker string, runsRun int, overComplete bool) (string, string) {
	if runsRun%2 == 1 {
		striker, nonStriker = nonStriker, striker
	}
	if overComplete {
		striker, nonStriker = nonStriker, striker
	}
	return striker, nonStriker
}
