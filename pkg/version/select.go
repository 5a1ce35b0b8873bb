package version

// Versioned is anything that carries a crate version.
type Versioned interface {
	Version() Version
}

// SelectMax returns the element with the greatest version and true, or the
// zero value and false for an empty slice. When several elements share the
// greatest version the last one wins.
func SelectMax[T Versioned](candidates []T) (T, bool) {
	var best T
	if len(candidates) == 0 {
		return best, false
	}
	best = candidates[0]
	for _, c := range candidates[1:] {
		if c.Version().Compare(best.Version()) >= 0 {
			best = c
		}
	}
	return best, true
}
