package version

import "fmt"

// Requirement restricts which versions a query accepts. The zero value
// accepts everything, pre-releases included.
type Requirement struct {
	base  Version
	upper Version
}

// Any matches every version.
var Any = Requirement{}

// Caret returns the requirement a bare version means in a crate dependency:
// ^1.2.3 is >=1.2.3, <2.0.0; ^0.2.3 is >=0.2.3, <0.3.0; ^0.0.3 is
// >=0.0.3, <0.0.4.
func Caret(v Version) Requirement {
	major, minor, patch := v.core()
	var upper string
	switch {
	case major > 0:
		upper = fmt.Sprintf("%d.0.0", major+1)
	case minor > 0:
		upper = fmt.Sprintf("0.%d.0", minor+1)
	default:
		upper = fmt.Sprintf("0.0.%d", patch+1)
	}
	return Requirement{base: v, upper: Version(upper)}
}

// IsAny reports whether r places no restriction.
func (r Requirement) IsAny() bool { return r.base == "" }

// Matches reports whether v satisfies r. A pre-release only matches when the
// requirement itself names a pre-release of the same MAJOR.MINOR.PATCH.
func (r Requirement) Matches(v Version) bool {
	if r.IsAny() {
		return true
	}
	if v.Compare(r.base) < 0 || v.Compare(r.upper) >= 0 {
		return false
	}
	if v.Prerelease() == "" {
		return true
	}
	if r.base.Prerelease() == "" {
		return false
	}
	vM, vm, vp := v.core()
	bM, bm, bp := r.base.core()
	return vM == bM && vm == bm && vp == bp
}

func (r Requirement) String() string {
	if r.IsAny() {
		return "*"
	}
	return "^" + string(r.base)
}
