package ir

// Runtime identity reported in the wyrd event.
const (
	// RuntimeName is the name this binary reports itself as.
	RuntimeName = "vere"

	// RuntimeVersion is the binary's release version.
	RuntimeVersion = "3.1.0"

	// RuntimePace is the release channel.
	RuntimePace = "live"
)

// Kelvins is the compatibility vector this runtime supports, most
// constrained component first.
var Kelvins = []Kelvin{
	{Name: "zuse", Version: 410},
	{Name: "lull", Version: 322},
	{Name: "arvo", Version: 236},
	{Name: "hoon", Version: 137},
	{Name: "nock", Version: 4},
}

// KelvinOf returns the supported version of the named component.
func KelvinOf(name string) (int64, bool) {
	for _, k := range Kelvins {
		if k.Name == name {
			return k.Version, true
		}
	}
	return 0, false
}
