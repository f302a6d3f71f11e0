// Package arch maps the host CPU architecture onto the variant tag used to pick
// an artifact source.
package arch

import "runtime"

type Variant string

const (
	VariantARM Variant = "arm"
	VariantAMD Variant = "amd"
)

// Resolve maps an architecture name to a variant. The ARM family maps to arm,
// everything else to amd.
func Resolve(goarch string) Variant {
	switch goarch {
	case "arm", "arm64", "aarch64":
		return VariantARM
	default:
		return VariantAMD
	}
}

// Current resolves the architecture this binary was built for.
func Current() Variant {
	return Resolve(runtime.GOARCH)
}
