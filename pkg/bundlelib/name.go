package bundlelib

import "strings"

// VariantSeparator splits a concrete bundle name into its base name and
// variant tag, e.g. "hero.hd" -> ("hero", "hd").
const VariantSeparator = "."

// SplitName splits a concrete bundle name at the first separator.
// Names without a separator have an empty variant.
func SplitName(name string) (base, variant string) {
	base, variant, _ = strings.Cut(name, VariantSeparator)
	return
}

// BaseName returns name without its variant tag.
func BaseName(name string) string {
	base, _ := SplitName(name)
	return base
}

// HasVariant reports whether name carries a variant tag.
func HasVariant(name string) bool {
	_, variant := SplitName(name)
	return variant != ""
}
