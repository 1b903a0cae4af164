package bundlelib

import (
	"math"

	"github.com/warpdl/warpbundle/pkg/logger"
)

// noActiveVariant ranks a candidate whose tag is not active. It sits below
// any real rank so that an active tag always wins, and the first such
// candidate is kept when nothing is active.
const noActiveVariant = math.MaxInt - 1

// VariantResolver maps a logical bundle name to the best concrete variant
// according to an ordered list of active tags.
type VariantResolver struct {
	variants    []string
	active      []string
	l           logger.Logger
	onAmbiguous func(logical, chosen string)
}

// NewVariantResolver creates a resolver with no known variants.
func NewVariantResolver(l logger.Logger) *VariantResolver {
	if l == nil {
		l = logger.NewNopLogger()
	}
	return &VariantResolver{l: l}
}

// SetVariants replaces the known concrete variant names, in manifest order.
func (r *VariantResolver) SetVariants(names []string) {
	r.variants = append(r.variants[:0:0], names...)
}

// SetActive replaces the active tags, most preferred first.
func (r *VariantResolver) SetActive(tags []string) {
	r.active = append(r.active[:0:0], tags...)
}

// Active returns the active tags.
func (r *VariantResolver) Active() []string {
	return append([]string(nil), r.active...)
}

// OnAmbiguous registers fn to be called whenever a variant is chosen
// without any active tag matching.
func (r *VariantResolver) OnAmbiguous(fn func(logical, chosen string)) {
	r.onAmbiguous = fn
}

func (r *VariantResolver) rank(tag string) int {
	for i, a := range r.active {
		if a == tag {
			return i
		}
	}
	return noActiveVariant
}

// Resolve returns the concrete name for logical. If no known variant shares
// its base name, logical is returned unchanged. The second result is true
// when a variant was picked although none of its tags is active; a warning
// is logged in that case.
func (r *VariantResolver) Resolve(logical string) (string, bool) {
	base := BaseName(logical)
	best := math.MaxInt
	bestIdx := -1
	for i, candidate := range r.variants {
		cBase, cVariant := SplitName(candidate)
		if cVariant == "" || cBase != base {
			continue
		}
		if found := r.rank(cVariant); found < best {
			best = found
			bestIdx = i
		}
	}
	if bestIdx == -1 {
		return logical, false
	}
	chosen := r.variants[bestIdx]
	if best == noActiveVariant {
		r.l.Warning("Ambiguous bundle variant chosen because there was no matching active variant: %s", chosen)
		if r.onAmbiguous != nil {
			r.onAmbiguous(logical, chosen)
		}
		return chosen, true
	}
	return chosen, false
}
