package snfix

import "strings"

type Classification int

const (
	NotTarget Classification = iota
	TargetGeneric
	TargetPrimary
)

func (c Classification) String() string {
	switch c {
	case NotTarget:
		return "not-target"
	case TargetGeneric:
		return "target-generic"
	case TargetPrimary:
		return "target-primary"
	default:
		return "unknown"
	}
}

// Classify classifies identity with the default markers.
func Classify(identity string) Classification {
	return classify(identity, DefaultTargetPrefix, DefaultPrimaryIdentity)
}

func classify(identity, prefix, primary string) Classification {
	if !strings.HasPrefix(identity, prefix) {
		return NotTarget
	}
	if identity == primary {
		return TargetPrimary
	}
	return TargetGeneric
}
