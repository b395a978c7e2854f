package importer

// Kind classifies an asset by its pathname extension.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindDirectory
	KindTexture
	KindModel
)

// String returns the human-readable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindDirectory:
		return "directory"
	case KindTexture:
		return "texture"
	case KindModel:
		return "model"
	default:
		return "unknown"
	}
}

// ParseKind maps "texture" or "model" to its Kind.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "texture":
		return KindTexture, true
	case "model":
		return KindModel, true
	default:
		return KindUnknown, false
	}
}
