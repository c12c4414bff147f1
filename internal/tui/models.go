package tui

type View int

const (
	ViewResponses View = iota
	ViewDetail
	ViewSearch
	ViewFacets
	ViewPresets
	ViewSavePreset
)

func (v View) String() string {
	switch v {
	case ViewResponses:
		return "responses"
	case ViewDetail:
		return "detail"
	case ViewSearch:
		return "search"
	case ViewFacets:
		return "facets"
	case ViewPresets:
		return "presets"
	case ViewSavePreset:
		return "save preset"
	default:
		return "unknown"
	}
}
