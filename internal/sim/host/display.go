package host

// TextNode is one element of a rawtext payload: either literal text or a translation key.
type TextNode struct {
	Text      string   `json:"text,omitempty"`
	Translate string   `json:"translate,omitempty"`
	With      []string `json:"with,omitempty"`
}

// Overlay is a title/subtitle pair with timings in ticks.
type Overlay struct {
	Title    []TextNode `json:"title"`
	Subtitle []TextNode `json:"subtitle"`
	FadeIn   int        `json:"fade_in"`
	Stay     int        `json:"stay"`
	FadeOut  int        `json:"fade_out"`
}

type Display interface {
	Show(observerID string, o Overlay) error
	Clear(observerID string) error
}
