package protocol

import "voxelhud.ai/internal/sim/host"

// SUBSCRIBE (client -> server): first frame on a connection, binds it to one observer.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ObserverID      string `json:"observer_id"`
	// MaxQueue bounds buffered frames; older frames are dropped when the client lags.
	MaxQueue int `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	SessionID       string            `json:"session_id"`
	ObserverID      string            `json:"observer_id"`
	ObserverName    string            `json:"observer_name,omitempty"`
	Tick            uint64            `json:"tick"`
	Settings        SettingsState     `json:"settings"`
	Catalogs        map[string]string `json:"catalogs,omitempty"`
}

// OVERLAY (server -> client): the title/subtitle to show.
type OverlayMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	ObserverID      string          `json:"observer_id"`
	Title           []host.TextNode `json:"title"`
	Subtitle        []host.TextNode `json:"subtitle"`
	FadeIn          int             `json:"fade_in"`
	Stay            int             `json:"stay"`
	FadeOut         int             `json:"fade_out"`
}

// CLEAR (server -> client)
type ClearMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ObserverID      string `json:"observer_id"`
}

// SETTINGS (client -> server): toggles for the subscribed observer. Omitted fields keep their
// current value.
type SettingsMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Enabled         *bool  `json:"enabled,omitempty"`
	BlockStates     *bool  `json:"block_states,omitempty"`
	Liquids         *bool  `json:"liquids,omitempty"`
	Passable        *bool  `json:"passable,omitempty"`
	Preview         *bool  `json:"preview,omitempty"`
	Icons           *bool  `json:"icons,omitempty"`
}

// SettingsState is the full settings set, echoed in WELCOME.
type SettingsState struct {
	Enabled     bool `json:"enabled"`
	BlockStates bool `json:"block_states"`
	Liquids     bool `json:"liquids"`
	Passable    bool `json:"passable"`
	Preview     bool `json:"preview"`
	Icons       bool `json:"icons"`
}

type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}

func NewOverlay(observerID string, o host.Overlay) OverlayMsg {
	if o.Title == nil {
		o.Title = []host.TextNode{}
	}
	if o.Subtitle == nil {
		o.Subtitle = []host.TextNode{}
	}
	return OverlayMsg{
		Type:            TypeOverlay,
		ProtocolVersion: Version,
		ObserverID:      observerID,
		Title:           o.Title,
		Subtitle:        o.Subtitle,
		FadeIn:          o.FadeIn,
		Stay:            o.Stay,
		FadeOut:         o.FadeOut,
	}
}

func NewClear(observerID string) ClearMsg {
	return ClearMsg{Type: TypeClear, ProtocolVersion: Version, ObserverID: observerID}
}

func NewError(code, message string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, Code: code, Message: message}
}
