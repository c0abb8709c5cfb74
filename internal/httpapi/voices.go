package httpapi

import (
	"net/http"
	"sort"
	"time"

	"github.com/Ratata326/james-ia/internal/voice"
)

const voicesInventoryTimeout = 2 * time.Second

// liveVoice is one prebuilt voice offered by the live-model transport. The
// set is fixed by the provider, not discovered at runtime.
type liveVoice struct {
	Name string `json:"name"`
	Tone string `json:"tone"`
}

var liveVoices = []liveVoice{
	{Name: "Puck", Tone: "upbeat"},
	{Name: "Charon", Tone: "informative"},
	{Name: "Kore", Tone: "firm"},
	{Name: "Fenrir", Tone: "excitable"},
	{Name: "Aoede", Tone: "breezy"},
	{Name: "Leda", Tone: "youthful"},
	{Name: "Orus", Tone: "firm"},
	{Name: "Zephyr", Tone: "bright"},
}

type listVoicesResponse struct {
	DefaultLiveVoice  string        `json:"default_live_voice"`
	Live              []liveVoice   `json:"live"`
	Local             []voice.Voice `json:"local"`
	SelectedLocalID   string        `json:"selected_local_id,omitempty"`
	SelectedLocalName string        `json:"selected_local_name,omitempty"`
}

func (s *Server) handleListVoices(w http.ResponseWriter, _ *http.Request) {
	resp := listVoicesResponse{
		DefaultLiveVoice: s.cfg.LiveVoice,
		Live:             liveVoices,
		Local:            []voice.Voice{},
	}

	if s.synth != nil {
		local := s.synth.Voices(voicesInventoryTimeout)
		sort.Slice(local, func(i, j int) bool { return local[i].Name < local[j].Name })
		resp.Local = local

		if v, ok := voice.ChooseVoice(local, voice.VoicePreference{
			Name:         s.cfg.PreferredVoiceName,
			Locale:       s.cfg.Locale,
			GenderMarker: s.cfg.VoiceGenderMarker,
		}); ok {
			resp.SelectedLocalID = v.ID
			resp.SelectedLocalName = v.Name
		}
	}

	respondJSON(w, http.StatusOK, resp)
}
