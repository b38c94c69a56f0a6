package routes

import (
	"net/http"

	"docshift/conversions"
	"docshift/encoder"
)

// ConversionInfo is one entry of the supported-types listing
type ConversionInfo struct {
	conversions.Descriptor
	Available bool `json:"available"`
}

// ConversionsHandler lists every supported conversion type and whether
// this server can run it right now
func (s *Server) ConversionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	all := conversions.All()
	infos := make([]ConversionInfo, 0, len(all))
	for _, d := range all {
		infos = append(infos, ConversionInfo{Descriptor: d, Available: s.available(d)})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"conversions": infos,
		"count":       len(infos),
	})
}

func (s *Server) available(d conversions.Descriptor) bool {
	switch d.Engine {
	case conversions.EngineLocal:
		_, ok := encoder.Get(d.SourceFormat, d.TargetFormat)
		return ok
	case conversions.EngineRemoveBG:
		return s.Config.RemoveBGAPIKey != ""
	case conversions.EngineCloudConvert:
		return s.Config.CloudConvertAPIKey != ""
	}
	return false
}
