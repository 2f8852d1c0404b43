package api

import (
	"net/http"

	"github.com/yusuftnc/qchat/internal/interfaces"
)

// ModelEntry is one installed model as listed by GET /ollama/v1/models.
type ModelEntry struct {
	Name  string `json:"name"`
	Model string `json:"model"`
}

// ModelsData is the data of GET /ollama/v1/models.
type ModelsData struct {
	Models []ModelEntry `json:"models"`
}

// ModelHandler serves the model catalog and the health probe.
type ModelHandler struct {
	service interfaces.GatewayService
}

func NewModelHandler(svc interfaces.GatewayService) *ModelHandler {
	return &ModelHandler{service: svc}
}

// HandleListModels godoc
// @Summary      List installed models
// @Description  Lists the models installed on the model server. No installed models is a 404.
// @Tags         Models
// @Produce      json
// @Success      200  {object}  Envelope{data=ModelsData}
// @Failure      401  {object}  Envelope
// @Failure      404  {object}  Envelope
// @Failure      502  {object}  Envelope
// @Security     ApiKeyAuth
// @Router       /models [get]
func (h *ModelHandler) HandleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.service.Models(r.Context())
	if err != nil {
		respondWithError(w, err)
		return
	}
	data := ModelsData{Models: make([]ModelEntry, 0, len(models))}
	for _, m := range models {
		entry := ModelEntry{Name: m.Name, Model: m.Model}
		if entry.Model == "" {
			entry.Model = m.Name
		}
		data.Models = append(data.Models, entry)
	}
	respondWithData(w, data)
}

// HandleHealth godoc
// @Summary      Model server health
// @Description  Always answers 200; the status field carries the result.
// @Tags         Models
// @Produce      json
// @Success      200  {object}  Envelope
// @Failure      401  {object}  Envelope
// @Security     ApiKeyAuth
// @Router       /health [get]
func (h *ModelHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, Envelope{Status: h.service.Healthy(r.Context())})
}
