package response

import (
	"encoding/json"
	"fmt"

	app_errors "github.com/yusuftnc/qchat/internal/errors"
	"github.com/yusuftnc/qchat/internal/model"
	"github.com/yusuftnc/qchat/internal/validation"
)

// The backend wraps every buffered payload as {"status": bool, "data": ...}.
// These types are decoded and validated at the boundary; nothing past this
// package sees an unchecked envelope.

type envelopeHeader struct {
	Status bool   `json:"status"`
	Error  string `json:"error,omitempty"`
}

type chatEnvelope struct {
	envelopeHeader
	Data *ChatData `json:"data" validate:"required"`
}

// ChatData is the payload of a buffered chat reply.
type ChatData struct {
	Message   *EnvelopeMessage `json:"message" validate:"required"`
	Model     string           `json:"model"`
	CreatedAt string           `json:"created_at,omitempty"`
}

// EnvelopeMessage is a chat message inside an envelope.
type EnvelopeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type qnaEnvelope struct {
	envelopeHeader
	Data *QnAData `json:"data" validate:"required"`
}

// QnAData is the payload of a buffered QnA reply.
type QnAData struct {
	Response  *string `json:"response" validate:"required"`
	Model     string  `json:"model"`
	CreatedAt string  `json:"created_at,omitempty"`
}

type modelsEnvelope struct {
	envelopeHeader
	Data *ModelsData `json:"data" validate:"required"`
}

// ModelsData is the payload of the model catalog.
type ModelsData struct {
	Models []ModelEntry `json:"models" validate:"required,min=1,dive"`
}

// ModelEntry names a model by either field.
type ModelEntry struct {
	Name  string `json:"name,omitempty" validate:"required_without=Model"`
	Model string `json:"model,omitempty" validate:"required_without=Name"`
}

// ID returns the usable identifier of the entry.
func (e ModelEntry) ID() string {
	if e.Name != "" {
		return e.Name
	}
	return e.Model
}

// DecodeChat validates a buffered chat envelope.
func DecodeChat(body []byte) (*Answer, error) {
	var env chatEnvelope
	if err := decodeEnvelope(body, &env, &env.envelopeHeader); err != nil {
		return nil, err
	}
	return &Answer{
		Model:       env.Data.Model,
		Text:        env.Data.Message.Content,
		CompletedAt: parseTimestamp(env.Data.CreatedAt),
	}, nil
}

// DecodeQnA validates a buffered QnA envelope.
func DecodeQnA(body []byte) (*Answer, error) {
	var env qnaEnvelope
	if err := decodeEnvelope(body, &env, &env.envelopeHeader); err != nil {
		return nil, err
	}
	return &Answer{
		Model:       env.Data.Model,
		Text:        *env.Data.Response,
		CompletedAt: parseTimestamp(env.Data.CreatedAt),
	}, nil
}

// DecodeModels validates the catalog envelope. An empty list is a shape
// error so that callers fall back to their built-in catalog.
func DecodeModels(body []byte) ([]model.ModelDescriptor, error) {
	var env modelsEnvelope
	if err := decodeEnvelope(body, &env, &env.envelopeHeader); err != nil {
		return nil, err
	}
	out := make([]model.ModelDescriptor, 0, len(env.Data.Models))
	for _, m := range env.Data.Models {
		out = append(out, model.ModelDescriptor{ID: m.ID(), DisplayName: m.ID()})
	}
	return out, nil
}

// DecodeHealth reads {"status": bool}.
func DecodeHealth(body []byte) (bool, error) {
	var h envelopeHeader
	if err := json.Unmarshal(body, &h); err != nil {
		return false, fmt.Errorf("%w: health body is not JSON: %w", app_errors.ErrShape, err)
	}
	return h.Status, nil
}

func decodeEnvelope(body []byte, env interface{}, header *envelopeHeader) error {
	if err := json.Unmarshal(body, env); err != nil {
		return fmt.Errorf("%w: body is not a JSON envelope: %w", app_errors.ErrShape, err)
	}
	if !header.Status {
		if header.Error != "" {
			return fmt.Errorf("%w: status false: %s", app_errors.ErrShape, header.Error)
		}
		return fmt.Errorf("%w: status false", app_errors.ErrShape)
	}
	if err := validation.Struct(env); err != nil {
		return fmt.Errorf("%w: %s", app_errors.ErrShape, err.Error())
	}
	return nil
}
