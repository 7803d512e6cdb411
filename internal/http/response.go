package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	inErrors "github.com/Alturino/foodorder/internal/errors"
	"github.com/Alturino/foodorder/internal/log"
	"github.com/Alturino/foodorder/internal/otel"
)

// Response is the envelope every service writes.
type Response struct {
	Status     string `json:"status"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Data       any    `json:"data,omitempty"`
}

func WriteJsonResponse(
	c context.Context,
	w http.ResponseWriter,
	header map[string]string,
	body Response,
) {
	c, span := otel.Tracer.Start(c, "WriteJsonResponse")
	defer span.End()

	logger := zerolog.Ctx(c).With().Str(log.KeyTag, "http WriteJsonResponse").Logger()

	w.Header().Set(KeyHeaderContentType, ValueHeaderApplicationJson)
	for k, v := range header {
		w.Header().Add(k, v)
	}
	if body.StatusCode != 0 {
		w.WriteHeader(body.StatusCode)
	}

	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return
	}
}

func WriteSuccess(c context.Context, w http.ResponseWriter, statusCode int, message string, data any) {
	WriteJsonResponse(c, w, nil, Response{
		Status:     StatusSuccess,
		StatusCode: statusCode,
		Message:    message,
		Data:       data,
	})
}

// WriteError maps err to its code's HTTP status. Details are only written for coded errors.
func WriteError(c context.Context, w http.ResponseWriter, err error) {
	typed := inErrors.As(err)
	if typed == nil {
		typed = inErrors.Wrap(inErrors.CodeInternal, err, "internal server error")
	}
	meta := inErrors.MetadataFor(typed.Code())
	message := typed.Message()
	if typed.Code() == inErrors.CodeInternal {
		message = meta.PublicMessage
	}
	WriteJsonResponse(c, w, nil, Response{
		Status:     StatusFailed,
		StatusCode: meta.HTTPStatus,
		Message:    message,
		Data: ErrorBody{
			Code:    string(typed.Code()),
			Details: typed.Details(),
		},
	})
}

type ErrorBody struct {
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}
