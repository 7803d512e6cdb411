package validate

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inErrors "github.com/Alturino/foodorder/internal/errors"
)

type contact struct {
	FirstName string `json:"firstName" validate:"notblank"`
	Email     string `json:"email"     validate:"notblank,email"`
	Note      string `json:"note,omitempty"`
}

func TestStruct(t *testing.T) {
	testCases := []struct {
		desc   string
		input  contact
		fields []string
	}{
		{desc: "valid", input: contact{FirstName: "Asha", Email: "asha@example.com"}},
		{desc: "whitespace is blank", input: contact{FirstName: "   ", Email: "asha@example.com"}, fields: []string{"firstName"}},
		{desc: "all blank", input: contact{}, fields: []string{"firstName", "email"}},
		{desc: "bad email", input: contact{FirstName: "Asha", Email: "asha"}, fields: []string{"email"}},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			err := Struct(tC.input)
			if tC.fields == nil {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, inErrors.ErrValidationFailed)
			assert.Equal(t, inErrors.ValidationDetails{Fields: tC.fields}, inErrors.As(err).Details())
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"firstName":"Asha","email":"asha@example.com"}`))
	var body contact
	require.NoError(t, DecodeJSON(r, &body))
	assert.Equal(t, "Asha", body.FirstName)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"firstName":`))
	assert.ErrorIs(t, DecodeJSON(r, &body), inErrors.ErrValidationFailed)
}
