package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

func TestRespondErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("location: %w", shared.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("quantity: %w", shared.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("short: %w", shared.ErrInsufficientStock), http.StatusUnprocessableEntity},
		{fmt.Errorf("closed: %w", shared.ErrConflict), http.StatusConflict},
		{fmt.Errorf("cas: %w", shared.ErrConcurrency), http.StatusConflict},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		require.Equal(t, tc.status, rr.Code, tc.err.Error())
		var body ProblemDetail
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		require.Equal(t, tc.status, body.Status)
		require.Equal(t, tc.status >= 500, IsServerError(tc.err))
	}
}

func TestInternalErrorHidesDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, errors.New("password=hunter2"))
	require.NotContains(t, rr.Body.String(), "hunter2")
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var target struct {
		Quantity int64 `json:"quantity"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantity":3,"bogus":true}`))
	err := DecodeJSON(req, &target)
	require.ErrorIs(t, err, shared.ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantity":3}`))
	require.NoError(t, DecodeJSON(req, &target))
	require.EqualValues(t, 3, target.Quantity)
}
