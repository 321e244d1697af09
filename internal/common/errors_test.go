package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUserMessagePrefersSpecificText(t *testing.T) {
	require.Equal(t, "Towel is sold out", UserMessage(NewError(CodeComponentOutOfStock, "Towel is sold out", nil)))
	require.Equal(t, DefaultMessage(CodeRateLimited), UserMessage(NewError(CodeRateLimited, "", nil)))
	require.Equal(t, DefaultMessage(CodeUnknownError), UserMessage(errors.New("boom")))
	require.Empty(t, UserMessage(nil))
}

func TestCodeOfUnwrapsWrappedErrors(t *testing.T) {
	err := fmt.Errorf("resolve kit: %w", NewError(CodeNetworkError, "", errors.New("dial tcp")))
	require.Equal(t, CodeNetworkError, CodeOf(err))
	require.True(t, Recoverable(err))
	require.False(t, Recoverable(NewError(CodeInvalidConfig, "", nil)))
	require.False(t, Recoverable(NewError(CodeInvalidSelection, "", nil)))
	require.Equal(t, CodeUnknownError, CodeOf(errors.New("plain")))
}

func TestKnownCode(t *testing.T) {
	require.True(t, KnownCode(CodeSelectionIncomplete))
	require.False(t, KnownCode("SOMETHING_ELSE"))
	require.False(t, KnownCode(""))
}

func TestWriteErrorEnvelope(t *testing.T) {
	rr := httptest.NewRecorder()
	detail := ComponentDetail{ProductID: "p1", VariantID: "v1"}
	WriteError(rr, NewError(CodeComponentOutOfStock, "", nil).WithDetails(detail))
	require.Equal(t, http.StatusConflict, rr.Code)

	var body struct {
		Error struct {
			Code    string          `json:"code"`
			Message string          `json:"message"`
			Details ComponentDetail `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	require.Equal(t, CodeComponentOutOfStock, body.Error.Code)
	require.Equal(t, DefaultMessage(CodeComponentOutOfStock), body.Error.Message)
	require.Equal(t, detail, body.Error.Details)

	rr = httptest.NewRecorder()
	WriteError(rr, errors.New("secret internals"))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "secret")
}
