package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorsIsMatchesByCode(t *testing.T) {
	err := Newf(CodeAlreadyExecuted, "proposal %d already executed", 7)
	wrapped := fmt.Errorf("execute: %w", err)

	assert.ErrorIs(t, wrapped, ErrAlreadyExecuted)
	assert.NotErrorIs(t, wrapped, ErrNotAccepted)
	assert.Equal(t, CodeAlreadyExecuted, GetCode(wrapped))
	assert.Equal(t, KindStateConflict, KindOf(wrapped))
}

func TestKindsAndStatuses(t *testing.T) {
	cases := []struct {
		code   Code
		kind   Kind
		status int
	}{
		{CodeMissingField, KindValidation, http.StatusBadRequest},
		{CodeUnauthorized, KindUnauthorized, http.StatusForbidden},
		{CodeProposalNotFound, KindNotFound, http.StatusNotFound},
		{CodeDuplicateVote, KindStateConflict, http.StatusConflict},
		{CodePoolExhausted, KindInsufficientBalance, http.StatusUnprocessableEntity},
		{CodeSupplyOverflow, KindOverflow, http.StatusInternalServerError},
		{CodeInvalidTransfer, KindInvalidTransfer, http.StatusBadRequest},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.kind, tc.code.Kind(), tc.code)
		assert.Equal(t, tc.status, tc.code.HTTPStatus(), tc.code)
	}
}

func TestUnknownErrors(t *testing.T) {
	err := errors.New("boom")
	assert.Equal(t, CodeUnknown, GetCode(err))
	assert.Equal(t, KindUnknown, KindOf(err))
	assert.False(t, IsCode(err, CodeUnauthorized))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(CodeInvalidArgument, cause, "bad payload")
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "disk full")
}
