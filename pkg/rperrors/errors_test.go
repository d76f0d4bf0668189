package rperrors

import (
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		errType  ErrorType
		expected int
	}{
		{LaunchNotFound, http.StatusNotFound},
		{TestItemNotFound, http.StatusNotFound},
		{ProjectAlreadyExists, http.StatusConflict},
		{FinishTimeEarlierThanStart, http.StatusNotAcceptable},
		{ReportingItemFinished, http.StatusNotAcceptable},
		{UnsupportedMergeStrategy, http.StatusNotAcceptable},
		{AccessDenied, http.StatusForbidden},
		{AmbiguousTestItemStatus, http.StatusBadRequest},
		{ForbiddenOperation, http.StatusBadRequest},
		{UnableLoadWidgetContent, http.StatusConflict},
		{UnableModifySharable, http.StatusUnprocessableEntity},
		{UnclassifiedError, http.StatusInternalServerError},
		{ErrorType{Code: 1, Name: "UNKNOWN"}, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.errType.Name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.errType.HTTPStatus())
		})
	}
}

func TestNewFormatsPlaceholders(t *testing.T) {
	err := New(ChildStartTimeEarlier, "2020-01-01", "2020-01-02", "abc")
	assert.Equal(t,
		"Start time of child ['2020-01-01'] item should be same or later than start time ['2020-01-02'] of the parent item/launch 'abc'",
		err.Error())

	err = New(IncorrectRequest)
	assert.Equal(t, "Incorrect Request.", err.Error())
}

func TestStatusOfWrappedError(t *testing.T) {
	err := errors.WithMessage(New(LaunchNotFound, "123"), "finishing launch")
	assert.Equal(t, http.StatusNotFound, StatusOf(err))
	assert.True(t, Is(err, LaunchNotFound))
	assert.False(t, Is(err, TestItemNotFound))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("boom")))
}

func TestExpect(t *testing.T) {
	assert.NoError(t, Expect(true, AccessDenied))
	err := Expect(false, AccessDenied, "not an owner")
	assert.True(t, Is(err, AccessDenied))
	assert.Equal(t, "You do not have enough permissions. not an owner", err.Error())
}
