package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meridian-hr/meridian-hr/internal/shared"
)

func TestRespondErrorMapsSharedSentinels(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{shared.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("load user: %w", shared.ErrNotFound), http.StatusNotFound},
		{shared.ErrInvalidCredentials, http.StatusUnauthorized},
		{shared.ErrTokenExpired, http.StatusUnauthorized},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		assert.Equal(t, tc.want, rr.Code, tc.err.Error())
	}
}
