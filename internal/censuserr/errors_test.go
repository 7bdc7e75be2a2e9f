package censuserr

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"

	"github.com/sells-group/demographics-cli/internal/model"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"geography not found", ErrGeographyNotFound, false},
		{"wrapped geography not found", eris.Wrap(ErrGeographyNotFound, "acs: tract"), false},
		{"quota", ErrQuotaExceeded, false},
		{"canceled", context.Canceled, false},
		{"upstream", UpstreamUnavailable("acs", 503, errors.New("busy")), true},
		{"wrapped upstream", fmt.Errorf("enrich: %w", UpstreamUnavailable("geocoder", 0, errors.New("eof"))), true},
		{"persistence", PersistenceFailure(errors.New("conn closed")), true},
		{"deadline", context.DeadlineExceeded, true},
		{"conn reset", syscall.ECONNRESET, true},
		{"io timeout text", errors.New("read tcp: i/o timeout"), true},
		{"rejected", Rejected("geocoder", 400), false},
		{"wrapped rejected", eris.Wrap(Rejected("acs", 404), "acs: tract"), false},
		{"plain", errors.New("bad request"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestKind(t *testing.T) {
	assert.Equal(t, model.ErrorKindGeographyNotFound, Kind(eris.Wrap(ErrGeographyNotFound, "x")))
	assert.Equal(t, model.ErrorKindPersistence, Kind(PersistenceFailure(errors.New("x"))))
	assert.Equal(t, model.ErrorKindUpstreamUnavailable, Kind(UpstreamUnavailable("acs", 500, nil)))
	assert.Equal(t, model.ErrorKindRejected, Kind(Rejected("geocoder", 400)))
	assert.Equal(t, model.ErrorKindUnknown, Kind(errors.New("boom")))
}

func TestUpstreamError_Message(t *testing.T) {
	err := UpstreamUnavailable("acs", 502, errors.New("bad gateway"))
	assert.Equal(t, "acs unavailable (status 502): bad gateway", err.Error())

	err = UpstreamUnavailable("geocoder", 0, nil)
	assert.Contains(t, err.Error(), "geocoder unavailable")
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 204, 400, 401, 404} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}
