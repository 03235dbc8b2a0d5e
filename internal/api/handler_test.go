package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"resto-platform/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bindJSON(t *testing.T, body string, out any) error {
	t.Helper()

	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	req, err := http.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	return c.ShouldBindJSON(out)
}

// Coordinates on the equator or prime meridian are zero-valued floats and
// must bind; only out-of-range values are rejected.
func TestPositionRequestAcceptsZeroCoordinates(t *testing.T) {
	cases := []string{
		`{"lat":0,"lng":106.8,"speed":5}`,
		`{"lat":-6.2,"lng":0,"speed":5}`,
		`{"lat":0,"lng":0}`,
		`{"lat":-90,"lng":180}`,
	}
	for _, body := range cases {
		var req positionRequest
		assert.NoError(t, bindJSON(t, body, &req), "body %s", body)
	}
}

func TestPositionRequestRejectsOutOfRange(t *testing.T) {
	cases := []string{
		`{"lat":90.1,"lng":0}`,
		`{"lat":-90.1,"lng":0}`,
		`{"lat":0,"lng":180.1}`,
		`{"lat":0,"lng":-180.1}`,
		`{"lat":0,"lng":0,"speed":-1}`,
	}
	for _, body := range cases {
		var req positionRequest
		assert.Error(t, bindJSON(t, body, &req), "body %s", body)
	}
}

func TestAcceptDeliveryRequestValidatesInitialPosition(t *testing.T) {
	var withOrigin acceptDeliveryRequest
	assert.NoError(t, bindJSON(t,
		`{"order_id":7,"position":{"lat":0,"lng":0}}`, &withOrigin))
	require.NotNil(t, withOrigin.Position)
	assert.Equal(t, service.Position{}, *withOrigin.Position)

	var withoutPos acceptDeliveryRequest
	assert.NoError(t, bindJSON(t, `{"order_id":7}`, &withoutPos),
		"initial position stays optional")
	assert.Nil(t, withoutPos.Position)

	var outOfRange acceptDeliveryRequest
	assert.Error(t, bindJSON(t,
		`{"order_id":7,"position":{"lat":91,"lng":0}}`, &outOfRange))
}
