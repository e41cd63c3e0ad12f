package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/logging"
)

func serve(t *testing.T, fn HandlerFunc) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/test", Handle(logging.Nop(), fn))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestHandleSuccess(t *testing.T) {
	w, body := serve(t, func(c *gin.Context) error {
		OK(c, http.StatusCreated, gin.H{"id": "abc"}, "created")
		return nil
	})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, float64(http.StatusCreated), body["statusCode"])
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "created", body["message"])
	assert.Equal(t, "abc", body["data"].(map[string]interface{})["id"])
}

func TestHandleStructuredErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    *Error
		status int
	}{
		{"validation", Validation("All fields are required"), http.StatusBadRequest},
		{"unauthorized", Unauthorized("Unauthorized request"), http.StatusUnauthorized},
		{"invalid token", InvalidToken("Invalid Access Token"), http.StatusUnauthorized},
		{"not found", NotFound("User does not exist"), http.StatusNotFound},
		{"conflict", Conflict("User already exists"), http.StatusConflict},
		{"internal", Internal("Token generation failed"), http.StatusInternalServerError},
		{"too many", TooManyRequests("Too many requests"), http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := serve(t, func(c *gin.Context) error { return tt.err })

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, float64(tt.status), body["statusCode"])
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.err.Message, body["message"])
			assert.Nil(t, body["data"])
			_, hasErrors := body["errors"]
			assert.False(t, hasErrors)
		})
	}
}

func TestHandleErrorDetails(t *testing.T) {
	_, body := serve(t, func(c *gin.Context) error {
		return Validation("All fields are required", "username is required")
	})

	assert.Equal(t, []interface{}{"username is required"}, body["errors"])
}

func TestHandleUnstructuredErrorHidesCause(t *testing.T) {
	w, body := serve(t, func(c *gin.Context) error {
		return errors.New("pq: connection refused")
	})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Something went wrong", body["message"])
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestHandleWrappedStructuredError(t *testing.T) {
	w, _ := serve(t, func(c *gin.Context) error {
		return errors.Join(NotFound("Channel does not exist"))
	})

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestErrorCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Internal("Token generation failed").WithCause(cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "disk full")
}
