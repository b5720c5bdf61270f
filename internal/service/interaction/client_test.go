package interaction

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckRequiresTwoMedications(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})

	for _, names := range [][]string{nil, {}, {"Lisinopril"}} {
		findings, err := c.Check(context.Background(), names)
		require.NoError(t, err)
		assert.Nil(t, findings)
	}
	assert.False(t, called, "no request should be made for fewer than two medications")
}

func TestCheckDecodesFindings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/interactions/check", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req struct {
			Medications []string `json:"medications"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"Lisinopril", "Ibuprofen"}, req.Medications)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"interactions":[{
			"severity": "moderate",
			"description": "NSAIDs may reduce the antihypertensive effect of ACE inhibitors",
			"recommendations": ["Monitor blood pressure"]
		}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Timeout: 2 * time.Second})

	findings, err := c.Check(context.Background(), []string{"Lisinopril", "Ibuprofen"})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "moderate", findings[0].Severity)
	assert.Equal(t, []string{"Monitor blood pressure"}, findings[0].Recommendations)
}

func TestCheckNoInteractions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"interactions":[]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})

	findings, err := c.Check(context.Background(), []string{"Lisinopril", "Metformin"})
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestCheckServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})

	_, err := c.Check(context.Background(), []string{"Lisinopril", "Ibuprofen"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}
