package httpc

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlashPostsForm(t *testing.T) {
	var gotGame string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/flash", r.URL.Path)
		gotGame = r.FormValue("game")
		w.Write([]byte("<span>Flashing... done!</span>"))
	}))
	defer server.Close()

	resp, err := New(server.URL + "/").Flash("snake.ino.hex")
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, "snake.ino.hex", gotGame)
	assert.Contains(t, resp.Body, "done!")
}

func TestFlashReportsConflict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte("Device busy"))
	}))
	defer server.Close()

	resp, err := New(server.URL).Flash("snake.ino.hex")
	require.NoError(t, err)
	assert.False(t, resp.OK())
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestStatusAndGames(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/status":
			w.Write([]byte(`{"busy":true,"game":"snake.ino.hex","since":"2026-01-02T03:04:05Z"}`))
		case "/api/games":
			w.Write([]byte(`{"games":[{"file":"snake.ino.hex","name":"Snake"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	c := New(server.URL)

	status, err := c.Status()
	require.NoError(t, err)
	assert.True(t, status.Busy)
	assert.Equal(t, "snake.ino.hex", status.Game)

	games, err := c.Games()
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, "Snake", games[0].DisplayName)
}

func TestGetJSONError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "catalog unavailable", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := New(server.URL).Games()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}
