package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-gamepi/pkg/catalog"
	"github.com/teslashibe/go-gamepi/pkg/flash"
	"github.com/teslashibe/go-gamepi/pkg/hub"
	"github.com/teslashibe/go-gamepi/pkg/thumbnail"
)

type fixture struct {
	server *Server
	runner *flash.MockRunner
	games  string
	thumbs string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	games := t.TempDir()
	thumbs := t.TempDir()

	for _, name := range []string{"snake.ino.hex", "my_cool_game.ino.hex"} {
		require.NoError(t, os.WriteFile(filepath.Join(games, name), []byte(":00000001FF\n"), 0644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(thumbs, "snake.png"), []byte("png-bytes"), 0644))

	runner := flash.NewMockRunner()
	inv, err := flash.New(flash.Options{
		GamesDir:    games,
		ImageSuffix: ".hex",
		Command:     "avrdude",
		Args:        []string{"-v", "-patmega328p", "-carduino", "-P/dev/ttyACM0", "-b115200", "-D", "-Uflash:w:{file}:i"},
		Runner:      runner,
	})
	require.NoError(t, err)

	srv, err := NewServer(Options{
		Addr: "127.0.0.1:0",
		Catalog: catalog.New(catalog.Options{
			GamesDir:       games,
			ThumbDir:       thumbs,
			ThumbURLPrefix: "/static/thumbnails",
		}),
		Invoker:    inv,
		Thumbnails: thumbnail.NewStore(thumbnail.Options{Dir: thumbs}),
	})
	require.NoError(t, err)

	return &fixture{server: srv, runner: runner, games: games, thumbs: thumbs}
}

func postFlash(t *testing.T, f *fixture, form url.Values) (*http.Response, string) {
	t.Helper()
	req := httptest.NewRequest("POST", "/flash", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := f.server.App().Test(req, -1)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func TestNewServerRequiresComponents(t *testing.T) {
	_, err := NewServer(Options{})
	assert.Error(t, err)

	_, err = NewServer(Options{Catalog: catalog.New(catalog.Options{GamesDir: t.TempDir()})})
	assert.Error(t, err)
}

func TestIndexRendersCatalog(t *testing.T) {
	f := newFixture(t)

	resp, err := f.server.App().Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	body, _ := io.ReadAll(resp.Body)
	html := string(body)
	assert.Contains(t, html, "My Cool Game")
	assert.Contains(t, html, "Snake")
	assert.Contains(t, html, `value="my_cool_game.ino.hex"`)
	assert.Contains(t, html, `src="/static/thumbnails/snake.png"`)
}

func TestIndexScanFailure(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.RemoveAll(f.games))

	resp, err := f.server.App().Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "Catalog unavailable")
}

func TestFlashMissingField(t *testing.T) {
	f := newFixture(t)

	resp, body := postFlash(t, f, url.Values{})
	assert.Equal(t, 400, resp.StatusCode)
	assert.Contains(t, body, "Missing required field: game")

	resp, _ = postFlash(t, f, url.Values{"game": {""}})
	assert.Equal(t, 400, resp.StatusCode)

	assert.Equal(t, 0, f.runner.CallCount())
}

func TestFlashSuccess(t *testing.T) {
	f := newFixture(t)

	resp, body := postFlash(t, f, url.Values{"game": {"snake.ino.hex"}})
	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.True(t, strings.HasPrefix(body, `<span class="loading banner-success">Flashing... done!</span>`))
	assert.Contains(t, body, "avrdude done.  Thank you.")

	calls := f.runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "avrdude", calls[0].Name)

	abs, err := filepath.Abs(filepath.Join(f.games, "snake.ino.hex"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"-v", "-patmega328p", "-carduino", "-P/dev/ttyACM0", "-b115200", "-D",
		"-Uflash:w:" + abs + ":i",
	}, calls[0].Args)
}

func TestFlashMultipartForm(t *testing.T) {
	f := newFixture(t)

	body := "--XX\r\nContent-Disposition: form-data; name=\"game\"\r\n\r\nsnake.ino.hex\r\n--XX--\r\n"
	req := httptest.NewRequest("POST", "/flash", strings.NewReader(body))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=XX")
	resp, err := f.server.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 1, f.runner.CallCount())
}

func TestFlashRejectsTraversal(t *testing.T) {
	f := newFixture(t)

	for _, game := range []string{"../../etc/passwd", "../snake.ino.hex", "/etc/passwd", "sub/../snake.ino.hex"} {
		resp, body := postFlash(t, f, url.Values{"game": {game}})
		assert.Equal(t, 400, resp.StatusCode, "game %q", game)
		assert.Contains(t, body, "Invalid game file name")
	}
	assert.Equal(t, 0, f.runner.CallCount())
}

func TestFlashUnknownGame(t *testing.T) {
	f := newFixture(t)

	resp, body := postFlash(t, f, url.Values{"game": {"missing.ino.hex"}})
	assert.Equal(t, 404, resp.StatusCode)
	assert.Contains(t, body, "Game not found")
	assert.Equal(t, 0, f.runner.CallCount())
}

func TestFlashCommandFailure(t *testing.T) {
	f := newFixture(t)
	f.runner.RunFunc = func(ctx context.Context, name string, args []string) (flash.Output, error) {
		return flash.Output{
			Stderr:   "avrdude: stk500_recv(): programmer is not responding",
			ExitCode: 1,
		}, nil
	}

	resp, body := postFlash(t, f, url.Values{"game": {"snake.ino.hex"}})
	assert.Equal(t, 502, resp.StatusCode)
	assert.Contains(t, body, "Flashing... FAILED")
	assert.Contains(t, body, "programmer is not responding")
	assert.NotContains(t, body, "done!")
}

func TestFlashCommandMissing(t *testing.T) {
	f := newFixture(t)
	f.runner.RunFunc = func(ctx context.Context, name string, args []string) (flash.Output, error) {
		return flash.Output{ExitCode: -1}, flash.ErrCommandNotFound
	}

	resp, body := postFlash(t, f, url.Values{"game": {"snake.ino.hex"}})
	assert.Equal(t, 503, resp.StatusCode)
	assert.Contains(t, body, "command not found")
}

func TestFlashResponseMapping(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{nil, 200},
		{flash.ErrInvalidGame, 400},
		{flash.ErrGameNotFound, 404},
		{flash.ErrDeviceBusy, 409},
		{flash.ErrPortUnavailable, 503},
		{flash.ErrTimeout, 504},
		{&flash.ExitError{Code: 1, Command: "avrdude"}, 502},
		{errors.New("boom"), 500},
	}
	for _, tt := range tests {
		code, data := flashResponse("snake.ino.hex", nil, tt.err)
		assert.Equal(t, tt.code, code, "err %v", tt.err)
		assert.Equal(t, "snake.ino.hex", data.Game)
	}
}

func TestConcurrentFlashRejected(t *testing.T) {
	f := newFixture(t)

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.runner.RunFunc = func(ctx context.Context, name string, args []string) (flash.Output, error) {
		once.Do(func() { close(started) })
		<-release
		return flash.Output{Stdout: "ok"}, nil
	}

	first := make(chan int, 1)
	go func() {
		resp, _ := postFlash(t, f, url.Values{"game": {"snake.ino.hex"}})
		first <- resp.StatusCode
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first flash never started")
	}

	resp, body := postFlash(t, f, url.Values{"game": {"my_cool_game.ino.hex"}})
	assert.Equal(t, 409, resp.StatusCode)
	assert.Contains(t, body, "Device busy")

	statusResp, err := f.server.App().Test(httptest.NewRequest("GET", "/api/status", nil))
	require.NoError(t, err)
	var status flash.Status
	require.NoError(t, json.NewDecoder(statusResp.Body).Decode(&status))
	assert.True(t, status.Busy)
	assert.Equal(t, "snake.ino.hex", status.Game)

	close(release)
	assert.Equal(t, 200, <-first)
	assert.Equal(t, 1, f.runner.CallCount())
	assert.Equal(t, 1, f.runner.PeakConcurrency())
}

func TestThumbnailServed(t *testing.T) {
	f := newFixture(t)

	resp, err := f.server.App().Test(httptest.NewRequest("GET", "/static/thumbnails/snake.png", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "png-bytes", string(body))

	resp, err = f.server.App().Test(httptest.NewRequest("GET", "/static/thumbnails/missing.png", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestAPIGames(t *testing.T) {
	f := newFixture(t)

	resp, err := f.server.App().Test(httptest.NewRequest("GET", "/api/games", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var payload struct {
		Games []catalog.Entry `json:"games"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Len(t, payload.Games, 2)
	assert.Equal(t, "my_cool_game.ino.hex", payload.Games[0].FileName)
	assert.Equal(t, "My Cool Game", payload.Games[0].DisplayName)
	assert.Equal(t, "/static/thumbnails/snake.png", payload.Games[1].ThumbnailURL)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	resp, err := f.server.App().Test(httptest.NewRequest("GET", "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestWSRequiresUpgrade(t *testing.T) {
	f := newFixture(t)

	resp, err := f.server.App().Test(httptest.NewRequest("GET", "/ws/status", nil))
	require.NoError(t, err)
	assert.Equal(t, 426, resp.StatusCode)
}

func TestStatusWebSocket(t *testing.T) {
	f := newFixture(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- f.server.Serve(ctx, ln) }()
	defer func() {
		cancel()
		<-served
	}()

	wsURL := "ws://" + ln.Addr().String() + "/ws/status"
	var conn *websocket.Conn
	require.Eventually(t, func() bool {
		conn, _, err = websocket.DefaultDialer.Dial(wsURL, nil)
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	defer conn.Close()

	assert.Eventually(t, func() bool { return f.server.Hub().ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, _ = postFlash(t, f, url.Values{"game": {"snake.ino.hex"}})
	f.server.NotifyCatalogChanged()

	readEvent := func() hub.Event {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var evt hub.Event
		require.NoError(t, json.Unmarshal(data, &evt))
		return evt
	}

	busy := readEvent()
	assert.Equal(t, hub.EventStatus, busy.Type)
	assert.Equal(t, true, busy.Status.(map[string]any)["busy"])

	idle := readEvent()
	assert.Equal(t, hub.EventStatus, idle.Type)
	assert.Equal(t, false, idle.Status.(map[string]any)["busy"])

	changed := readEvent()
	assert.Equal(t, hub.EventCatalog, changed.Type)
}

func TestFlashStatusKeepsGameAcrossKeepAliveRequests(t *testing.T) {
	f := newFixture(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- f.server.Serve(ctx, ln) }()
	defer func() {
		cancel()
		<-served
	}()

	client := &http.Client{Timeout: 5 * time.Second}
	defer client.CloseIdleConnections()
	flashURL := "http://" + ln.Addr().String() + "/flash"

	post := func(game string) int {
		t.Helper()
		resp, err := client.PostForm(flashURL, url.Values{"game": {game}})
		require.NoError(t, err)
		_, _ = io.Copy(io.Discard, resp.Body)
		require.NoError(t, resp.Body.Close())
		return resp.StatusCode
	}

	require.Eventually(t, func() bool {
		resp, err := client.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	require.Equal(t, http.StatusOK, post("snake.ino.hex"))
	for i := 0; i < 50; i++ {
		require.Equal(t, http.StatusBadRequest, post("QQQQQQQQQQQQ"))
	}

	status := f.server.invoker.Status()
	require.NotNil(t, status.Last)
	require.Equal(t, "snake.ino.hex", status.Last.Game)
	assert.Equal(t, 1, f.runner.CallCount())
}
