package web

import (
	"bytes"
	"errors"
	"net/http"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-gamepi/pkg/flash"
	"github.com/teslashibe/go-gamepi/pkg/hub"
	"github.com/teslashibe/go-gamepi/pkg/thumbnail"
	"github.com/teslashibe/go-gamepi/pkg/view"
)

// handleIndex renders the game catalog page
func (s *Server) handleIndex(c *fiber.Ctx) error {
	entries, err := s.catalog.Scan()
	if err != nil {
		s.logger.Error("catalog scan failed", "dir", s.catalog.GamesDir(), "error", err)
		return s.renderError(c, fiber.StatusInternalServerError, "Catalog unavailable", err.Error())
	}

	status := s.invoker.Status()

	var buf bytes.Buffer
	err = view.Page(&buf, view.PageData{
		Title:   s.opts.Title,
		Heading: s.opts.Heading,
		Entries: entries,
		Status: view.DeviceStatus{
			Busy: status.Busy,
			Game: status.Game,
		},
	})
	if err != nil {
		return err
	}

	c.Type("html", "utf-8")
	return c.Send(buf.Bytes())
}

// handleFlash flashes the game named by the "game" form field and returns
// an HTML fragment for the log box.
func (s *Server) handleFlash(c *fiber.Ctx) error {
	// FormValue aliases the request buffer, which fasthttp reuses.
	game := utils.CopyString(c.FormValue("game"))
	if game == "" {
		return s.renderResult(c, fiber.StatusBadRequest, view.ResultData{
			Kind:    view.KindError,
			Message: "Missing required field: game",
		})
	}

	res, err := s.invoker.Flash(c.UserContext(), game)
	code, data := flashResponse(game, res, err)
	if err != nil && code >= fiber.StatusInternalServerError {
		s.logger.Warn("flash request failed", "game", game, "status", code, "error", err)
	}
	return s.renderResult(c, code, data)
}

// flashResponse maps a flash outcome to an HTTP status and fragment.
func flashResponse(game string, res *flash.Result, err error) (int, view.ResultData) {
	data := view.ResultData{Game: game}
	if res != nil {
		data.Output = res.Output()
	}

	var exitErr *flash.ExitError
	switch {
	case err == nil:
		data.Kind = view.KindSuccess
		return fiber.StatusOK, data

	case errors.Is(err, flash.ErrInvalidGame):
		data.Kind = view.KindError
		data.Message = "Invalid game file name"
		return fiber.StatusBadRequest, data

	case errors.Is(err, flash.ErrGameNotFound):
		data.Kind = view.KindError
		data.Message = "Game not found"
		return fiber.StatusNotFound, data

	case errors.Is(err, flash.ErrDeviceBusy):
		data.Kind = view.KindBusy
		data.Message = "Another game is being flashed; try again when it finishes"
		return fiber.StatusConflict, data

	case errors.Is(err, flash.ErrCommandNotFound), errors.Is(err, flash.ErrPortUnavailable):
		data.Kind = view.KindError
		data.Message = err.Error()
		return fiber.StatusServiceUnavailable, data

	case errors.Is(err, flash.ErrTimeout):
		data.Kind = view.KindFailure
		data.Message = err.Error()
		return fiber.StatusGatewayTimeout, data

	case errors.As(err, &exitErr):
		data.Kind = view.KindFailure
		data.Message = exitErr.Error()
		return fiber.StatusBadGateway, data

	default:
		data.Kind = view.KindError
		data.Message = err.Error()
		return fiber.StatusInternalServerError, data
	}
}

// handleThumbnail serves one thumbnail image
func (s *Server) handleThumbnail(c *fiber.Ctx) error {
	name, err := url.PathUnescape(c.Params("name"))
	if err != nil {
		return fiber.ErrBadRequest
	}

	img, err := s.thumbnails.Load(name)
	switch {
	case errors.Is(err, thumbnail.ErrInvalidName):
		return fiber.ErrBadRequest
	case errors.Is(err, thumbnail.ErrNotFound):
		return fiber.ErrNotFound
	case err != nil:
		s.logger.Error("thumbnail load failed", "name", name, "error", err)
		return fiber.ErrInternalServerError
	}

	c.Set(fiber.HeaderContentType, img.ContentType)
	c.Set(fiber.HeaderCacheControl, "public, max-age=3600")
	c.Set(fiber.HeaderLastModified, img.ModTime.UTC().Format(http.TimeFormat))
	return c.Send(img.Data)
}

// handleListGames returns the catalog as JSON
func (s *Server) handleListGames(c *fiber.Ctx) error {
	entries, err := s.catalog.Scan()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"games": entries,
	})
}

// handleStatus returns the device status
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.invoker.Status())
}

// handleHealth reports liveness
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
	})
}

// handleStatusWS streams device status and catalog events
func (s *Server) handleStatusWS(conn *websocket.Conn) {
	client := hub.NewClient(s.statusHub, conn)
	if client == nil {
		conn.Close()
		return
	}
	client.Run()
}

func (s *Server) renderResult(c *fiber.Ctx, code int, data view.ResultData) error {
	var buf bytes.Buffer
	if err := view.Result(&buf, data); err != nil {
		return err
	}
	c.Type("html", "utf-8")
	return c.Status(code).Send(buf.Bytes())
}

func (s *Server) renderError(c *fiber.Ctx, code int, title, message string) error {
	var buf bytes.Buffer
	if err := view.Error(&buf, title, message); err != nil {
		return err
	}
	c.Type("html", "utf-8")
	return c.Status(code).Send(buf.Bytes())
}
