// Package view renders the gamepi HTML page and flash-result fragments.
// All dynamic text goes through html/template contextual escaping, since
// file names come straight from the filesystem.
package view

import (
	"embed"
	"html/template"
	"io"

	"github.com/teslashibe/go-gamepi/pkg/catalog"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Default page titles.
const (
	DefaultTitle   = "Arduino Game Loader"
	DefaultHeading = "Arduino GamePi4"
)

// Kind selects the banner shown above flash output.
type Kind string

const (
	KindSuccess Kind = "success"
	KindFailure Kind = "failure"
	KindBusy    Kind = "busy"
	KindError   Kind = "error"
)

// DeviceStatus is the device state shown in the page header.
type DeviceStatus struct {
	Busy bool
	Game string
}

// PageData is the input to Page.
type PageData struct {
	Title   string
	Heading string
	Entries []catalog.Entry
	Status  DeviceStatus
}

// ResultData is the input to Result.
type ResultData struct {
	Kind    Kind
	Game    string
	Message string
	Output  string
}

// Banner returns the status line for the result kind.
func (d ResultData) Banner() string {
	switch d.Kind {
	case KindSuccess:
		return "Flashing... done!"
	case KindFailure:
		return "Flashing... FAILED"
	case KindBusy:
		return "Device busy"
	default:
		return "Error"
	}
}

// BannerClass returns the CSS class for the banner.
func (d ResultData) BannerClass() string {
	if d.Kind == KindSuccess {
		return "loading banner-success"
	}
	if d.Kind == "" {
		return "banner-error"
	}
	return "banner-" + string(d.Kind)
}

// Page renders the full catalog page.
func Page(w io.Writer, data PageData) error {
	if data.Title == "" {
		data.Title = DefaultTitle
	}
	if data.Heading == "" {
		data.Heading = DefaultHeading
	}
	return templates.ExecuteTemplate(w, "page", data)
}

// Result renders the fragment swapped into the log box after a flash request.
func Result(w io.Writer, data ResultData) error {
	return templates.ExecuteTemplate(w, "result", data)
}

// Error renders a standalone error page.
func Error(w io.Writer, title, message string) error {
	return templates.ExecuteTemplate(w, "error", struct {
		Title   string
		Message string
	}{title, message})
}
