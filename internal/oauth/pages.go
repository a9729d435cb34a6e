package oauth

import (
	"bytes"
	_ "embed"
	"html/template"
)

//go:embed templates/callback_success.html
var callbackSuccessHTML string

//go:embed templates/callback_error.html
var callbackErrorHTML string

var (
	successTemplate = template.Must(template.New("success").Parse(callbackSuccessHTML))
	errorTemplate   = template.Must(template.New("error").Parse(callbackErrorHTML))
)

type pageData struct {
	Title   string
	Message string
	Code    string
	Color   template.CSS
}

func successPage() string {
	return renderPage(successTemplate, pageData{Title: "Authorization complete"})
}

func cancelledPage() string {
	return renderPage(errorTemplate, pageData{
		Title:   "Authorization cancelled",
		Message: "No access was granted.",
		Color:   "#6e7781",
	})
}

func errorPage(code, description string) string {
	msg := description
	if msg == "" {
		msg = "The authorization server reported an error."
	}
	return renderPage(errorTemplate, pageData{
		Title:   "Authorization failed",
		Message: msg,
		Code:    code,
		Color:   "#cf222e",
	})
}

func renderPage(tmpl *template.Template, data pageData) string {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return data.Title
	}
	return buf.String()
}
