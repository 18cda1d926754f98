package panel

import (
	"fmt"
	"html/template"
	"io"

	"github.com/nomis52/archivepanel/config"
)

const panelTemplate = `{{define "panel" -}}
<div class="{{.Styles.Panel}}">
{{- if .View.ShowConfirmation}}
  <div class="{{.Styles.Overlay}}"></div>
  <div class="{{.Styles.ConfirmationPopup}}">
    <p>{{.Messages.ConfirmPrompt}}</p>
    <div class="{{.Styles.ConfirmHint}}">{{.Messages.ConfirmHint}}</div>
    <form method="post" action="{{.ActionBase}}/confirm"><button id="confirmArchiveButton" type="submit" class="{{.Styles.ConfirmButton}}">{{.Messages.ConfirmYes}}</button></form>
    <form method="post" action="{{.ActionBase}}/cancel"><button id="cancelArchiveButton" type="submit" class="{{.Styles.CancelButton}}">{{.Messages.ConfirmNo}}</button></form>
  </div>
{{- end}}
  <div class="{{.Styles.Container}}">
{{- if .View.Archived}}
    <div class="{{.Styles.ArchivedMessage}}">{{.Messages.ArchivedNotice}}</div>
{{- if .View.ShowReactivate}}
    <form method="post" action="{{.ActionBase}}/reactivate"><button id="reactivateButton" type="submit" class="{{.Styles.ReactivateButton}}">{{.Messages.ReactivateButton}}</button></form>
{{- end}}
{{- else if .View.Active}}
    <form method="post" action="{{.ActionBase}}/archive"><button id="archiveButton" type="submit" class="{{.Styles.StatusButton}}">{{.Messages.StatusLabel}} <span class="{{.Styles.ActiveStatus}}">{{.Messages.ActiveLabel}}</span></button></form>
{{- end}}
  </div>
</div>
{{- end}}
{{define "document" -}}
<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<link rel="stylesheet" href="{{.StylesheetURL}}">
</head>
<body>
{{template "panel" .}}
</body>
</html>
{{- end}}`

// Renderer turns a View into HTML using an explicit class and text mapping.
type Renderer struct {
	tmpl          *template.Template
	styles        config.Styles
	messages      config.Messages
	stylesheetURL string
}

type renderData struct {
	View          View
	Styles        config.Styles
	Messages      config.Messages
	ActionBase    string
	Title         string
	StylesheetURL string
}

// NewRenderer creates a Renderer. stylesheetURL is linked from full documents.
func NewRenderer(styles config.Styles, messages config.Messages, stylesheetURL string) (*Renderer, error) {
	tmpl, err := template.New("panel").Parse(panelTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing panel template: %w", err)
	}
	return &Renderer{
		tmpl:          tmpl,
		styles:        styles,
		messages:      messages,
		stylesheetURL: stylesheetURL,
	}, nil
}

// Render writes the panel fragment. Button forms post to actionBase/<action>.
func (r *Renderer) Render(w io.Writer, v View, actionBase string) error {
	return r.tmpl.ExecuteTemplate(w, "panel", r.data(v, actionBase, ""))
}

// RenderDocument writes the panel wrapped in a standalone HTML document.
func (r *Renderer) RenderDocument(w io.Writer, v View, actionBase, title string) error {
	return r.tmpl.ExecuteTemplate(w, "document", r.data(v, actionBase, title))
}

func (r *Renderer) data(v View, actionBase, title string) renderData {
	return renderData{
		View:          v,
		Styles:        r.styles,
		Messages:      r.messages,
		ActionBase:    actionBase,
		Title:         title,
		StylesheetURL: r.stylesheetURL,
	}
}
