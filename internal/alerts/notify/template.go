package notify

import (
	"bytes"
	"errors"
	"fmt"
	"text/template"
	"time"

	observations "signalwatch/internal/observations/domain"
)

const DefaultTemplate = `🚨 Traffic Signal Malfunction Detected!
Signal: {{.Signal}}
Observation: #{{.SequenceID}} at {{.Timestamp}}
State: {{.State}} (confidence {{.Confidence}})
{{- if .Detail }}
Detail: {{.Detail}}
{{- end }}
{{- if .Repeat }}
Still malfunctioning since {{.EpisodeStart}}.
{{- end }}`

// TemplateData provides fields for rendering notification content.
type TemplateData struct {
	Signal       string
	SequenceID   int64
	Timestamp    string
	State        string
	Confidence   string
	Detail       string
	Source       string
	Repeat       bool
	EpisodeStart string
}

// Template renders notification content.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a notification template, falling back to DefaultTemplate.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	parsed, err := template.New("signal-alert").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to data.
func (t *Template) Render(data TemplateData) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("alert template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// BuildTemplateData maps an observation onto template fields.
func BuildTemplateData(signal string, obs observations.Observation, repeat bool, episodeStart time.Time) TemplateData {
	data := TemplateData{
		Signal:     signal,
		SequenceID: obs.SequenceID,
		Timestamp:  obs.Timestamp.UTC().Format(time.RFC3339),
		State:      obs.State.Label(),
		Confidence: fmt.Sprintf("%.2f", obs.Confidence),
		Detail:     obs.Detail,
		Source:     obs.Source,
		Repeat:     repeat,
	}
	if data.Signal == "" {
		data.Signal = "traffic signal"
	}
	if !episodeStart.IsZero() {
		data.EpisodeStart = episodeStart.UTC().Format(time.RFC3339)
	}
	return data
}
