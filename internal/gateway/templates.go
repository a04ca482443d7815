package gateway

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strings"
)

const (
	TemplateSOSAlert    = "sos-alert"
	TemplateSOSResolved = "sos-resolved"
	TemplateTest        = "notification-test"
)

const layout = `{{define "sos-alert"}}<!DOCTYPE html>
<html><body style="font-family:sans-serif">
<h2 style="color:#c0392b">SOS alert</h2>
<p><strong>{{.UserName}}</strong> triggered an SOS alert and listed you as a trusted contact.</p>
{{if .MapURL}}<p>Last known position: <a href="{{.MapURL}}">{{printf "%.5f" .Latitude}}, {{printf "%.5f" .Longitude}}</a>{{if .Accuracy}} (accuracy {{printf "%.0f" .Accuracy}} m){{end}}</p>{{end}}
<p>Alert reference: {{.AlertID}}</p>
</body></html>{{end}}
{{define "sos-resolved"}}<!DOCTYPE html>
<html><body style="font-family:sans-serif">
<h2 style="color:#27ae60">SOS alert resolved</h2>
<p><strong>{{.UserName}}</strong> resolved their SOS alert.</p>
<p>Reason: {{.Reason}}</p>
<p>Alert reference: {{.AlertID}}</p>
</body></html>{{end}}
{{define "notification-test"}}<!DOCTYPE html>
<html><body style="font-family:sans-serif">
<h2>Test email</h2>
<p>Hello {{.Name}}, email notifications are working. Your trusted contacts will be emailed this way when you raise an SOS alert.</p>
</body></html>{{end}}`

// Templates renders the HTML bodies of notification emails.
type Templates struct {
	tmpl    *template.Template
	mapsURL string
}

func NewTemplates(mapsBaseURL string) *Templates {
	if mapsBaseURL == "" {
		mapsBaseURL = "https://www.google.com/maps/search/?api=1"
	}
	return &Templates{
		tmpl:    template.Must(template.New("emails").Parse(layout)),
		mapsURL: mapsBaseURL,
	}
}

// MapURL links to a map centred on the given position.
func (t *Templates) MapURL(lat, lon float64) string {
	sep := "?"
	if strings.Contains(t.mapsURL, "?") {
		sep = "&"
	}
	return t.mapsURL + sep + "query=" + url.QueryEscape(fmt.Sprintf("%.6f,%.6f", lat, lon))
}

func (t *Templates) Render(name string, data any) (string, error) {
	if t.tmpl.Lookup(name) == nil {
		return "", fmt.Errorf("unknown email template %q", name)
	}
	var buf bytes.Buffer
	if err := t.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

type AlertEmail struct {
	AlertID   string
	UserName  string
	Latitude  float64
	Longitude float64
	Accuracy  float64
	MapURL    string
}

type ResolvedEmail struct {
	AlertID  string
	UserName string
	Reason   string
}
