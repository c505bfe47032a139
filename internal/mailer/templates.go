package mailer

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/models"
)

// Content is a rendered subject with HTML and plain text bodies.
type Content struct {
	Subject string
	HTML    string
	Text    string
}

var funcs = map[string]any{
	"date":  func(t time.Time) string { return t.Format("2006-01-02") },
	"upper": strings.ToUpper,
	"abs": func(n int) int {
		if n < 0 {
			return -n
		}
		return n
	},
}

const alertHTML = `<html><body>
<h2>Vehicle document alert: {{.Vehicle.VehicleNumber}}</h2>
<p>Department: {{.Vehicle.Department}}{{if .Vehicle.Make}} &middot; {{.Vehicle.Make}} {{.Vehicle.Model}}{{end}}</p>
<table border="1" cellpadding="6" cellspacing="0">
<tr><th>Document</th><th>Expiry date</th><th>Status</th><th>Priority</th></tr>
{{range .Alerts}}<tr><td>{{.Document}}</td><td>{{date .ExpiryDate}}</td><td>{{if lt .DaysRemaining 0}}Expired {{abs .DaysRemaining}} day(s) ago{{else if eq .DaysRemaining 0}}Expires today{{else}}Expires in {{.DaysRemaining}} day(s){{end}}</td><td>{{upper (print .Priority)}}</td></tr>
{{end}}</table>
<p>Please renew the listed documents and update the vehicle record.</p>
</body></html>`

const alertText = `Vehicle document alert: {{.Vehicle.VehicleNumber}}
Department: {{.Vehicle.Department}}

{{range .Alerts}}- {{.Document}}: {{date .ExpiryDate}} ({{if lt .DaysRemaining 0}}expired {{abs .DaysRemaining}} day(s) ago{{else if eq .DaysRemaining 0}}expires today{{else}}expires in {{.DaysRemaining}} day(s){{end}}) [{{upper (print .Priority)}}]
{{end}}
Please renew the listed documents and update the vehicle record.
`

var (
	alertHTMLTmpl = htmltemplate.Must(htmltemplate.New("alert.html").Funcs(funcs).Parse(alertHTML))
	alertTextTmpl = texttemplate.Must(texttemplate.New("alert.txt").Funcs(funcs).Parse(alertText))
)

// ComposeExpiryAlert renders the message sent to each recipient of a vehicle.
func ComposeExpiryAlert(v *models.Vehicle, alerts []models.ExpiryAlert) (Content, error) {
	data := struct {
		Vehicle *models.Vehicle
		Alerts  []models.ExpiryAlert
	}{v, alerts}

	var html, text bytes.Buffer
	if err := alertHTMLTmpl.Execute(&html, data); err != nil {
		return Content{}, fmt.Errorf("render alert html: %w", err)
	}
	if err := alertTextTmpl.Execute(&text, data); err != nil {
		return Content{}, fmt.Errorf("render alert text: %w", err)
	}
	return Content{
		Subject: alertSubject(v, alerts),
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}

func alertSubject(v *models.Vehicle, alerts []models.ExpiryAlert) string {
	top := models.PriorityLow
	rank := map[models.Priority]int{models.PriorityExpired: 0, models.PriorityHigh: 1, models.PriorityMedium: 2, models.PriorityLow: 3}
	for _, a := range alerts {
		if rank[a.Priority] < rank[top] {
			top = a.Priority
		}
	}
	return fmt.Sprintf("[%s] Vehicle %s: %d document alert(s)", strings.ToUpper(string(top)), v.VehicleNumber, len(alerts))
}
