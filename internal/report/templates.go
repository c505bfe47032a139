package report

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/mailer"
)

var funcs = map[string]any{
	"date":  func(t time.Time) string { return t.Format("2006-01-02") },
	"title": func(s string) string {
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + s[1:]
	},
	"ago": func(n int) int {
		if n < 0 {
			return -n
		}
		return n
	},
}

const digestHTML = `<html><body>
<h2>{{title (print .Period)}} fleet document report</h2>
<p>Generated {{date .GeneratedAt}}. {{.TotalVehicles}} vehicle(s) need attention: {{.ExpiredCount}} with expired documents, {{.ExpiringCount}} with documents due within 30 days.</p>
{{range .Sections}}<h3>{{.Title}}: {{.Count}}</h3>
{{if .Vehicles}}<table border="1" cellpadding="6" cellspacing="0">
<tr><th>Vehicle</th><th>Department</th><th>Document</th><th>Expired on</th></tr>
{{range $v := .Vehicles}}{{range .Alerts}}<tr><td>{{$v.VehicleNumber}}</td><td>{{$v.Department}}</td><td>{{.Document}}</td><td>{{date .ExpiryDate}} ({{ago .DaysRemaining}} day(s) ago)</td></tr>
{{end}}{{end}}</table>
{{end}}{{end}}</body></html>`

const digestText = `{{title (print .Period)}} fleet document report
Generated {{date .GeneratedAt}}

Vehicles needing attention: {{.TotalVehicles}}
With expired documents: {{.ExpiredCount}}
With documents due within 30 days: {{.ExpiringCount}}
{{range .Sections}}
{{.Title}}: {{.Count}}
{{range $v := .Vehicles}}{{range .Alerts}}  - {{$v.VehicleNumber}} ({{$v.Department}}): {{.Document}} expired {{date .ExpiryDate}}, {{ago .DaysRemaining}} day(s) ago
{{end}}{{end}}{{end}}`

var (
	digestHTMLTmpl = htmltemplate.Must(htmltemplate.New("digest.html").Funcs(funcs).Parse(digestHTML))
	digestTextTmpl = texttemplate.Must(texttemplate.New("digest.txt").Funcs(funcs).Parse(digestText))
)

// Compose renders the digest message for s.
func Compose(s Summary) (mailer.Content, error) {
	var html, text bytes.Buffer
	if err := digestHTMLTmpl.Execute(&html, s); err != nil {
		return mailer.Content{}, fmt.Errorf("render summary html: %w", err)
	}
	if err := digestTextTmpl.Execute(&text, s); err != nil {
		return mailer.Content{}, fmt.Errorf("render summary text: %w", err)
	}
	subject := fmt.Sprintf("Fleet %s report: %d expired, %d expiring", s.Period, s.ExpiredCount, s.ExpiringCount)
	return mailer.Content{Subject: subject, HTML: html.String(), Text: text.String()}, nil
}
