package notify

import (
	"fmt"
	"html/template"
	"strings"
	"time"
)

// CandidateView is the deserialized change-feed snapshot the email renders.
type CandidateView struct {
	DocumentKey     string
	Name            string
	Email           string
	Phone           string
	Country         string
	Recommendations []string
}

var emailTmpl = template.Must(template.New("email").Parse(`
<html>
<body>
    <h2>Nuevo CV Analizado</h2>
    <p><strong>Nombre:</strong> {{.Name}}</p>
    <p><strong>Email:</strong> {{.Email}}</p>
    <p><strong>Teléfono:</strong> {{.Phone}}</p>
    <p><strong>País:</strong> {{.Country}}</p>
    <p><strong>Archivo:</strong> {{.DocumentKey}}</p>
    <h3>Posiciones Recomendadas:</h3>
    <ul>
    {{- range .Recommendations}}
        <li>{{.}}</li>
    {{- end}}
    </ul>
    <p><em>Analizado en: {{.AnalyzedAtLocal}}</em></p>
</body>
</html>
`))

type emailData struct {
	CandidateView
	AnalyzedAtLocal string
}

func renderEmailBody(v CandidateView, now time.Time) (string, error) {
	var b strings.Builder
	err := emailTmpl.Execute(&b, emailData{
		CandidateView:   v,
		AnalyzedAtLocal: now.Format("2006-01-02 15:04:05"),
	})
	if err != nil {
		return "", fmt.Errorf("render email: %w", err)
	}
	return b.String(), nil
}

func emailSubject(v CandidateView) string {
	return "Nuevo CV Analizado: " + v.Name
}
