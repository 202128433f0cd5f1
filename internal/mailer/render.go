package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/codeteki/outreach/internal/stores/crm"
)

// TemplateData is what pre-built email templates can interpolate
type TemplateData struct {
	ContactName string
	Company     string
	Brand       string
	StageName   string
}

// RenderTemplate executes a pre-built template's HTML body against the
// deal's contact
func RenderTemplate(tmpl *crm.EmailTemplate, data TemplateData) (subject, body string, err error) {
	t, err := template.New("email").Parse(tmpl.HTMLBody)
	if err != nil {
		return "", "", fmt.Errorf("template for stage '%s' does not parse: %w", tmpl.StageName, err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("template for stage '%s' failed to render: %w", tmpl.StageName, err)
	}

	return tmpl.Subject, buf.String(), nil
}

// WrapPlainText turns AI-composed plain text into minimal HTML paragraphs
func WrapPlainText(text string) string {
	var b strings.Builder
	for _, para := range strings.Split(strings.TrimSpace(text), "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		b.WriteString("<p>")
		b.WriteString(template.HTMLEscapeString(para))
		b.WriteString("</p>\n")
	}
	return b.String()
}

// InjectTrackingPixel appends the open-tracking image to an HTML body
func InjectTrackingPixel(body, baseURL, trackingID string) string {
	pixel := fmt.Sprintf(`<img src="%s/api/crm/track/%s/open.gif" width="1" height="1" alt="" style="display:none">`,
		strings.TrimRight(baseURL, "/"), trackingID)
	return body + "\n" + pixel
}
