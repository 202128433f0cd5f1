package mailer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeteki/outreach/internal/stores/crm"
)

func TestRenderTemplate(t *testing.T) {
	t.Run("interpolates contact data", func(t *testing.T) {
		tmpl := &crm.EmailTemplate{
			StageName: "Initial Outreach",
			Subject:   "Welcome",
			HTMLBody:  "<p>Hi {{.ContactName}}, greetings from {{.Brand}}.</p>",
		}

		subject, body, err := RenderTemplate(tmpl, TemplateData{ContactName: "Dana", Brand: "codeteki"})
		require.NoError(t, err)
		assert.Equal(t, "Welcome", subject)
		assert.Equal(t, "<p>Hi Dana, greetings from codeteki.</p>", body)
	})

	t.Run("broken template is an error", func(t *testing.T) {
		tmpl := &crm.EmailTemplate{StageName: "Broken", HTMLBody: "{{.ContactName"}
		_, _, err := RenderTemplate(tmpl, TemplateData{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Broken")
	})
}

func TestWrapPlainText(t *testing.T) {
	t.Run("paragraphs become html", func(t *testing.T) {
		html := WrapPlainText("Hi Dana.\n\nStill interested?\n\n")
		assert.Equal(t, "<p>Hi Dana.</p>\n<p>Still interested?</p>\n", html)
	})

	t.Run("markup is escaped", func(t *testing.T) {
		html := WrapPlainText("Offers <b>50% off</b>")
		assert.NotContains(t, html, "<b>")
		assert.Contains(t, html, "&lt;b&gt;")
	})
}

func TestInjectTrackingPixel(t *testing.T) {
	body := InjectTrackingPixel("<p>Hi</p>", "http://localhost:8080/", "abc-123")
	assert.Contains(t, body, "<p>Hi</p>")
	assert.Contains(t, body, `src="http://localhost:8080/api/crm/track/abc-123/open.gif"`)
}

func TestIsPermanentFailure(t *testing.T) {
	assert.True(t, isPermanentFailure(errors.New("550 5.1.1 mailbox unavailable")))
	assert.True(t, isPermanentFailure(errors.New("recipient rejected: No such user here")))
	assert.False(t, isPermanentFailure(errors.New("451 temporary local problem")))
	assert.False(t, isPermanentFailure(errors.New("dial tcp: connection refused")))
}
