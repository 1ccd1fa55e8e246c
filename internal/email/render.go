// Package email renders newsletter emails for published posts.
package email

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"net/url"
	"strings"
	texttemplate "text/template"

	"newsroom/internal/domain"
)

const htmlBody = `<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; max-width: 600px; margin: 0 auto;">
  <h1>{{.Title}}</h1>
  {{- if .Excerpt}}
  <p>{{.Excerpt}}</p>
  {{- end}}
  <p><a href="{{.URL}}">Read the full post</a></p>
  {{- if .UnsubscribeURL}}
  <hr>
  <p style="font-size: 12px; color: #666;">
    You are receiving this because you subscribed to the newsletter.
    <a href="{{.UnsubscribeURL}}">Unsubscribe</a>
  </p>
  {{- end}}
</body>
</html>`

const textBody = `{{.Title}}
{{if .Excerpt}}
{{.Excerpt}}
{{end}}
Read the full post: {{.URL}}
{{- if .UnsubscribeURL}}

Unsubscribe: {{.UnsubscribeURL}}
{{- end}}
`

type view struct {
	Title          string
	Excerpt        string
	URL            string
	UnsubscribeURL string
}

// Renderer builds the subject and bodies shared by every recipient of a
// post. The rich content document is not rendered; the email links to it.
type Renderer struct {
	siteURL        string
	unsubscribeURL string
	html           *htmltemplate.Template
	text           *texttemplate.Template
}

func NewRenderer(siteURL, unsubscribeURL string) (*Renderer, error) {
	if _, err := url.Parse(siteURL); err != nil {
		return nil, fmt.Errorf("parse site url: %w", err)
	}
	html, err := htmltemplate.New("html").Parse(htmlBody)
	if err != nil {
		return nil, fmt.Errorf("parse html template: %w", err)
	}
	text, err := texttemplate.New("text").Parse(textBody)
	if err != nil {
		return nil, fmt.Errorf("parse text template: %w", err)
	}
	return &Renderer{
		siteURL:        strings.TrimRight(siteURL, "/"),
		unsubscribeURL: unsubscribeURL,
		html:           html,
		text:           text,
	}, nil
}

func (r *Renderer) Render(post domain.Post) (domain.RenderedEmail, error) {
	v := view{
		Title:          post.Title,
		URL:            r.PostURL(post),
		UnsubscribeURL: r.unsubscribeURL,
	}
	if post.Excerpt != nil {
		v.Excerpt = *post.Excerpt
	}

	var html, text bytes.Buffer
	if err := r.html.Execute(&html, v); err != nil {
		return domain.RenderedEmail{}, fmt.Errorf("render html: %w", err)
	}
	if err := r.text.Execute(&text, v); err != nil {
		return domain.RenderedEmail{}, fmt.Errorf("render text: %w", err)
	}

	return domain.RenderedEmail{
		Subject: post.Title,
		HTML:    html.String(),
		Text:    text.String(),
		URL:     v.URL,
	}, nil
}

func (r *Renderer) PostURL(post domain.Post) string {
	return r.siteURL + "/blog/" + url.PathEscape(post.PostURL)
}

// UnsubscribeHeaders returns the List-Unsubscribe headers for member, or nil
// when no unsubscribe URL is configured.
func (r *Renderer) UnsubscribeHeaders(member domain.Member) map[string]string {
	if r.unsubscribeURL == "" {
		return nil
	}
	u, err := url.Parse(r.unsubscribeURL)
	if err != nil {
		return nil
	}
	q := u.Query()
	q.Set("email", member.Email)
	u.RawQuery = q.Encode()

	return map[string]string{
		"List-Unsubscribe":      "<" + u.String() + ">",
		"List-Unsubscribe-Post": "List-Unsubscribe=One-Click",
	}
}
