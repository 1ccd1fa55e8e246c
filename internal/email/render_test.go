package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsroom/internal/domain"
	"newsroom/testdata/utils"
)

func TestRender(t *testing.T) {
	r, err := NewRenderer("https://blog.example.com/", "https://blog.example.com/unsubscribe")
	require.NoError(t, err)

	out, err := r.Render(domain.Post{
		Title:   "Shipping <fast> & safe",
		PostURL: "shipping-fast",
		Excerpt: utils.Ptr("What we learned"),
	})
	require.NoError(t, err)

	assert.Equal(t, "Shipping <fast> & safe", out.Subject)
	assert.Equal(t, "https://blog.example.com/blog/shipping-fast", out.URL)
	assert.Contains(t, out.HTML, "Shipping &lt;fast&gt; &amp; safe")
	assert.Contains(t, out.HTML, `href="https://blog.example.com/blog/shipping-fast"`)
	assert.Contains(t, out.HTML, "Unsubscribe")
	assert.Contains(t, out.Text, "What we learned")
	assert.Contains(t, out.Text, "Read the full post: https://blog.example.com/blog/shipping-fast")
}

func TestRender_WithoutExcerptOrUnsubscribe(t *testing.T) {
	r, err := NewRenderer("https://blog.example.com", "")
	require.NoError(t, err)

	out, err := r.Render(domain.Post{Title: "Plain", PostURL: "plain"})
	require.NoError(t, err)
	assert.NotContains(t, out.HTML, "Unsubscribe")
	assert.NotContains(t, out.Text, "Unsubscribe")

	assert.Nil(t, r.UnsubscribeHeaders(domain.Member{Email: "a@example.com"}))
}

func TestUnsubscribeHeaders(t *testing.T) {
	r, err := NewRenderer("https://blog.example.com", "https://blog.example.com/unsubscribe")
	require.NoError(t, err)

	h := r.UnsubscribeHeaders(domain.Member{Email: "a+b@example.com"})
	assert.Equal(t, "<https://blog.example.com/unsubscribe?email=a%2Bb%40example.com>", h["List-Unsubscribe"])
	assert.Equal(t, "List-Unsubscribe=One-Click", h["List-Unsubscribe-Post"])
}
