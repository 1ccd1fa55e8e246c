package domain

// RenderedEmail is the per-post body shared by every recipient.
type RenderedEmail struct {
	Subject string
	HTML    string
	Text    string
	URL     string
}

type EmailMessage struct {
	To             string
	Subject        string
	HTML           string
	Text           string
	Headers        map[string]string
	IdempotencyKey string
}
