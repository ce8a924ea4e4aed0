// internal/domain/mail/message.go
package mail

// InlineAsset is an optional decoration embedded into the HTML part (e.g. a logo).
type InlineAsset struct {
	Name        string // referenced from HTML as cid:<Name>
	ContentType string
	Data        []byte
}

// Message is a fully rendered notification. It is not modified after rendering.
type Message struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
	Inline   *InlineAsset
}
