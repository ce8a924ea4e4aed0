// internal/app/renderer.go
package app

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	domainMail "renewal_notifier/internal/domain/mail"
	"renewal_notifier/internal/domain/renewal"

	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"
)

// ErrRenderAssetMissing marks an optional decoration that could not be loaded.
var ErrRenderAssetMissing = errors.New("optional render asset unavailable")

// AssetMissingError is recoverable: the message it accompanies is complete, only without the asset.
type AssetMissingError struct {
	Path  string
	Cause error
}

func (e *AssetMissingError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrRenderAssetMissing, e.Path, e.Cause)
}

func (e *AssetMissingError) Is(target error) bool { return target == ErrRenderAssetMissing }

func (e *AssetMissingError) Unwrap() error { return e.Cause }

// RendererOptions carries the presentation settings taken from configuration.
type RendererOptions struct {
	SignOff      string // e.g. "The Ribbon Team"
	SupportEmail string // optional, named in the closing note
	LogoPath     string // optional inline branding image
}

// Renderer turns one notification into a message. Output depends only on the notification,
// the options and the logo file contents.
type Renderer struct {
	opts RendererOptions
	md   goldmark.Markdown
}

func NewRenderer(opts RendererOptions) *Renderer {
	return &Renderer{
		opts: opts,
		md: goldmark.New(goldmark.WithRendererOptions(goldmarkHTML.WithHardWraps())),
	}
}

// Subject states the offset in days.
func Subject(offsetDays int) string {
	switch offsetDays {
	case 0:
		return "Subscription Renewal Today"
	case 1:
		return "Subscription Renewal in 1 Day"
	default:
		return fmt.Sprintf("Subscription Renewal in %d Days", offsetDays)
	}
}

// Render builds the message for n. A non-nil error is always an *AssetMissingError; the
// returned message is complete and usable in that case.
func (r *Renderer) Render(n *renewal.Notification) (domainMail.Message, error) {
	text := r.body(n, verbatim)

	var html bytes.Buffer
	if err := r.md.Convert([]byte(r.body(n, markdownEscaper.Replace)), &html); err != nil {
		html.Reset() // plain text part still carries everything
	}

	msg := domainMail.Message{
		To:       n.Key.Email,
		Subject:  Subject(n.Key.OffsetDays),
		TextBody: text,
		HTMLBody: html.String(),
	}

	if r.opts.LogoPath == "" {
		return msg, nil
	}
	asset, err := loadAsset(r.opts.LogoPath)
	if err != nil {
		return msg, &AssetMissingError{Path: r.opts.LogoPath, Cause: err}
	}
	msg.Inline = asset
	msg.HTMLBody = fmt.Sprintf(`<p><img src="cid:%s" alt="%s"></p>`+"\n", asset.Name, escapeAttr(r.opts.SignOff)) + msg.HTMLBody
	return msg, nil
}

// markdownEscaper backslash-escapes every ASCII punctuation character and folds line breaks,
// so names and addresses from the store are always literal text in the HTML part.
var markdownEscaper = func() *strings.Replacer {
	const punct = "\\!\"#$%&'()*+,-./:;<=>?@[]^_`{|}~"
	pairs := []string{"\r\n", " ", "\n", " ", "\r", " "}
	for _, c := range punct {
		pairs = append(pairs, string(c), `\`+string(c))
	}
	return strings.NewReplacer(pairs...)
}()

func verbatim(s string) string { return s }

// body lays out the message. esc is applied to every value that comes from the store or
// configuration; the text part passes them through unchanged.
func (r *Renderer) body(n *renewal.Notification, esc func(string) string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Hello %s,\n\n", esc(greetingName(n)))

	if len(n.Items) == 1 {
		fmt.Fprintf(&b, "This is a reminder that the following subscription is set to renew %s:\n\n", when(n.Key.OffsetDays))
	} else {
		fmt.Fprintf(&b, "This is a reminder that the following %d subscriptions are set to renew %s:\n\n", len(n.Items), when(n.Key.OffsetDays))
	}
	for _, item := range n.Items {
		fmt.Fprintf(&b, "- %s\n", lineItem(item, esc))
	}

	b.WriteString("\nIf you have any questions or need to make changes to your plan, please contact support")
	if r.opts.SupportEmail != "" {
		fmt.Fprintf(&b, " at %s", esc(r.opts.SupportEmail))
	}
	b.WriteString(".\n")

	if r.opts.SignOff != "" {
		fmt.Fprintf(&b, "\n— %s\n", esc(r.opts.SignOff))
	}
	return b.String()
}

func greetingName(n *renewal.Notification) string {
	if name := n.Key.Recipient().FullName(); name != "" {
		return name
	}
	if len(n.Items) > 0 && n.Items[0].CompanyName != "" {
		return n.Items[0].CompanyName
	}
	return "there"
}

func when(offsetDays int) string {
	switch offsetDays {
	case 0:
		return "today"
	case 1:
		return "in 1 day"
	default:
		return fmt.Sprintf("in %d days", offsetDays)
	}
}

// lineItem formats one bullet of the subscription list.
func lineItem(item renewal.LineItem, esc func(string) string) string {
	plan := item.ReportName
	if plan == "" {
		plan = item.BillingCycle
	}
	return fmt.Sprintf("%s — %s (renews %s)", esc(item.CompanyName), esc(plan), item.RenewalDate.Format(time.DateOnly))
}

func loadAsset(path string) (*domainMail.InlineAsset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("file is empty")
	}
	name := filepath.Base(path)
	ctype := mime.TypeByExtension(filepath.Ext(name))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	return &domainMail.InlineAsset{Name: name, ContentType: ctype, Data: data}, nil
}

func escapeAttr(s string) string {
	return strings.NewReplacer(`&`, "&amp;", `"`, "&quot;", `<`, "&lt;", `>`, "&gt;").Replace(s)
}
