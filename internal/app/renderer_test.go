package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"renewal_notifier/internal/domain/renewal"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func notification(offset int, items ...renewal.LineItem) *renewal.Notification {
	return &renewal.Notification{
		Key:   renewal.Key{Email: "jane@acme.test", OffsetDays: offset, FirstName: "Jane", LastName: "Doe"},
		Items: items,
	}
}

func lineItemFor(id int64, company, report string, renews string) renewal.LineItem {
	d, _ := time.Parse(time.DateOnly, renews)
	return renewal.LineItem{SubscriptionID: id, CompanyName: company, ReportName: report, BillingCycle: "annual", RenewalDate: d}
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "Subscription Renewal in 30 Days", Subject(30))
	assert.Equal(t, "Subscription Renewal in 1 Day", Subject(1))
	assert.Equal(t, "Subscription Renewal Today", Subject(0))
}

func TestRender_MandatoryContent(t *testing.T) {
	r := NewRenderer(RendererOptions{SignOff: "The Ribbon Team", SupportEmail: "support@ribbon.test"})
	n := notification(30,
		lineItemFor(1, "Acme Corp", "Market Report", "2026-11-16"),
		lineItemFor(2, "Acme Corp", "Pricing Index", "2026-11-16"),
	)

	msg, err := r.Render(n)

	require.NoError(t, err)
	assert.Equal(t, "jane@acme.test", msg.To)
	assert.Equal(t, "Subscription Renewal in 30 Days", msg.Subject)
	assert.Contains(t, msg.TextBody, "Hello Jane Doe,")
	assert.Contains(t, msg.TextBody, "following 2 subscriptions are set to renew in 30 days")
	assert.Contains(t, msg.TextBody, "- Acme Corp — Market Report (renews 2026-11-16)")
	assert.Contains(t, msg.TextBody, "- Acme Corp — Pricing Index (renews 2026-11-16)")
	assert.Contains(t, msg.TextBody, "please contact support at support@ribbon.test.")
	assert.Contains(t, msg.TextBody, "— The Ribbon Team")
	assert.Contains(t, msg.HTMLBody, "<li>Acme Corp — Market Report (renews 2026-11-16)</li>")
	assert.Nil(t, msg.Inline)
}

func TestRender_Deterministic(t *testing.T) {
	r := NewRenderer(RendererOptions{SignOff: "The Ribbon Team"})
	n := notification(60, lineItemFor(1, "Acme Corp", "Market Report", "2026-12-16"))

	first, err1 := r.Render(n)
	second, err2 := r.Render(n)

	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, first, second)
}

func TestRender_GreetingFallsBackToCompany(t *testing.T) {
	r := NewRenderer(RendererOptions{})
	n := &renewal.Notification{
		Key:   renewal.Key{Email: "ops@acme.test", OffsetDays: 3},
		Items: []renewal.LineItem{{CompanyName: "Acme Corp", BillingCycle: "monthly"}},
	}

	msg, err := r.Render(n)

	require.NoError(t, err)
	assert.Contains(t, msg.TextBody, "Hello Acme Corp,")
	assert.Contains(t, msg.TextBody, "the following subscription is set to renew in 3 days")
	assert.Contains(t, msg.TextBody, "Acme Corp — monthly")
}

func TestRender_NamesAreLiteralInHTML(t *testing.T) {
	r := NewRenderer(RendererOptions{SignOff: "R&D_Team", SupportEmail: "help_desk@ribbon.test"})
	n := &renewal.Notification{
		Key: renewal.Key{Email: "jane@acme.test", OffsetDays: 30, FirstName: "*Jane*", LastName: "Doe"},
		Items: []renewal.LineItem{
			lineItemFor(1, "Smith <Holdings>", "Market Report", "2026-11-16"),
			lineItemFor(2, "*Acme* Corp", "Index [Q3](http://evil.test)", "2026-11-16"),
			lineItemFor(3, "<script>alert(1)</script>", "# Heading\n- injected", "2026-11-16"),
		},
	}

	msg, err := r.Render(n)

	require.NoError(t, err)
	assert.Contains(t, msg.HTMLBody, "Hello *Jane* Doe,")
	assert.Contains(t, msg.HTMLBody, "<li>Smith &lt;Holdings&gt; — Market Report (renews 2026-11-16)</li>")
	assert.Contains(t, msg.HTMLBody, "<li>*Acme* Corp — Index [Q3](http://evil.test) (renews 2026-11-16)</li>")
	assert.Contains(t, msg.HTMLBody, "<li>&lt;script&gt;alert(1)&lt;/script&gt; — # Heading - injected (renews 2026-11-16)</li>")
	assert.Contains(t, msg.HTMLBody, "help_desk@ribbon.test")
	assert.Contains(t, msg.HTMLBody, "— R&amp;D_Team")
	assert.NotContains(t, msg.HTMLBody, "<em>")
	assert.NotContains(t, msg.HTMLBody, "<a ")
	assert.NotContains(t, msg.HTMLBody, "<h1>")
	assert.NotContains(t, msg.HTMLBody, "<script>")
	assert.NotContains(t, msg.HTMLBody, "raw HTML omitted")

	// The text part is never escaped.
	assert.Contains(t, msg.TextBody, "- Smith <Holdings> — Market Report (renews 2026-11-16)")
	assert.Contains(t, msg.TextBody, "- *Acme* Corp — Index [Q3](http://evil.test) (renews 2026-11-16)")
}

func TestRender_InlineLogo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logo.png")
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG fake"), 0o644))
	r := NewRenderer(RendererOptions{SignOff: "The Ribbon Team", LogoPath: path})

	msg, err := r.Render(notification(30, lineItemFor(1, "Acme Corp", "Market Report", "2026-11-16")))

	require.NoError(t, err)
	require.NotNil(t, msg.Inline)
	assert.Equal(t, "logo.png", msg.Inline.Name)
	assert.Equal(t, "image/png", msg.Inline.ContentType)
	assert.Contains(t, msg.HTMLBody, `src="cid:logo.png"`)
}

func TestRender_MissingLogoIsRecoverable(t *testing.T) {
	withLogo := NewRenderer(RendererOptions{SignOff: "The Ribbon Team", LogoPath: filepath.Join(t.TempDir(), "gone.png")})
	withoutLogo := NewRenderer(RendererOptions{SignOff: "The Ribbon Team"})
	n := notification(30, lineItemFor(1, "Acme Corp", "Market Report", "2026-11-16"))

	msg, err := withLogo.Render(n)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRenderAssetMissing)
	var assetErr *AssetMissingError
	require.ErrorAs(t, err, &assetErr)
	assert.Contains(t, assetErr.Path, "gone.png")

	// The message is complete and identical to one rendered with no logo configured.
	plain, err := withoutLogo.Render(n)
	require.NoError(t, err)
	assert.Equal(t, plain, msg)
}
