package main

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"renewal_notifier/internal/app"
	domainMail "renewal_notifier/internal/domain/mail"
	"renewal_notifier/internal/domain/renewal"
	"renewal_notifier/internal/infra/config"
	"renewal_notifier/internal/infra/database"
	"renewal_notifier/internal/infra/database/dbtest"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingSender struct {
	mu   sync.Mutex
	sent []domainMail.Message
}

func (s *capturingSender) Send(_ context.Context, msg domainMail.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

// newTestRunner runs against store without closing it, so pool state can be inspected afterwards.
func newTestRunner(t *testing.T, store *dbtest.Store, sender domainMail.Sender) (*runner, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	return &runner{
		cfg:       &config.AppConfig{},
		logger:    logger,
		policy:    renewal.DefaultPolicy(),
		renderer:  app.NewRenderer(app.RendererOptions{SignOff: "The Ribbon Team"}),
		newSender: func(logrus.FieldLogger) domainMail.Sender { return sender },
		openDB: func(context.Context) (*sql.DB, func() error, error) {
			return store.DB, func() error { return nil }, nil
		},
	}, hook
}

func TestParseToday(t *testing.T) {
	d, err := parseToday("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), d)

	_, err = parseToday("2024-02-30")
	assert.Error(t, err)

	now, err := parseToday("")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, now.Location())
}

func TestRunner_SendsAgainstStore(t *testing.T) {
	store := dbtest.New(t)
	store.Company(1, "Acme Ltd")
	store.Pricing(1, "annual", "Market Report", 1200)
	store.Subscription(10, 1, 1, "2024-03-31")
	store.User(100, 1, 0, true, "admin@acme.test", "Ada", "Lovelace")

	sender := &capturingSender{}
	r, _ := newTestRunner(t, store, sender)

	require.NoError(t, r.run(context.Background(), time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "admin@acme.test", sender.sent[0].To)
	assert.Equal(t, "Subscription Renewal in 60 Days", sender.sent[0].Subject)
	assert.Zero(t, store.DB.Stats().InUse, "pinned connection must be released")
}

func TestRunner_FetchFailureIsReturned(t *testing.T) {
	store := dbtest.New(t)
	_, err := store.DB.Exec("DROP TABLE users")
	require.NoError(t, err)

	sender := &capturingSender{}
	r, hook := newTestRunner(t, store, sender)

	err = r.run(context.Background(), time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.True(t, errors.Is(err, app.ErrDataFetch))
	assert.True(t, errors.Is(err, database.ErrQueryFailed))
	assert.Empty(t, sender.sent)
	assert.Zero(t, store.DB.Stats().InUse, "pinned connection must be released")

	var errorEntries int
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel {
			errorEntries++
		}
	}
	assert.Equal(t, 1, errorEntries, "fetch failure is logged once")
}

func TestRunner_SenderGetsRunScopedLogger(t *testing.T) {
	store := dbtest.New(t)
	logger, _ := test.NewNullLogger()

	var got logrus.FieldLogger
	r := &runner{
		cfg:      &config.AppConfig{},
		logger:   logger,
		policy:   renewal.DefaultPolicy(),
		renderer: app.NewRenderer(app.RendererOptions{}),
		newSender: func(log logrus.FieldLogger) domainMail.Sender {
			got = log
			return &capturingSender{}
		},
		openDB: func(context.Context) (*sql.DB, func() error, error) {
			return store.DB, func() error { return nil }, nil
		},
	}

	require.NoError(t, r.run(context.Background(), time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))

	entry, ok := got.(*logrus.Entry)
	require.True(t, ok)
	assert.NotEmpty(t, entry.Data["run_id"])
}

func TestRootCommand_MissingConfiguration(t *testing.T) {
	for _, k := range []string{"DATABASE_URL", "DB_HOST", "DB_USER", "DB_PASS", "DB_NAME"} {
		t.Setenv(k, "")
	}

	cmd := newRootCommand()
	cmd.SetArgs([]string{"--date", "2024-02-01"})

	err := cmd.Execute()
	assert.True(t, errors.Is(err, config.ErrMissingSetting))
}

func TestRootCommand_RejectsBadDate(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"--date", "01/02/2024"})

	assert.Error(t, cmd.Execute())
}
