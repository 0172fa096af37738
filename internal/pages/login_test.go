package pages

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/notifier-e2e/internal/browser/browsertest"
	"github.com/kuitang/notifier-e2e/internal/errs"
)

const (
	testEmail    = "notifier@example.test"
	testPassword = "correct horse"
	testBase     = "https://example.test/"
)

func openLoginPage(t *testing.T, b *browsertest.Browser) playwright.Page {
	t.Helper()
	bctx, err := b.NewContext()
	require.NoError(t, err)
	t.Cleanup(func() { _ = bctx.Close() })

	page, err := bctx.NewPage()
	require.NoError(t, err)
	require.NoError(t, Goto(context.Background(), page, testBase+"login", nil, time.Second))
	return page
}

func fastLogin() LoginOptions {
	return LoginOptions{SettleDelay: time.Millisecond, Timeout: 200 * time.Millisecond}
}

func TestLogin_StrictSequence(t *testing.T) {
	t.Parallel()
	b := browsertest.NewBrowser(browsertest.NewApp(testEmail, testPassword))
	page := openLoginPage(t, b)

	err := NewLoginPage(page, fastLogin()).Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)

	require.Equal(t, []string{
		"click:email", "fill:email",
		"click:password", "fill:password",
		"wait:submit",
		"click:submit",
	}, b.Actions())

	title, err := page.Title()
	require.NoError(t, err)
	require.Equal(t, browsertest.NotificationStatusTitle, title)
}

func TestLogin_WrongPasswordStillSubmits(t *testing.T) {
	t.Parallel()
	b := browsertest.NewBrowser(browsertest.NewApp(testEmail, testPassword))
	page := openLoginPage(t, b)

	// The flow itself does not judge success; the caller checks the title.
	err := NewLoginPage(page, fastLogin()).Login(context.Background(), testEmail, "wrong")
	require.NoError(t, err)

	title, _ := page.Title()
	require.Equal(t, browsertest.LoginTitle, title)
}

func TestLogin_MissingEmailFieldAbortsBeforeSubmit(t *testing.T) {
	t.Parallel()
	b := browsertest.NewBrowser(browsertest.NewApp(testEmail, testPassword))
	b.Faults.MissingEmailForm = true
	page := openLoginPage(t, b)

	err := NewLoginPage(page, fastLogin()).Login(context.Background(), testEmail, testPassword)
	require.Error(t, err)
	require.Equal(t, errs.Interaction, errs.CodeOf(err))
	require.True(t, errors.Is(err, browsertest.ErrNoElement))
	require.Empty(t, b.Actions())
}

func TestLogin_AmbiguousSubmitIsInteractionError(t *testing.T) {
	t.Parallel()
	b := browsertest.NewBrowser(browsertest.NewApp(testEmail, testPassword))
	b.Faults.DuplicateSubmit = true
	page := openLoginPage(t, b)

	err := NewLoginPage(page, fastLogin()).Login(context.Background(), testEmail, testPassword)
	require.Error(t, err)
	require.Equal(t, errs.Interaction, errs.CodeOf(err))
	require.True(t, errors.Is(err, browsertest.ErrStrictMode))
	require.NotContains(t, b.Actions(), "click:submit")
}

func TestLogin_DisabledSubmitTimesOut(t *testing.T) {
	t.Parallel()
	b := browsertest.NewBrowser(browsertest.NewApp(testEmail, testPassword))
	b.Faults.SubmitDisabled = true
	page := openLoginPage(t, b)

	start := time.Now()
	err := NewLoginPage(page, fastLogin()).Login(context.Background(), testEmail, testPassword)
	require.Error(t, err)
	require.Equal(t, errs.Interaction, errs.CodeOf(err))
	require.Contains(t, err.Error(), "never became enabled")
	require.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
	require.NotContains(t, b.Actions(), "click:submit")
}

func TestLogin_SettleDelayIsHonored(t *testing.T) {
	t.Parallel()
	b := browsertest.NewBrowser(browsertest.NewApp(testEmail, testPassword))
	page := openLoginPage(t, b)

	opts := fastLogin()
	opts.SettleDelay = 150 * time.Millisecond
	start := time.Now()
	require.NoError(t, NewLoginPage(page, opts).Login(context.Background(), testEmail, testPassword))
	require.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestLogin_CancelledDuringSettle(t *testing.T) {
	t.Parallel()
	b := browsertest.NewBrowser(browsertest.NewApp(testEmail, testPassword))
	page := openLoginPage(t, b)

	opts := fastLogin()
	opts.SettleDelay = time.Minute
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := NewLoginPage(page, opts).Login(ctx, testEmail, testPassword)
	require.Error(t, err)
	require.Equal(t, errs.Interaction, errs.CodeOf(err))
	require.True(t, errors.Is(err, context.DeadlineExceeded))
	require.NotContains(t, b.Actions(), "click:submit")
}

func TestLogin_CustomSubmitNameMustMatch(t *testing.T) {
	t.Parallel()
	b := browsertest.NewBrowser(browsertest.NewApp(testEmail, testPassword))
	page := openLoginPage(t, b)

	opts := fastLogin()
	opts.SubmitName = regexp.MustCompile(`^Continue$`)
	err := NewLoginPage(page, opts).Login(context.Background(), testEmail, testPassword)
	require.Error(t, err)
	require.Equal(t, errs.Interaction, errs.CodeOf(err))
}
