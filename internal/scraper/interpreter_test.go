package scraper_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PharmacyScanner/internal/models"
	"PharmacyScanner/internal/scraper"
	"PharmacyScanner/internal/scraper/scrapertest"
)

func searchProfile() models.SiteProfile {
	return models.SiteProfile{
		ID: "drmax",
		Navigation: []models.NavigationStep{
			{Action: models.Navigate{URL: "https://shop.test/"}},
			{Action: models.Fill{Selector: "#q", Value: models.ValueSource{FromQuery: true}, ClearFirst: true}},
			{Action: models.Click{Selector: "#go"}},
			{Action: models.WaitForSelector{Selector: ".results", Timeout: time.Second}},
			{Action: models.ExtractAttribute{Selector: "link", Attribute: "href", CaptureAs: "canonical"}},
			{Action: models.RunPrompt{Text: "accept cookies"}},
		},
	}
}

func newInterpreter(sess *scrapertest.Session) (*scraper.Interpreter, *scrapertest.Factory) {
	factory := &scrapertest.Factory{New: func(models.SiteProfile) (*scrapertest.Session, error) { return sess, nil }}
	return scraper.NewInterpreter(factory, scraper.WithTimeouts(time.Second, 50*time.Millisecond)), factory
}

// TestRun_ExecutesStepsInOrder verifies each step maps to one session primitive in declared order
func TestRun_ExecutesStepsInOrder(t *testing.T) {
	sess := scrapertest.NewSession("<html></html>", "#q", "#go", ".results", "link")
	sess.Attributes["link@href"] = "https://shop.test/ibalgin"
	in, _ := newInterpreter(sess)

	out, err := in.Run(context.Background(), searchProfile(), "Ibalgin 400")
	require.NoError(t, err)
	require.NotNil(t, out)

	assert.Equal(t, []string{
		"navigate https://shop.test/",
		"fill #q=Ibalgin 400 (clear)",
		"click #go",
		"waitSelector .results",
		"attribute link@href",
	}, sess.Calls)
	assert.Equal(t, "https://shop.test/ibalgin", out.Captures["canonical"])
	assert.Equal(t, "accept cookies", out.Captures["prompt:5"])
	assert.Equal(t, 0, sess.Closed, "session is handed to the caller")

	require.NoError(t, out.Close())
	assert.Equal(t, 1, sess.Closed)
}

// TestRun_AbortsOnMissingSelector verifies a failing step stops the flow and releases the session
func TestRun_AbortsOnMissingSelector(t *testing.T) {
	sess := scrapertest.NewSession("", "#q")
	in, _ := newInterpreter(sess)

	out, err := in.Run(context.Background(), searchProfile(), "x")
	require.Error(t, err)
	assert.Nil(t, out)

	var ne *scraper.NavigationError
	require.True(t, errors.As(err, &ne))
	assert.Equal(t, 2, ne.Step)
	assert.Equal(t, models.StepClick, ne.Action)
	assert.True(t, errors.Is(err, scraper.ErrSelectorNotFound))
	assert.Len(t, sess.Calls, 3, "no step after the failure runs")
	assert.Equal(t, 1, sess.Closed)
}

// TestRun_NetworkWaitTimeout verifies a missed response is a recoverable typed failure
func TestRun_NetworkWaitTimeout(t *testing.T) {
	sess := scrapertest.NewSession("")
	sess.Responses = []string{"https://shop.test/static/app.js"}
	in, _ := newInterpreter(sess)

	profile := models.SiteProfile{ID: "spa", Navigation: []models.NavigationStep{
		{Action: models.Navigate{URL: "https://shop.test/?q={query}"}},
		{Action: models.WaitForResponse{Pattern: regexp.MustCompile(`/api/search`), Timeout: 20 * time.Millisecond}},
	}}

	_, err := in.Run(context.Background(), profile, "a b")
	require.Error(t, err)
	assert.True(t, errors.Is(err, scraper.ErrNetworkWaitTimeout))
	assert.Equal(t, "navigate https://shop.test/?q=a+b", sess.Calls[0])
	assert.Equal(t, 1, sess.Closed)
}

// TestRun_WaitResponseMatchesEarlierTraffic verifies responses seen before the wait step count
func TestRun_WaitResponseMatchesEarlierTraffic(t *testing.T) {
	sess := scrapertest.NewSession("")
	sess.Responses = []string{"https://shop.test/api/search?q=x"}
	in, _ := newInterpreter(sess)

	profile := models.SiteProfile{ID: "spa", Navigation: []models.NavigationStep{
		{Action: models.Navigate{URL: "https://shop.test/"}},
		{Action: models.WaitForResponse{Pattern: regexp.MustCompile(`/api/search`)}},
	}}

	out, err := in.Run(context.Background(), profile, "x")
	require.NoError(t, err)
	require.NoError(t, out.Close())
}

// TestRun_NavigationTimeout verifies deadline errors on navigate are classified
func TestRun_NavigationTimeout(t *testing.T) {
	sess := scrapertest.NewSession("")
	sess.Errors["navigate"] = context.DeadlineExceeded
	in, _ := newInterpreter(sess)

	_, err := in.Run(context.Background(), searchProfile(), "x")
	assert.True(t, errors.Is(err, scraper.ErrNavigationTimeout))
	assert.Equal(t, 1, sess.Closed)
}

// TestRun_OpenFailure verifies a factory error is a SessionError
func TestRun_OpenFailure(t *testing.T) {
	factory := scraper.SessionFactoryFunc(func(context.Context, models.SiteProfile) (scraper.Session, error) {
		return nil, errors.New("chrome crashed")
	})
	in := scraper.NewInterpreter(factory)

	_, err := in.Run(context.Background(), searchProfile(), "x")
	var ne *scraper.NavigationError
	require.True(t, errors.As(err, &ne))
	assert.Equal(t, -1, ne.Step)
	assert.True(t, errors.Is(err, scraper.ErrSession))
}

// TestRun_Cancelled verifies cancellation interrupts a blocking wait promptly
func TestRun_Cancelled(t *testing.T) {
	sess := scrapertest.NewSession("")
	sess.Block = true
	in, _ := newInterpreter(sess)

	profile := models.SiteProfile{ID: "slow", Navigation: []models.NavigationStep{
		{Action: models.WaitForSelector{Selector: ".never", Timeout: time.Hour}},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := in.Run(ctx, profile, "x")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.True(t, errors.Is(err, scraper.ErrSession))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, sess.Closed)
}

// TestPlanSteps_SearchURLAndHints verifies the synthesized flow for a search-only profile
func TestPlanSteps_SearchURLAndHints(t *testing.T) {
	profile := models.SiteProfile{
		ID:        "benu",
		SearchURL: "https://benu.test/?q={query}",
		Network:   &models.NetworkHints{WaitForResponse: []string{"graphql"}, ResponseTimeoutMs: 3000},
	}

	steps, err := scraper.PlanSteps(profile)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, models.StepNavigate, steps[0].Kind())
	wait, ok := steps[1].Action.(models.WaitForResponse)
	require.True(t, ok)
	assert.Equal(t, 3*time.Second, wait.Timeout)
	assert.Equal(t, "graphql", wait.Pattern.String())
}

// TestPlanSteps_HintsAfterLastNavigate verifies hints are inserted after the last navigate only
func TestPlanSteps_HintsAfterLastNavigate(t *testing.T) {
	profile := models.SiteProfile{
		ID: "x",
		Navigation: []models.NavigationStep{
			{Action: models.Navigate{URL: "https://a.test/"}},
			{Action: models.Navigate{URL: "https://a.test/search"}},
			{Action: models.WaitForSelector{Selector: ".r"}},
		},
		Network: &models.NetworkHints{WaitForResponse: []string{"api"}},
	}

	steps, err := scraper.PlanSteps(profile)
	require.NoError(t, err)
	kinds := make([]models.StepKind, len(steps))
	for i, s := range steps {
		kinds[i] = s.Kind()
	}
	assert.Equal(t, []models.StepKind{
		models.StepNavigate, models.StepNavigate, models.StepWaitForResponse, models.StepWaitForSelector,
	}, kinds)

	profile.Navigation = append(profile.Navigation, models.NavigationStep{Action: models.WaitForResponse{Pattern: regexp.MustCompile("x")}})
	steps, err = scraper.PlanSteps(profile)
	require.NoError(t, err)
	assert.Len(t, steps, 4, "explicit waitForResponse disables hints")
}
