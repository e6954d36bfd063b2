package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/peakshed/peakshed/pkg/common"
	"github.com/peakshed/peakshed/pkg/log"
)

// NWS implements the Client interface against the weather.gov gridpoint
// forecast API. Forecasts only change a few times a day, so responses are
// cached for an hour to keep the control loop from hammering the API.
type NWS struct {
	client *common.Client
	// baseURL is https://api.weather.gov outside of tests.
	baseURL string
	office  string
	gridX   int
	gridY   int

	mu          sync.Mutex
	cache       []nwsPeriod
	cacheExpiry time.Time
}

func newNWS(office string, gridX, gridY int) *NWS {
	return &NWS{
		client:  common.NewClient("forecast", 30*time.Second, common.DefaultRetryPolicy()),
		baseURL: "https://api.weather.gov",
		office:  office,
		gridX:   gridX,
		gridY:   gridY,
	}
}

type nwsPeriod struct {
	Name            string    `json:"name"`
	StartTime       time.Time `json:"startTime"`
	EndTime         time.Time `json:"endTime"`
	IsDaytime       bool      `json:"isDaytime"`
	Temperature     float64   `json:"temperature"`
	TemperatureUnit string    `json:"temperatureUnit"`
}

type nwsForecast struct {
	Properties struct {
		Periods []nwsPeriod `json:"periods"`
	} `json:"properties"`
}

func (n *NWS) getPeriods(ctx context.Context) ([]nwsPeriod, error) {
	if time.Now().Before(n.cacheExpiry) {
		return n.cache, nil
	}

	u := fmt.Sprintf("%s/gridpoints/%s/%d,%d/forecast", n.baseURL, n.office, n.gridX, n.gridY)
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/geo+json")

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		log.Ctx(ctx).WarnContext(ctx, "nws forecast request failed",
			slog.Int("status", resp.StatusCode), slog.String("body", string(body)))
		return nil, fmt.Errorf("%w: status %d", common.ErrUnavailable, resp.StatusCode)
	}

	var fc nwsForecast
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		return nil, fmt.Errorf("failed to decode forecast: %w", err)
	}
	if len(fc.Properties.Periods) == 0 {
		return nil, fmt.Errorf("%w: forecast has no periods", common.ErrUnavailable)
	}

	n.cache = fc.Properties.Periods
	n.cacheExpiry = time.Now().Add(time.Hour)
	return n.cache, nil
}

// HighF returns the forecast high for the given local date: the hottest
// daytime period that overlaps it.
func (n *NWS) HighF(ctx context.Context, date time.Time) (float64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	periods, err := n.getPeriods(ctx)
	if err != nil {
		return 0, err
	}

	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	var high float64
	var found bool
	for _, p := range periods {
		if !p.IsDaytime {
			continue
		}
		if !p.StartTime.Before(dayEnd) || !p.EndTime.After(dayStart) {
			continue
		}
		tempF := p.Temperature
		if p.TemperatureUnit == "C" {
			tempF = p.Temperature*9/5 + 32
		}
		if !found || tempF > high {
			high = tempF
			found = true
		}
	}
	if !found {
		return 0, fmt.Errorf("%w: no daytime forecast for %s", common.ErrUnavailable, dayStart.Format("2006-01-02"))
	}

	log.Ctx(ctx).DebugContext(ctx, "forecast high",
		slog.String("date", dayStart.Format("2006-01-02")),
		slog.Float64("highF", high),
	)
	return high, nil
}
