package thermostat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/peakshed/peakshed/pkg/common"
	"github.com/peakshed/peakshed/pkg/log"
)

const lyricTokenPath = "oauth2/token"

// Lyric implements the Client interface against the Honeywell Lyric cloud
// API. Access tokens are short-lived and refreshed from the stored refresh
// token; the refresh token itself rotates on every refresh so we keep the
// latest one in memory.
type Lyric struct {
	client       *common.Client
	baseURL      string
	clientID     string
	clientSecret string
	locationID   string

	mu           sync.Mutex
	refreshToken string
	accessToken  string
	tokenExpiry  time.Time
}

func newLyric(clientID, clientSecret, refreshToken, locationID string) *Lyric {
	return &Lyric{
		client:       common.NewClient("thermostat", 30*time.Second, common.DefaultRetryPolicy()),
		baseURL:      "https://api.honeywell.com",
		clientID:     clientID,
		clientSecret: clientSecret,
		refreshToken: refreshToken,
		locationID:   locationID,
	}
}

type tokenResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
}

// ensureToken refreshes the access token when it is missing or within a
// minute of expiry.
func (l *Lyric) ensureToken(ctx context.Context) error {
	if l.accessToken != "" && time.Now().Before(l.tokenExpiry.Add(-time.Minute)) {
		return nil
	}
	if l.refreshToken == "" {
		return errors.New("missing refresh token")
	}

	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", l.refreshToken)

	u, err := url.JoinPath(l.baseURL, lyricTokenPath)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", u, strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(l.clientID, l.clientSecret)

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("token refresh failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		log.Ctx(ctx).ErrorContext(ctx, "lyric token refresh failed",
			slog.Int("status", resp.StatusCode), slog.String("body", string(body)))
		return fmt.Errorf("token refresh status %d", resp.StatusCode)
	}

	var res tokenResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return fmt.Errorf("failed to decode token response: %w", err)
	}

	l.accessToken = res.AccessToken
	if res.RefreshToken != "" {
		l.refreshToken = res.RefreshToken
	}

	// expires_in comes back as a string of seconds
	expiry := 30 * time.Minute
	if d, err := time.ParseDuration(res.ExpiresIn + "s"); err == nil && d > 0 {
		expiry = d
	}
	l.tokenExpiry = time.Now().Add(expiry)

	log.Ctx(ctx).DebugContext(ctx, "lyric token refreshed", slog.Time("expiry", l.tokenExpiry))
	return nil
}

func (l *Lyric) deviceURL(deviceID string) (string, error) {
	u, err := url.Parse(l.baseURL)
	if err != nil {
		return "", err
	}
	u.Path, err = url.JoinPath(u.Path, "v2/devices/thermostats", deviceID)
	if err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set("apikey", l.clientID)
	q.Set("locationId", l.locationID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type lyricDevice struct {
	ChangeableValues struct {
		Mode         string  `json:"mode"`
		CoolSetpoint float64 `json:"coolSetpoint"`
		HeatSetpoint float64 `json:"heatSetpoint"`
	} `json:"changeableValues"`
}

func (l *Lyric) doRequest(req *http.Request, dest interface{}) error {
	// we try up to 2 times because we might have an expired token
	for i := 0; i < 2; i++ {
		if err := l.ensureToken(req.Context()); err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+l.accessToken)

		resp, err := l.client.Do(req)
		if err != nil {
			return err
		}

		if resp.StatusCode == http.StatusUnauthorized {
			resp.Body.Close()
			log.Ctx(req.Context()).DebugContext(req.Context(), "lyric token expired")
			l.accessToken = ""
			continue
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
		}

		if dest != nil {
			err = json.NewDecoder(resp.Body).Decode(dest)
		}
		resp.Body.Close()
		if err != nil {
			log.Ctx(req.Context()).ErrorContext(req.Context(), "failed to decode lyric response", slog.Any("error", err))
			return err
		}
		return nil
	}
	return errors.New("lyric auth retries exhausted")
}

// GetSetpoints returns the current setpoints for the given device.
func (l *Lyric) GetSetpoints(ctx context.Context, deviceID string) (Setpoints, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	u, err := l.deviceURL(deviceID)
	if err != nil {
		return Setpoints{}, err
	}
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return Setpoints{}, err
	}

	var dev lyricDevice
	if err := l.doRequest(req, &dev); err != nil {
		return Setpoints{}, fmt.Errorf("get device failed: %w", err)
	}

	log.Ctx(ctx).DebugContext(ctx, "lyric setpoints",
		slog.String("deviceID", deviceID),
		slog.Float64("coolF", dev.ChangeableValues.CoolSetpoint),
		slog.String("mode", dev.ChangeableValues.Mode),
	)

	return Setpoints{
		CoolF: dev.ChangeableValues.CoolSetpoint,
		HeatF: dev.ChangeableValues.HeatSetpoint,
		Mode:  dev.ChangeableValues.Mode,
	}, nil
}

// SetCoolSetpoint issues a temporary hold at the given cool setpoint. The
// heat setpoint and mode are read first and written back unchanged since the
// API replaces the whole changeableValues document.
func (l *Lyric) SetCoolSetpoint(ctx context.Context, deviceID string, coolF int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	u, err := l.deviceURL(deviceID)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return err
	}
	var dev lyricDevice
	if err := l.doRequest(req, &dev); err != nil {
		return fmt.Errorf("get device failed: %w", err)
	}

	log.Ctx(ctx).InfoContext(ctx, "setting lyric cool setpoint",
		slog.String("deviceID", deviceID),
		slog.Int("coolF", coolF),
		slog.Float64("previousCoolF", dev.ChangeableValues.CoolSetpoint),
	)

	body, err := json.Marshal(map[string]interface{}{
		"mode":                     dev.ChangeableValues.Mode,
		"coolSetpoint":             coolF,
		"heatSetpoint":             dev.ChangeableValues.HeatSetpoint,
		"thermostatSetpointStatus": "TemporaryHold",
	})
	if err != nil {
		return err
	}
	req, err = http.NewRequestWithContext(ctx, "POST", u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	if err := l.doRequest(req, nil); err != nil {
		return fmt.Errorf("set setpoint failed: %w", err)
	}
	return nil
}
