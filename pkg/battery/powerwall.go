package battery

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/peakshed/peakshed/pkg/common"
	"github.com/peakshed/peakshed/pkg/log"
	"github.com/peakshed/peakshed/pkg/types"
)

const powerwallLoginPath = "api/login/Basic"

// runway estimates are capped at a day so idle-load readings don't produce
// absurd values.
const maxRunwayMinutes = 24 * 60

// Powerwall implements the Client interface against the local Powerwall
// gateway API. The gateway serves a self-signed certificate, so the transport
// skips verification; the gateway is only reachable on the LAN.
type Powerwall struct {
	client   *common.Client
	baseURL  string
	email    string
	password string

	mu       sync.Mutex
	tokenStr string
}

func newPowerwall(host, email, password string) *Powerwall {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}

	return &Powerwall{
		client: common.NewClient("battery", 30*time.Second, common.DefaultRetryPolicy(),
			common.WithHTTPClient(common.HTTPClientWithTransport(30*time.Second, tr))),
		baseURL:  "https://" + host,
		email:    email,
		password: password,
	}
}

type loginResult struct {
	Token string `json:"token"`
}

// ensureLogin will not login again if the token we have cached is still valid
func (p *Powerwall) ensureLogin(ctx context.Context) error {
	if p.tokenStr != "" {
		return nil
	}
	token, err := p.login(ctx)
	if err != nil {
		return fmt.Errorf("failed to login: %w", err)
	}
	p.tokenStr = token
	return nil
}

func (p *Powerwall) login(ctx context.Context) (string, error) {
	if p.email == "" {
		return "", errors.New("missing email")
	}
	if p.password == "" {
		return "", errors.New("missing password")
	}

	req, err := p.newPostJSONRequest(ctx, powerwallLoginPath, map[string]interface{}{
		"username": "customer",
		"email":    p.email,
		"password": p.password,
	})
	if err != nil {
		return "", err
	}

	var res loginResult
	if err := p.doRequestNoAuth(req, &res); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "powerwall login failed", slog.Any("error", err))
		return "", fmt.Errorf("login failed: %w", err)
	}
	log.Ctx(ctx).DebugContext(ctx, "powerwall login success", slog.String("email", p.email))
	return res.Token, nil
}

func (p *Powerwall) newGetRequest(ctx context.Context, endpoint string) (*http.Request, error) {
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return nil, err
	}
	u.Path, err = url.JoinPath(u.Path, endpoint)
	if err != nil {
		return nil, err
	}
	return http.NewRequestWithContext(ctx, "GET", u.String(), nil)
}

func (p *Powerwall) newPostJSONRequest(ctx context.Context, endpoint string, data interface{}) (*http.Request, error) {
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return nil, err
	}
	u.Path, err = url.JoinPath(u.Path, endpoint)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (p *Powerwall) doRequestNoAuth(req *http.Request, dest interface{}) error {
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		log.Ctx(req.Context()).ErrorContext(req.Context(), "failed to decode powerwall response",
			slog.Any("error", err), slog.String("body", string(body)))
		return err
	}
	return nil
}

func (p *Powerwall) doRequest(req *http.Request, dest interface{}) error {
	// we try up to 2 times because we might have an expired token
	for i := 0; i < 2; i++ {
		if err := p.ensureLogin(req.Context()); err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+p.tokenStr)

		resp, err := p.client.Do(req)
		if err != nil {
			return err
		}

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			resp.Body.Close()
			log.Ctx(req.Context()).DebugContext(req.Context(), "powerwall token expired")
			p.tokenStr = ""
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return fmt.Errorf("status %d", resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return err
		}
		if dest != nil {
			if err := json.Unmarshal(body, dest); err != nil {
				log.Ctx(req.Context()).ErrorContext(req.Context(), "failed to decode powerwall response",
					slog.Any("error", err), slog.String("body", string(body)))
				return err
			}
		}
		return nil
	}
	return errors.New("powerwall auth retries exhausted")
}

type soeResult struct {
	Percentage float64 `json:"percentage"`
}

type aggregatesResult struct {
	Load struct {
		InstantPower float64 `json:"instant_power"`
	} `json:"load"`
}

type systemStatusResult struct {
	NominalEnergyRemainingWH float64 `json:"nominal_energy_remaining"`
	NominalFullPackEnergyWH  float64 `json:"nominal_full_pack_energy"`
}

type operationResult struct {
	RealMode            string  `json:"real_mode"`
	BackupReservePct    float64 `json:"backup_reserve_percent"`
	FreshnessLimitedPct float64 `json:"freshness_limited_backup_reserve_percent,omitempty"`
}

// GetSnapshot returns the current charge percentage and the estimated backup
// runway derived from remaining energy and the present home load.
func (p *Powerwall) GetSnapshot(ctx context.Context) (types.BatterySnapshot, error) {
	log.Ctx(ctx).DebugContext(ctx, "getting powerwall snapshot")
	p.mu.Lock()
	defer p.mu.Unlock()

	req, err := p.newGetRequest(ctx, "api/system_status/soe")
	if err != nil {
		return types.BatterySnapshot{}, err
	}
	var soe soeResult
	if err := p.doRequest(req, &soe); err != nil {
		return types.BatterySnapshot{}, fmt.Errorf("soe failed: %w", err)
	}

	req, err = p.newGetRequest(ctx, "api/system_status")
	if err != nil {
		return types.BatterySnapshot{}, err
	}
	var ss systemStatusResult
	if err := p.doRequest(req, &ss); err != nil {
		return types.BatterySnapshot{}, fmt.Errorf("system_status failed: %w", err)
	}

	req, err = p.newGetRequest(ctx, "api/meters/aggregates")
	if err != nil {
		return types.BatterySnapshot{}, err
	}
	var agg aggregatesResult
	if err := p.doRequest(req, &agg); err != nil {
		return types.BatterySnapshot{}, fmt.Errorf("aggregates failed: %w", err)
	}

	snap := types.BatterySnapshot{
		Percentage:    soe.Percentage,
		BackupMinutes: runwayMinutes(ss.NominalEnergyRemainingWH, agg.Load.InstantPower),
		Timestamp:     time.Now(),
	}

	log.Ctx(ctx).DebugContext(ctx, "powerwall snapshot",
		slog.Float64("percentage", snap.Percentage),
		slog.Float64("backupMinutes", snap.BackupMinutes),
		slog.Float64("loadW", agg.Load.InstantPower),
		slog.Float64("remainingWH", ss.NominalEnergyRemainingWH),
	)
	return snap, nil
}

// runwayMinutes estimates how long the remaining energy lasts at the current
// load. Loads under 100W mean the home is essentially idle and the estimate
// is meaningless, so it saturates at the cap.
func runwayMinutes(remainingWH, loadW float64) float64 {
	if remainingWH <= 0 {
		return 0
	}
	if loadW < 100 {
		return maxRunwayMinutes
	}
	return math.Min(remainingWH/loadW*60, maxRunwayMinutes)
}

// GetReserve returns the currently configured backup reserve percentage.
func (p *Powerwall) GetReserve(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	req, err := p.newGetRequest(ctx, "api/operation")
	if err != nil {
		return 0, err
	}
	var op operationResult
	if err := p.doRequest(req, &op); err != nil {
		return 0, fmt.Errorf("operation failed: %w", err)
	}
	return int(math.Round(op.BackupReservePct)), nil
}

// SetReserve sets the backup reserve percentage, preserving the gateway's
// current operating mode.
func (p *Powerwall) SetReserve(ctx context.Context, pct int) error {
	if pct < 0 || pct > 100 {
		return fmt.Errorf("reserve out of range: %d", pct)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// the operation endpoint replaces the whole document, so read the mode
	// first rather than clobbering it
	req, err := p.newGetRequest(ctx, "api/operation")
	if err != nil {
		return err
	}
	var op operationResult
	if err := p.doRequest(req, &op); err != nil {
		return fmt.Errorf("operation read failed: %w", err)
	}

	log.Ctx(ctx).InfoContext(ctx, "setting powerwall backup reserve",
		slog.Int("pct", pct),
		slog.Float64("previousPct", op.BackupReservePct),
		slog.String("mode", op.RealMode),
	)

	req, err = p.newPostJSONRequest(ctx, "api/operation", map[string]interface{}{
		"real_mode":              op.RealMode,
		"backup_reserve_percent": float64(pct),
	})
	if err != nil {
		return err
	}
	if err := p.doRequest(req, &struct{}{}); err != nil {
		return fmt.Errorf("operation write failed: %w", err)
	}
	return nil
}
