package thermostat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peakshed/peakshed/pkg/common"
)

func testLyric(ts *httptest.Server) *Lyric {
	return &Lyric{
		client: common.NewClient("thermostat-test", time.Second, common.DefaultRetryPolicy(),
			common.WithSleepFunc(func(time.Duration) {})),
		baseURL:      ts.URL,
		clientID:     "cid",
		clientSecret: "csecret",
		locationID:   "loc1",
		refreshToken: "refresh1",
	}
}

func writeToken(w http.ResponseWriter, access, refresh string) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"access_token":  access,
		"refresh_token": refresh,
		"expires_in":    "1799",
	})
}

func TestLyric(t *testing.T) {
	t.Run("TokenRefresh", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/oauth2/token" {
				user, pass, ok := r.BasicAuth()
				require.True(t, ok)
				assert.Equal(t, "cid", user)
				assert.Equal(t, "csecret", pass)
				require.NoError(t, r.ParseForm())
				assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
				assert.Equal(t, "refresh1", r.Form.Get("refresh_token"))

				writeToken(w, "access1", "refresh2")
				return
			}
			http.Error(w, "not found", 404)
		}))
		defer ts.Close()

		l := testLyric(ts)
		require.NoError(t, l.ensureToken(context.Background()))
		assert.Equal(t, "access1", l.accessToken)
		// rotated refresh token must be kept
		assert.Equal(t, "refresh2", l.refreshToken)
		assert.True(t, l.tokenExpiry.After(time.Now()))
	})

	t.Run("GetSetpoints", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/oauth2/token":
				writeToken(w, "access1", "refresh2")
			case "/v2/devices/thermostats/TH1":
				assert.Equal(t, "Bearer access1", r.Header.Get("Authorization"))
				assert.Equal(t, "cid", r.URL.Query().Get("apikey"))
				assert.Equal(t, "loc1", r.URL.Query().Get("locationId"))
				json.NewEncoder(w).Encode(map[string]interface{}{
					"changeableValues": map[string]interface{}{
						"mode":         "Cool",
						"coolSetpoint": 76.0,
						"heatSetpoint": 68.0,
					},
				})
			default:
				http.Error(w, "not found: "+r.URL.Path, 404)
			}
		}))
		defer ts.Close()

		l := testLyric(ts)
		sp, err := l.GetSetpoints(context.Background(), "TH1")
		require.NoError(t, err)
		assert.Equal(t, Setpoints{CoolF: 76, HeatF: 68, Mode: "Cool"}, sp)
	})

	t.Run("SetCoolSetpoint", func(t *testing.T) {
		var wrote map[string]interface{}
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/oauth2/token":
				writeToken(w, "access1", "refresh2")
			case "/v2/devices/thermostats/TH1":
				if r.Method == http.MethodPost {
					require.NoError(t, json.NewDecoder(r.Body).Decode(&wrote))
					w.Write([]byte("{}"))
					return
				}
				json.NewEncoder(w).Encode(map[string]interface{}{
					"changeableValues": map[string]interface{}{
						"mode":         "Cool",
						"coolSetpoint": 76.0,
						"heatSetpoint": 68.0,
					},
				})
			default:
				http.Error(w, "not found", 404)
			}
		}))
		defer ts.Close()

		l := testLyric(ts)
		require.NoError(t, l.SetCoolSetpoint(context.Background(), "TH1", 73))

		require.NotNil(t, wrote)
		assert.Equal(t, 73.0, wrote["coolSetpoint"])
		assert.Equal(t, "TemporaryHold", wrote["thermostatSetpointStatus"])
		// mode and heat setpoint read before the write must be preserved
		assert.Equal(t, "Cool", wrote["mode"])
		assert.Equal(t, 68.0, wrote["heatSetpoint"])
	})

	t.Run("TokenExpiredRetry", func(t *testing.T) {
		var refreshes int
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/oauth2/token":
				refreshes++
				writeToken(w, "access-new", "refresh2")
			case "/v2/devices/thermostats/TH1":
				if r.Header.Get("Authorization") != "Bearer access-new" {
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
				json.NewEncoder(w).Encode(map[string]interface{}{
					"changeableValues": map[string]interface{}{
						"mode":         "Cool",
						"coolSetpoint": 74.0,
						"heatSetpoint": 68.0,
					},
				})
			default:
				http.Error(w, "not found", 404)
			}
		}))
		defer ts.Close()

		l := testLyric(ts)
		l.accessToken = "stale"
		l.tokenExpiry = time.Now().Add(time.Hour)

		sp, err := l.GetSetpoints(context.Background(), "TH1")
		require.NoError(t, err)
		assert.Equal(t, 74.0, sp.CoolF)
		assert.Equal(t, 1, refreshes)
	})
}
