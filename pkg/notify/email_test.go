package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peakshed/peakshed/pkg/common"
	"github.com/peakshed/peakshed/pkg/types"
)

func testEmail(ts *httptest.Server) *Email {
	return &Email{
		client: common.NewClient("mail-test", time.Second, common.DefaultRetryPolicy(),
			common.WithSleepFunc(func(time.Duration) {})),
		baseURL: ts.URL,
		apiKey:  "sk-test",
		from:    "peakshed@example.com",
		to:      "owner@example.com",
	}
}

func TestEmailSend(t *testing.T) {
	t.Run("warning delivered", func(t *testing.T) {
		var payload map[string]interface{}
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v3/mail/send", r.URL.Path)
			assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			w.WriteHeader(http.StatusAccepted)
		}))
		defer ts.Close()

		e := testEmail(ts)
		require.NoError(t, e.Send(context.Background(), types.LevelWarning, "battery runway low", "details"))

		require.NotNil(t, payload)
		assert.Equal(t, "[WARNING] battery runway low", payload["subject"])
		from := payload["from"].(map[string]interface{})
		assert.Equal(t, "peakshed@example.com", from["email"])
	})

	t.Run("info suppressed", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("no request expected for INFO")
		}))
		defer ts.Close()

		e := testEmail(ts)
		require.NoError(t, e.Send(context.Background(), types.LevelInfo, "s", "b"))
	})

	t.Run("rejection surfaces error", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"errors":[{"message":"bad"}]}`, http.StatusBadRequest)
		}))
		defer ts.Close()

		e := testEmail(ts)
		assert.Error(t, e.Send(context.Background(), types.LevelCritical, "s", "b"))
	})
}

func TestMulti(t *testing.T) {
	ctx := context.Background()

	t.Run("fans out", func(t *testing.T) {
		a, b := &Mock{}, &Mock{}
		m := Multi{a, b}
		require.NoError(t, m.Send(ctx, types.LevelWarning, "s", "b"))
		assert.Len(t, a.Sent, 1)
		assert.Len(t, b.Sent, 1)
	})

	t.Run("one failure does not block others", func(t *testing.T) {
		a := &Mock{Err: errors.New("down")}
		b := &Mock{}
		m := Multi{a, b}
		err := m.Send(ctx, types.LevelCritical, "s", "b")
		assert.Error(t, err)
		assert.Len(t, b.Sent, 1)
	})
}
