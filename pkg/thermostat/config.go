package thermostat

import (
	"fmt"

	"github.com/levenlabs/go-lflag"

	"github.com/peakshed/peakshed/pkg/config"
)

// Configured sets up the thermostat provider based on flags. Credentials come
// from conf, which must be populated before flags are parsed, so call
// config.Configured first.
func Configured(conf *config.Loaded) Client {
	provider := lflag.String("thermostat-provider", "lyric", "Thermostat provider to use (available: lyric, mock)")

	var p struct{ Client }

	lflag.Do(func() {
		switch *provider {
		case "lyric":
			sec := conf.Secrets.Thermostat
			if sec.ClientID == "" || sec.ClientSecret == "" {
				panic("lyric requires THERMOSTAT_CLIENT_ID and THERMOSTAT_CLIENT_SECRET")
			}
			p.Client = newLyric(sec.ClientID, sec.ClientSecret, sec.RefreshToken, sec.LocationID)
		case "mock":
			p.Client = NewMock(conf.Settings.ThermostatIDs...)
		default:
			panic(fmt.Sprintf("unknown thermostat provider: %s", *provider))
		}
	})

	return &p
}
