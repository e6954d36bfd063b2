package forecast

import (
	"fmt"

	"github.com/levenlabs/go-lflag"

	"github.com/peakshed/peakshed/pkg/config"
)

// Configured sets up the forecast provider based on flags. The gridpoint
// comes from conf, which must be populated before flags are parsed, so call
// config.Configured first.
func Configured(conf *config.Loaded) Client {
	provider := lflag.String("forecast-provider", "nws", "Forecast provider to use (available: nws, mock)")

	var p struct{ Client }

	lflag.Do(func() {
		switch *provider {
		case "nws":
			sec := conf.Secrets.Forecast
			if sec.Office == "" {
				panic("nws requires FORECAST_OFFICE")
			}
			p.Client = newNWS(sec.Office, sec.GridX, sec.GridY)
		case "mock":
			p.Client = NewMock(90)
		default:
			panic(fmt.Sprintf("unknown forecast provider: %s", *provider))
		}
	})

	return &p
}
