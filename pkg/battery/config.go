package battery

import (
	"fmt"

	"github.com/levenlabs/go-lflag"

	"github.com/peakshed/peakshed/pkg/config"
)

// Configured sets up the battery provider based on flags. Credentials come
// from conf, which must be populated before flags are parsed, so call
// config.Configured first.
func Configured(conf *config.Loaded) Client {
	provider := lflag.String("battery-provider", "powerwall", "Battery provider to use (available: powerwall, mock)")

	var p struct{ Client }

	lflag.Do(func() {
		switch *provider {
		case "powerwall":
			sec := conf.Secrets.Battery
			if sec.Host == "" {
				panic("powerwall requires BATTERY_HOST")
			}
			p.Client = newPowerwall(sec.Host, sec.Email, sec.Password)
		case "mock":
			p.Client = NewMock()
		default:
			panic(fmt.Sprintf("unknown battery provider: %s", *provider))
		}
	})

	return &p
}
