package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Secrets holds credentials and endpoints resolved from the environment.
// They are kept out of the YAML control document so the document can be
// checked into version control.
type Secrets struct {
	Battery struct {
		Host     string `envconfig:"BATTERY_HOST"`
		Email    string `envconfig:"BATTERY_EMAIL"`
		Password string `envconfig:"BATTERY_PASSWORD"`
	}

	Thermostat struct {
		ClientID     string `envconfig:"THERMOSTAT_CLIENT_ID"`
		ClientSecret string `envconfig:"THERMOSTAT_CLIENT_SECRET"`
		RefreshToken string `envconfig:"THERMOSTAT_REFRESH_TOKEN"`
		LocationID   string `envconfig:"THERMOSTAT_LOCATION_ID"`
	}

	Forecast struct {
		Office string `envconfig:"FORECAST_OFFICE"`
		GridX  int    `envconfig:"FORECAST_GRID_X"`
		GridY  int    `envconfig:"FORECAST_GRID_Y"`
	}

	Mail struct {
		APIKey string `envconfig:"MAIL_API_KEY"`
		From   string `envconfig:"MAIL_FROM"`
		To     string `envconfig:"MAIL_TO"`
	}

	MQTT struct {
		Broker   string `envconfig:"MQTT_BROKER"`
		Username string `envconfig:"MQTT_USERNAME"`
		Password string `envconfig:"MQTT_PASSWORD"`
		Topic    string `envconfig:"MQTT_TOPIC" default:"peakshed/decision"`
	}
}

// LoadSecrets resolves Secrets from the process environment. Callers load a
// dotenv file first if they want file-based secrets in development.
func LoadSecrets() (Secrets, error) {
	var s Secrets
	if err := envconfig.Process("peakshed", &s); err != nil {
		return Secrets{}, fmt.Errorf("failed to process environment: %w", err)
	}
	return s, nil
}
