// Package config loads the YAML control document and process secrets. The
// document is read once at startup, validated, and converted into an immutable
// types.Settings; any error here is fatal so a misconfigured process never
// reaches the control loop.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/peakshed/peakshed/pkg/types"
)

// Document is the YAML shape of the control document. Clock fields are
// "HH:MM" strings and weekday/month lists are lowercase names, both converted
// during Load.
type Document struct {
	CycleInterval time.Duration `mapstructure:"cycleInterval" validate:"min=1m,max=1h"`
	DryRun        bool          `mapstructure:"dryRun"`

	Seasons  map[string]SeasonDoc `mapstructure:"seasons" validate:"required,dive"`
	Holidays []string             `mapstructure:"holidays" validate:"dive,datetime=2006-01-02"`

	Reserve ReserveDoc `mapstructure:"reserve"`
	Precool PrecoolDoc `mapstructure:"precool"`

	Rules []RuleDoc `mapstructure:"rules" validate:"dive"`

	BaselineCoolF int `mapstructure:"baselineCoolF" validate:"required"`
	MaxSetpointF  int `mapstructure:"maxSetpointF" validate:"required,gtfield=BaselineCoolF"`
	MinSetpointF  int `mapstructure:"minSetpointF" validate:"required,ltfield=BaselineCoolF"`

	Thermostats []string `mapstructure:"thermostats"`

	EODBatteryWarnPct float64 `mapstructure:"eodBatteryWarnPct" validate:"gte=0,lte=100"`
}

// SeasonDoc configures one rate season.
type SeasonDoc struct {
	Months             []string    `mapstructure:"months" validate:"required,dive,oneof=january february march april may june july august september october november december"`
	PeakWindows        []WindowDoc `mapstructure:"peakWindows" validate:"dive"`
	PrePeakLeadMinutes int         `mapstructure:"prePeakLeadMinutes" validate:"gte=0,lt=1440"`
}

// WindowDoc is a single peak window in local clock time, inclusive on both
// ends. End before start means the window crosses midnight.
type WindowDoc struct {
	Start    string   `mapstructure:"start" validate:"required"`
	End      string   `mapstructure:"end" validate:"required"`
	Weekdays []string `mapstructure:"weekdays" validate:"dive,oneof=sunday monday tuesday wednesday thursday friday saturday"`
}

// ReserveDoc configures the per-period battery reserve targets.
type ReserveDoc struct {
	PeakPct    int `mapstructure:"peakPct" validate:"gte=0,lte=100"`
	OffPeakPct int `mapstructure:"offPeakPct" validate:"gte=0,lte=100"`
}

// PrecoolDoc configures precooling ahead of summer peak windows.
type PrecoolDoc struct {
	Enabled        bool    `mapstructure:"enabled"`
	TempThresholdF float64 `mapstructure:"tempThresholdF" validate:"gte=0"`
	AdjustmentF    int     `mapstructure:"adjustmentF" validate:"gte=0,lte=10"`
}

// RuleDoc is one row of the runway threshold table.
type RuleDoc struct {
	MaxBackupMinutes int `mapstructure:"maxBackupMinutes" validate:"gt=0"`
	MaxBatteryPct    int `mapstructure:"maxBatteryPct" validate:"gt=0,lte=100"`
	DeltaF           int `mapstructure:"deltaF" validate:"gt=0,lte=10"`
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

var monthNames = map[string]time.Month{
	"january":   time.January,
	"february":  time.February,
	"march":     time.March,
	"april":     time.April,
	"may":       time.May,
	"june":      time.June,
	"july":      time.July,
	"august":    time.August,
	"september": time.September,
	"october":   time.October,
	"november":  time.November,
	"december":  time.December,
}

// parseClock converts an "HH:MM" string into a minute-of-day offset.
func parseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

// Load reads the control document at path and returns fully validated
// settings. A missing file falls back to the stock defaults so the control
// loop can run out of the box.
func Load(path string) (types.Settings, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("cycleInterval", "5m")
	v.SetDefault("reserve.offPeakPct", 20)
	v.SetDefault("precool.enabled", true)
	v.SetDefault("precool.tempThresholdF", 95.0)
	v.SetDefault("precool.adjustmentF", 3)
	v.SetDefault("baselineCoolF", 76)
	v.SetDefault("maxSetpointF", 85)
	v.SetDefault("minSetpointF", 68)
	v.SetDefault("eodBatteryWarnPct", 20.0)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok || os.IsNotExist(err) {
			return types.DefaultSettings(), nil
		}
		return types.Settings{}, fmt.Errorf("failed to read config: %w", err)
	}

	var doc Document
	if err := v.Unmarshal(&doc); err != nil {
		return types.Settings{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(doc); err != nil {
		return types.Settings{}, fmt.Errorf("config validation failed: %w", err)
	}

	s, err := doc.toSettings()
	if err != nil {
		return types.Settings{}, err
	}

	if err := s.Calendar.Validate(); err != nil {
		return types.Settings{}, fmt.Errorf("invalid calendar: %w", err)
	}
	if err := types.ValidateRules(s.Rules); err != nil {
		return types.Settings{}, fmt.Errorf("invalid rules: %w", err)
	}
	return s, nil
}

func (d Document) toSettings() (types.Settings, error) {
	s := types.Settings{
		CycleInterval:     d.CycleInterval,
		DryRun:            d.DryRun,
		Reserve:           types.ReserveSettings(d.Reserve),
		BaselineCoolF:     d.BaselineCoolF,
		MaxSetpointF:      d.MaxSetpointF,
		MinSetpointF:      d.MinSetpointF,
		ThermostatIDs:     d.Thermostats,
		EODBatteryWarnPct: d.EODBatteryWarnPct,
		Precool: types.PrecoolSettings{
			Enabled:        d.Precool.Enabled,
			TempThresholdF: d.Precool.TempThresholdF,
			AdjustmentF:    d.Precool.AdjustmentF,
		},
	}

	cal := types.Calendar{
		Seasons:  make(map[types.Season]types.SeasonConfig, len(d.Seasons)),
		Holidays: d.Holidays,
	}
	for name, sd := range d.Seasons {
		season := types.Season(strings.ToLower(name))
		if season != types.SeasonSummer && season != types.SeasonWinter {
			return types.Settings{}, fmt.Errorf("unknown season %q", name)
		}

		sc := types.SeasonConfig{PrePeakLeadMinutes: sd.PrePeakLeadMinutes}
		for _, m := range sd.Months {
			sc.Months = append(sc.Months, monthNames[strings.ToLower(m)])
		}
		for _, wd := range sd.PeakWindows {
			w, err := wd.toWindow()
			if err != nil {
				return types.Settings{}, fmt.Errorf("season %q: %w", name, err)
			}
			sc.PeakWindows = append(sc.PeakWindows, w)
		}
		cal.Seasons[season] = sc
	}
	s.Calendar = cal

	if len(d.Rules) == 0 {
		s.Rules = types.DefaultThresholdRules()
	} else {
		for _, r := range d.Rules {
			s.Rules = append(s.Rules, types.ThresholdRule(r))
		}
	}
	return s, nil
}

func (w WindowDoc) toWindow() (types.PeakWindow, error) {
	start, err := parseClock(w.Start)
	if err != nil {
		return types.PeakWindow{}, err
	}
	end, err := parseClock(w.End)
	if err != nil {
		return types.PeakWindow{}, err
	}
	pw := types.PeakWindow{StartMinute: start, EndMinute: end}
	for _, name := range w.Weekdays {
		pw.Weekdays = append(pw.Weekdays, weekdayNames[strings.ToLower(name)])
	}
	return pw, nil
}
