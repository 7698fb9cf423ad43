// Package config loads the exchange's YAML configuration: market
// phase schedule and capability table, per-role constraint chains and
// fee schedules, and response coordinator tunables. Every value is
// validated at load time with a fatal error for anything invalid or
// missing — the exchange never starts in a half-configured state.
//
// Grounded on original_source's ConfigLoader/models
// (test_market_phases_config.py, test_role_config.py, test_fee_config.py,
// test_response_coordinator_config.py), using gopkg.in/yaml.v3 in place
// of the teacher's unused config surface (fenrir has none — this
// package is new).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"intern-exchange/internal/domain"
	"intern-exchange/internal/fees"
	"intern-exchange/internal/phase"
	"intern-exchange/internal/validation"
)

// raw mirrors the YAML document shape exactly; Load converts it into
// the typed, validated configuration the rest of the exchange uses.
type raw struct {
	MarketPhases struct {
		Timezone string `yaml:"timezone"`
		Schedule map[string]struct {
			StartTime string   `yaml:"start_time"`
			EndTime   string   `yaml:"end_time"`
			Weekdays  []string `yaml:"weekdays"`
		} `yaml:"schedule"`
		PhaseStates map[string]struct {
			SubmissionAllowed   bool   `yaml:"is_order_submission_allowed"`
			CancellationAllowed bool   `yaml:"is_order_cancellation_allowed"`
			MatchingEnabled     bool   `yaml:"is_matching_enabled"`
			ExecutionStyle      string `yaml:"execution_style"`
		} `yaml:"phase_states"`
	} `yaml:"market_phases"`

	Roles map[string]struct {
		Constraints []struct {
			Type         string         `yaml:"type"`
			Parameters   map[string]any `yaml:"parameters"`
			ErrorCode    string         `yaml:"error_code"`
			ErrorMessage string         `yaml:"error_message"`
		} `yaml:"constraints"`
		Fees *struct {
			Maker float64 `yaml:"maker"`
			Taker float64 `yaml:"taker"`
		} `yaml:"fees"`
	} `yaml:"roles"`

	ResponseCoordinator struct {
		DefaultTimeoutSeconds  float64 `yaml:"default_timeout_seconds"`
		MaxPendingRequests     int     `yaml:"max_pending_requests"`
		CleanupIntervalSeconds float64 `yaml:"cleanup_interval_seconds"`
		RequestIDPrefix        string  `yaml:"request_id_prefix"`
	} `yaml:"response_coordinator"`

	Instruments []string `yaml:"instruments"`

	Teams map[string]string `yaml:"teams"` // team_id -> role
}

// Config is the fully validated, typed configuration.
type Config struct {
	Location        *time.Location
	Windows         []phase.Window
	PhaseStates     map[domain.PhaseType]domain.PhaseState
	RoleConstraints map[string][]validation.Config
	RoleFees        map[string]fees.RoleRates
	Coordinator     coordinatorConfig
	Instruments     []string
	Teams           map[string]string
}

// RoleOf looks up the role registered for a team, for use as the
// pipeline and TCP server's team-identity lookup.
func (c *Config) RoleOf(teamID string) (string, bool) {
	role, ok := c.Teams[teamID]
	return role, ok
}

type coordinatorConfig struct {
	DefaultTimeout  time.Duration
	MaxPending      int
	CleanupInterval time.Duration
	RequestIDPrefix string
}

var weekdayNames = map[string]time.Weekday{
	"Sunday": time.Sunday, "Monday": time.Monday, "Tuesday": time.Tuesday,
	"Wednesday": time.Wednesday, "Thursday": time.Thursday, "Friday": time.Friday,
	"Saturday": time.Saturday,
}

var executionStyles = map[string]domain.ExecutionStyle{
	"none":       domain.ExecutionNone,
	"batch":      domain.ExecutionBatch,
	"continuous": domain.ExecutionContinuous,
}

// Load reads and validates a configuration file. Every failure is
// returned as an error describing exactly what was wrong — callers are
// expected to treat any error as fatal to startup.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var r raw
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return build(&r)
}

func build(r *raw) (*Config, error) {
	loc, err := time.LoadLocation(r.MarketPhases.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid market_phases.timezone %q: %w", r.MarketPhases.Timezone, err)
	}

	windows, err := buildWindows(r)
	if err != nil {
		return nil, err
	}
	states, err := buildPhaseStates(r)
	if err != nil {
		return nil, err
	}
	roleConstraints, err := buildRoleConstraints(r)
	if err != nil {
		return nil, err
	}
	roleFees, err := buildRoleFees(r)
	if err != nil {
		return nil, err
	}

	coord, err := buildCoordinator(r)
	if err != nil {
		return nil, err
	}

	if len(r.Instruments) == 0 {
		return nil, fmt.Errorf("instruments: at least one instrument must be configured")
	}

	if err := validateTeams(r); err != nil {
		return nil, err
	}

	return &Config{
		Location:        loc,
		Windows:         windows,
		PhaseStates:     states,
		RoleConstraints: roleConstraints,
		RoleFees:        roleFees,
		Coordinator:     coord,
		Instruments:     r.Instruments,
		Teams:           r.Teams,
	}, nil
}

// validateTeams requires every registered team to name a role that
// is declared under roles — an unknown role here would otherwise
// surface much later as a silent validation no-op. A declared role
// missing its fees block is rejected separately by buildRoleFees.
func validateTeams(r *raw) error {
	if len(r.Teams) == 0 {
		return fmt.Errorf("teams: at least one team must be configured")
	}
	for teamID, role := range r.Teams {
		if _, ok := r.Roles[role]; !ok {
			return fmt.Errorf("teams[%s]: unrecognized role %q", teamID, role)
		}
	}
	return nil
}

func buildWindows(r *raw) ([]phase.Window, error) {
	var windows []phase.Window
	for name, sched := range r.MarketPhases.Schedule {
		phaseName := domain.PhaseType(name)
		start, err := parseTimeOfDay(sched.StartTime)
		if err != nil {
			return nil, fmt.Errorf("schedule[%s].start_time: %w", name, err)
		}
		end, err := parseTimeOfDay(sched.EndTime)
		if err != nil {
			return nil, fmt.Errorf("schedule[%s].end_time: %w", name, err)
		}
		if end <= start {
			return nil, fmt.Errorf("schedule[%s]: end_time must be after start_time", name)
		}
		days := make(map[time.Weekday]bool, len(sched.Weekdays))
		for _, d := range sched.Weekdays {
			wd, ok := weekdayNames[d]
			if !ok {
				return nil, fmt.Errorf("schedule[%s].weekdays: unrecognized weekday %q", name, d)
			}
			days[wd] = true
		}
		windows = append(windows, phase.Window{Phase: phaseName, Start: start, End: end, Weekdays: days})
	}
	return windows, nil
}

func parseTimeOfDay(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func buildPhaseStates(r *raw) (map[domain.PhaseType]domain.PhaseState, error) {
	states := make(map[domain.PhaseType]domain.PhaseState, len(r.MarketPhases.PhaseStates))
	for name, s := range r.MarketPhases.PhaseStates {
		style, ok := executionStyles[s.ExecutionStyle]
		if !ok {
			return nil, fmt.Errorf("phase_states[%s].execution_style: unrecognized value %q", name, s.ExecutionStyle)
		}
		phaseName := domain.PhaseType(name)
		states[phaseName] = domain.PhaseState{
			Phase:               phaseName,
			SubmissionAllowed:   s.SubmissionAllowed,
			CancellationAllowed: s.CancellationAllowed,
			MatchingEnabled:     s.MatchingEnabled,
			ExecutionStyle:      style,
		}
	}
	return states, nil
}

func buildRoleConstraints(r *raw) (map[string][]validation.Config, error) {
	out := make(map[string][]validation.Config, len(r.Roles))
	for role, rc := range r.Roles {
		var chain []validation.Config
		for _, c := range rc.Constraints {
			chain = append(chain, validation.Config{
				Kind:         validation.ConstraintKind(c.Type),
				Parameters:   c.Parameters,
				ErrorCode:    c.ErrorCode,
				ErrorMessage: c.ErrorMessage,
			})
		}
		out[role] = chain
	}
	return out, nil
}

// buildRoleFees requires every declared role to carry an explicit
// fees block — an absent one is a fatal load error, not a silent
// zero-rate schedule.
func buildRoleFees(r *raw) (map[string]fees.RoleRates, error) {
	out := make(map[string]fees.RoleRates, len(r.Roles))
	for role, rc := range r.Roles {
		if rc.Fees == nil {
			return nil, fmt.Errorf("roles[%s]: missing fees", role)
		}
		out[role] = fees.RoleRates{Maker: rc.Fees.Maker, Taker: rc.Fees.Taker}
	}
	return out, nil
}

func buildCoordinator(r *raw) (coordinatorConfig, error) {
	rc := r.ResponseCoordinator
	if rc.DefaultTimeoutSeconds <= 0 {
		return coordinatorConfig{}, fmt.Errorf("response_coordinator.default_timeout_seconds must be positive")
	}
	if rc.MaxPendingRequests <= 0 {
		return coordinatorConfig{}, fmt.Errorf("response_coordinator.max_pending_requests must be positive")
	}
	if rc.CleanupIntervalSeconds <= 0 {
		return coordinatorConfig{}, fmt.Errorf("response_coordinator.cleanup_interval_seconds must be positive")
	}
	if rc.RequestIDPrefix == "" {
		return coordinatorConfig{}, fmt.Errorf("response_coordinator.request_id_prefix must be set")
	}
	return coordinatorConfig{
		DefaultTimeout:  time.Duration(rc.DefaultTimeoutSeconds * float64(time.Second)),
		MaxPending:      rc.MaxPendingRequests,
		CleanupInterval: time.Duration(rc.CleanupIntervalSeconds * float64(time.Second)),
		RequestIDPrefix: rc.RequestIDPrefix,
	}, nil
}
