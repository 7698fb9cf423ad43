package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intern-exchange/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const validConfig = `
market_phases:
  timezone: UTC
  schedule:
    continuous:
      start_time: "09:30"
      end_time: "16:00"
      weekdays: [Monday, Tuesday, Wednesday, Thursday, Friday]
  phase_states:
    continuous:
      is_order_submission_allowed: true
      is_order_cancellation_allowed: true
      is_matching_enabled: true
      execution_style: continuous

roles:
  market_maker:
    constraints:
      - type: order_size
        parameters:
          min_size: 1
          max_size: 1000
        error_code: BAD_SIZE
        error_message: order size out of range
    fees:
      maker: -0.02
      taker: 0.05

response_coordinator:
  default_timeout_seconds: 2.5
  max_pending_requests: 1000
  cleanup_interval_seconds: 10
  request_id_prefix: req

instruments: [AAPL, MSFT]

teams:
  team-1: market_maker
`

func TestLoad_ValidConfigBuildsExpectedStructure(t *testing.T) {
	path := writeConfig(t, validConfig)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, time.UTC, cfg.Location)
	assert.Equal(t, []string{"AAPL", "MSFT"}, cfg.Instruments)
	require.Len(t, cfg.Windows, 1)
	assert.Equal(t, domain.PhaseContinuous, cfg.Windows[0].Phase)
	assert.Equal(t, 9*time.Hour+30*time.Minute, cfg.Windows[0].Start)

	state := cfg.PhaseStates[domain.PhaseContinuous]
	assert.True(t, state.SubmissionAllowed)
	assert.Equal(t, domain.ExecutionContinuous, state.ExecutionStyle)

	require.Contains(t, cfg.RoleFees, "market_maker")
	assert.Equal(t, -0.02, cfg.RoleFees["market_maker"].Maker)

	require.Len(t, cfg.RoleConstraints["market_maker"], 1)

	assert.Equal(t, 2500*time.Millisecond, cfg.Coordinator.DefaultTimeout)
	assert.Equal(t, 1000, cfg.Coordinator.MaxPending)
	assert.Equal(t, "req", cfg.Coordinator.RequestIDPrefix)

	role, ok := cfg.RoleOf("team-1")
	assert.True(t, ok)
	assert.Equal(t, "market_maker", role)

	_, ok = cfg.RoleOf("nonexistent")
	assert.False(t, ok)
}

func TestLoad_MissingFileIsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidTimezoneIsError(t *testing.T) {
	path := writeConfig(t, `
market_phases:
  timezone: Not/A_Real_Zone
  schedule: {}
  phase_states: {}
roles: {}
response_coordinator:
  default_timeout_seconds: 1
  max_pending_requests: 1
  cleanup_interval_seconds: 1
  request_id_prefix: req
instruments: [AAPL]
teams: {}
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_UnrecognizedWeekdayIsError(t *testing.T) {
	body := `
market_phases:
  timezone: UTC
  schedule:
    continuous:
      start_time: "09:30"
      end_time: "16:00"
      weekdays: [Funday]
  phase_states: {}
roles: {}
response_coordinator:
  default_timeout_seconds: 1
  max_pending_requests: 1
  cleanup_interval_seconds: 1
  request_id_prefix: req
instruments: [AAPL]
teams: {}
`
	_, err := Load(writeConfig(t, body))
	assert.Error(t, err)
}

func TestLoad_EndBeforeStartIsError(t *testing.T) {
	body := `
market_phases:
  timezone: UTC
  schedule:
    continuous:
      start_time: "16:00"
      end_time: "09:30"
      weekdays: [Monday]
  phase_states: {}
roles: {}
response_coordinator:
  default_timeout_seconds: 1
  max_pending_requests: 1
  cleanup_interval_seconds: 1
  request_id_prefix: req
instruments: [AAPL]
teams: {}
`
	_, err := Load(writeConfig(t, body))
	assert.Error(t, err)
}

func TestLoad_UnrecognizedExecutionStyleIsError(t *testing.T) {
	body := `
market_phases:
  timezone: UTC
  schedule: {}
  phase_states:
    continuous:
      is_order_submission_allowed: true
      is_order_cancellation_allowed: true
      is_matching_enabled: true
      execution_style: warp_speed
roles: {}
response_coordinator:
  default_timeout_seconds: 1
  max_pending_requests: 1
  cleanup_interval_seconds: 1
  request_id_prefix: req
instruments: [AAPL]
teams: {}
`
	_, err := Load(writeConfig(t, body))
	assert.Error(t, err)
}

func TestLoad_NoInstrumentsIsError(t *testing.T) {
	body := `
market_phases:
  timezone: UTC
  schedule: {}
  phase_states: {}
roles: {}
response_coordinator:
  default_timeout_seconds: 1
  max_pending_requests: 1
  cleanup_interval_seconds: 1
  request_id_prefix: req
instruments: []
teams: {}
`
	_, err := Load(writeConfig(t, body))
	assert.Error(t, err)
}

func TestLoad_NoTeamsIsError(t *testing.T) {
	body := `
market_phases:
  timezone: UTC
  schedule: {}
  phase_states: {}
roles: {}
response_coordinator:
  default_timeout_seconds: 1
  max_pending_requests: 1
  cleanup_interval_seconds: 1
  request_id_prefix: req
instruments: [AAPL]
teams: {}
`
	_, err := Load(writeConfig(t, body))
	assert.Error(t, err)
}

func TestLoad_TeamWithUnrecognizedRoleIsError(t *testing.T) {
	body := `
market_phases:
  timezone: UTC
  schedule: {}
  phase_states: {}
roles:
  market_maker:
    fees:
      maker: 0
      taker: 0
response_coordinator:
  default_timeout_seconds: 1
  max_pending_requests: 1
  cleanup_interval_seconds: 1
  request_id_prefix: req
instruments: [AAPL]
teams:
  team-1: ghost_role
`
	_, err := Load(writeConfig(t, body))
	assert.Error(t, err)
}

func TestLoad_RoleWithNoFeesBlockIsError(t *testing.T) {
	body := `
market_phases:
  timezone: UTC
  schedule: {}
  phase_states: {}
roles:
  market_maker:
    constraints: []
response_coordinator:
  default_timeout_seconds: 1
  max_pending_requests: 1
  cleanup_interval_seconds: 1
  request_id_prefix: req
instruments: [AAPL]
teams:
  team-1: market_maker
`
	_, err := Load(writeConfig(t, body))
	assert.Error(t, err)
}

func TestLoad_MissingCoordinatorTunablesIsError(t *testing.T) {
	body := `
market_phases:
  timezone: UTC
  schedule: {}
  phase_states: {}
roles: {}
response_coordinator:
  default_timeout_seconds: 0
  max_pending_requests: 1
  cleanup_interval_seconds: 1
  request_id_prefix: req
instruments: [AAPL]
teams: {}
`
	_, err := Load(writeConfig(t, body))
	assert.Error(t, err)
}
