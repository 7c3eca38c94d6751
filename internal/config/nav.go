package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/banshee-data/navcore/internal/avoidance"
	"github.com/banshee-data/navcore/internal/lidar"
	"github.com/banshee-data/navcore/internal/motion"
	"github.com/banshee-data/navcore/internal/planner"
)

// DefaultConfigPath is the canonical defaults file shipped with the repo.
const DefaultConfigPath = "config/navcore.defaults.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// NavConfig holds every tunable of the navigation core. Unset fields fall
// back to the defaults returned by the Get* accessors, so partial files are
// safe. Durations are strings like "600ms".
type NavConfig struct {
	// Avoidance
	EmergencyStopMM  *float64 `json:"emergency_stop_mm,omitempty" toml:"emergency_stop_mm" yaml:"emergency_stop_mm,omitempty"`
	AvoidThresholdMM *float64 `json:"avoid_threshold_mm,omitempty" toml:"avoid_threshold_mm" yaml:"avoid_threshold_mm,omitempty"`
	TurnDuration     *string  `json:"turn_duration,omitempty" toml:"turn_duration" yaml:"turn_duration,omitempty"`
	ClearDebounce    *string  `json:"clear_debounce,omitempty" toml:"clear_debounce" yaml:"clear_debounce,omitempty"`
	TurnPolicy       *string  `json:"turn_policy,omitempty" toml:"turn_policy" yaml:"turn_policy,omitempty"`

	// Control loop
	ControlRateHz   *float64 `json:"control_rate_hz,omitempty" toml:"control_rate_hz" yaml:"control_rate_hz,omitempty"`
	SearchCommand   *string  `json:"search_command,omitempty" toml:"search_command" yaml:"search_command,omitempty"`
	ShutdownTimeout *string  `json:"shutdown_timeout,omitempty" toml:"shutdown_timeout" yaml:"shutdown_timeout,omitempty"`

	// Rangefinder
	FrontHalfWidthDeg *float64 `json:"front_half_width_deg,omitempty" toml:"front_half_width_deg" yaml:"front_half_width_deg,omitempty"`
	LidarMaxRangeMM   *float64 `json:"lidar_max_range_mm,omitempty" toml:"lidar_max_range_mm" yaml:"lidar_max_range_mm,omitempty"`
	LidarOffsetMM     *int     `json:"lidar_offset_mm,omitempty" toml:"lidar_offset_mm" yaml:"lidar_offset_mm,omitempty"`
	LidarPort         *string  `json:"lidar_port,omitempty" toml:"lidar_port" yaml:"lidar_port,omitempty"`
	LidarBaudRate     *int     `json:"lidar_baud_rate,omitempty" toml:"lidar_baud_rate" yaml:"lidar_baud_rate,omitempty"`

	// Point ranger
	UltrasonicMaxRangeMM *float64 `json:"ultrasonic_max_range_mm,omitempty" toml:"ultrasonic_max_range_mm" yaml:"ultrasonic_max_range_mm,omitempty"`
	EchoTimeout          *string  `json:"echo_timeout,omitempty" toml:"echo_timeout" yaml:"echo_timeout,omitempty"`
	UltrasonicPeriod     *string  `json:"ultrasonic_period,omitempty" toml:"ultrasonic_period" yaml:"ultrasonic_period,omitempty"`
	TriggerPin           *int     `json:"trigger_pin,omitempty" toml:"trigger_pin" yaml:"trigger_pin,omitempty"`
	EchoPin              *int     `json:"echo_pin,omitempty" toml:"echo_pin" yaml:"echo_pin,omitempty"`

	// Motors
	MotorRightPin *int `json:"motor_right_pin,omitempty" toml:"motor_right_pin" yaml:"motor_right_pin,omitempty"`
	MotorLeftPin  *int `json:"motor_left_pin,omitempty" toml:"motor_left_pin" yaml:"motor_left_pin,omitempty"`

	// Planning
	GridConnectivity    *string  `json:"grid_connectivity,omitempty" toml:"grid_connectivity" yaml:"grid_connectivity,omitempty"`
	GridCellSizeM       *float64 `json:"grid_cell_size_m,omitempty" toml:"grid_cell_size_m" yaml:"grid_cell_size_m,omitempty"`
	ReplanBackoff       *string  `json:"replan_backoff,omitempty" toml:"replan_backoff" yaml:"replan_backoff,omitempty"`
	MaxReplanAttempts   *int     `json:"max_replan_attempts,omitempty" toml:"max_replan_attempts" yaml:"max_replan_attempts,omitempty"`
	HeadingToleranceDeg *float64 `json:"heading_tolerance_deg,omitempty" toml:"heading_tolerance_deg" yaml:"heading_tolerance_deg,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyNavConfig returns a NavConfig with all fields unset.
func EmptyNavConfig() *NavConfig {
	return &NavConfig{}
}

// DefaultNavConfig returns a NavConfig with every field set to its default.
func DefaultNavConfig() *NavConfig {
	c := EmptyNavConfig()
	return &NavConfig{
		EmergencyStopMM:      ptrFloat64(c.GetEmergencyStopMM()),
		AvoidThresholdMM:     ptrFloat64(c.GetAvoidThresholdMM()),
		TurnDuration:         ptrString(c.GetTurnDuration().String()),
		ClearDebounce:        ptrString(c.GetClearDebounce().String()),
		TurnPolicy:           ptrString(c.GetTurnPolicy().String()),
		ControlRateHz:        ptrFloat64(c.GetControlRateHz()),
		SearchCommand:        ptrString(c.GetSearchCommand().String()),
		ShutdownTimeout:      ptrString(c.GetShutdownTimeout().String()),
		FrontHalfWidthDeg:    ptrFloat64(c.GetFrontHalfWidthDeg()),
		LidarMaxRangeMM:      ptrFloat64(c.GetLidarMaxRangeMM()),
		LidarOffsetMM:        ptrInt(c.GetLidarOffsetMM()),
		LidarPort:            ptrString(c.GetLidarPort()),
		LidarBaudRate:        ptrInt(c.GetLidarBaudRate()),
		UltrasonicMaxRangeMM: ptrFloat64(c.GetUltrasonicMaxRangeMM()),
		EchoTimeout:          ptrString(c.GetEchoTimeout().String()),
		UltrasonicPeriod:     ptrString(c.GetUltrasonicPeriod().String()),
		TriggerPin:           ptrInt(c.GetTriggerPin()),
		EchoPin:              ptrInt(c.GetEchoPin()),
		MotorRightPin:        ptrInt(c.GetMotorRightPin()),
		MotorLeftPin:         ptrInt(c.GetMotorLeftPin()),
		GridConnectivity:     ptrString(c.GetGridConnectivity().String()),
		GridCellSizeM:        ptrFloat64(c.GetGridCellSizeM()),
		ReplanBackoff:        ptrString(c.GetReplanBackoff().String()),
		MaxReplanAttempts:    ptrInt(c.GetMaxReplanAttempts()),
		HeadingToleranceDeg:  ptrFloat64(c.GetHeadingToleranceDeg()),
	}
}

// LoadNavConfig loads a NavConfig from a .json, .toml, .yaml or .yml file
// of at most 1MB. Unknown keys are rejected so typos do not silently fall
// back to defaults.
func LoadNavConfig(path string) (*NavConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	switch ext {
	case ".json", ".toml", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config file must have .json, .toml or .yaml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyNavConfig()
	switch ext {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	case ".toml":
		meta, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config TOML: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown config keys: %v", undecoded)
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the current directory or
// one of its parents. Panics if the file cannot be loaded; intended for
// tests.
func MustLoadDefaultConfig() *NavConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/<pkg>/
	}
	for _, path := range candidates {
		if cfg, err := LoadNavConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

func checkDuration(name string, v *string) error {
	if v == nil || *v == "" {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %s", name, *v)
	}
	return nil
}

// Validate checks every set field and the relations between thresholds.
func (c *NavConfig) Validate() error {
	for name, v := range map[string]*string{
		"turn_duration":     c.TurnDuration,
		"clear_debounce":    c.ClearDebounce,
		"shutdown_timeout":  c.ShutdownTimeout,
		"echo_timeout":      c.EchoTimeout,
		"ultrasonic_period": c.UltrasonicPeriod,
		"replan_backoff":    c.ReplanBackoff,
	} {
		if err := checkDuration(name, v); err != nil {
			return err
		}
	}

	if c.TurnPolicy != nil {
		if _, err := avoidance.ParseTurnPolicy(*c.TurnPolicy); err != nil {
			return err
		}
	}
	if c.GridConnectivity != nil {
		if _, err := planner.ParseConnectivity(*c.GridConnectivity); err != nil {
			return err
		}
	}
	if c.SearchCommand != nil {
		cmd, err := motion.ParseCommand(*c.SearchCommand)
		if err != nil {
			return err
		}
		if !cmd.Turning() {
			return fmt.Errorf("search_command must be left or right, got %q", *c.SearchCommand)
		}
	}

	emergency, avoid := c.GetEmergencyStopMM(), c.GetAvoidThresholdMM()
	if emergency <= 0 {
		return fmt.Errorf("emergency_stop_mm must be positive, got %g", emergency)
	}
	if emergency >= avoid {
		return fmt.Errorf("emergency_stop_mm (%g) must be below avoid_threshold_mm (%g)", emergency, avoid)
	}
	if avoid > c.GetLidarMaxRangeMM() || avoid > c.GetUltrasonicMaxRangeMM() {
		return fmt.Errorf("avoid_threshold_mm (%g) exceeds a sensor's max range", avoid)
	}
	if hz := c.GetControlRateHz(); hz <= 0 || hz > 1000 {
		return fmt.Errorf("control_rate_hz must be in (0, 1000], got %g", hz)
	}
	if w := c.GetFrontHalfWidthDeg(); w <= 0 || w >= 45 {
		return fmt.Errorf("front_half_width_deg must be in (0, 45), got %g", w)
	}
	if c.GetGridCellSizeM() <= 0 {
		return fmt.Errorf("grid_cell_size_m must be positive, got %g", c.GetGridCellSizeM())
	}
	if c.GetMaxReplanAttempts() < 1 {
		return fmt.Errorf("max_replan_attempts must be at least 1, got %d", c.GetMaxReplanAttempts())
	}
	if tol := c.GetHeadingToleranceDeg(); tol <= 0 || tol >= 180 {
		return fmt.Errorf("heading_tolerance_deg must be in (0, 180), got %g", tol)
	}
	if c.GetLidarBaudRate() <= 0 {
		return fmt.Errorf("lidar_baud_rate must be positive, got %d", c.GetLidarBaudRate())
	}
	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def // default on parse error
	}
	return d
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func stringOr(v *string, def string) string {
	if v == nil || *v == "" {
		return def
	}
	return *v
}

func (c *NavConfig) GetEmergencyStopMM() float64  { return floatOr(c.EmergencyStopMM, 250) }
func (c *NavConfig) GetAvoidThresholdMM() float64 { return floatOr(c.AvoidThresholdMM, 700) }

func (c *NavConfig) GetTurnDuration() time.Duration {
	return durationOr(c.TurnDuration, 600*time.Millisecond)
}

func (c *NavConfig) GetClearDebounce() time.Duration {
	return durationOr(c.ClearDebounce, 400*time.Millisecond)
}

// GetTurnPolicy returns the maneuver direction policy, Clearer by default.
func (c *NavConfig) GetTurnPolicy() avoidance.TurnPolicy {
	if c.TurnPolicy == nil {
		return avoidance.Clearer
	}
	p, err := avoidance.ParseTurnPolicy(*c.TurnPolicy)
	if err != nil {
		return avoidance.Clearer
	}
	return p
}

func (c *NavConfig) GetControlRateHz() float64 { return floatOr(c.ControlRateHz, 8) }

// GetControlPeriod converts the control rate to a tick period.
func (c *NavConfig) GetControlPeriod() time.Duration {
	return time.Duration(float64(time.Second) / c.GetControlRateHz())
}

// GetSearchCommand returns the in-place rotation used while searching.
func (c *NavConfig) GetSearchCommand() motion.Command {
	if c.SearchCommand == nil {
		return motion.Left
	}
	cmd, err := motion.ParseCommand(*c.SearchCommand)
	if err != nil || !cmd.Turning() {
		return motion.Left
	}
	return cmd
}

func (c *NavConfig) GetShutdownTimeout() time.Duration {
	return durationOr(c.ShutdownTimeout, time.Second)
}

func (c *NavConfig) GetFrontHalfWidthDeg() float64 { return floatOr(c.FrontHalfWidthDeg, 30) }
func (c *NavConfig) GetLidarMaxRangeMM() float64   { return floatOr(c.LidarMaxRangeMM, 12000) }
func (c *NavConfig) GetLidarOffsetMM() int         { return intOr(c.LidarOffsetMM, 0) }
func (c *NavConfig) GetLidarPort() string          { return stringOr(c.LidarPort, "/dev/ttyAMA0") }
func (c *NavConfig) GetLidarBaudRate() int         { return intOr(c.LidarBaudRate, 230400) }

func (c *NavConfig) GetUltrasonicMaxRangeMM() float64 {
	return floatOr(c.UltrasonicMaxRangeMM, 4000)
}

func (c *NavConfig) GetEchoTimeout() time.Duration {
	return durationOr(c.EchoTimeout, 50*time.Millisecond)
}

func (c *NavConfig) GetUltrasonicPeriod() time.Duration {
	return durationOr(c.UltrasonicPeriod, 100*time.Millisecond)
}

func (c *NavConfig) GetTriggerPin() int    { return intOr(c.TriggerPin, 23) }
func (c *NavConfig) GetEchoPin() int       { return intOr(c.EchoPin, 24) }
func (c *NavConfig) GetMotorRightPin() int { return intOr(c.MotorRightPin, 12) }
func (c *NavConfig) GetMotorLeftPin() int  { return intOr(c.MotorLeftPin, 13) }

// GetGridConnectivity returns the planner neighbourhood, Cardinal by default.
func (c *NavConfig) GetGridConnectivity() planner.Connectivity {
	if c.GridConnectivity == nil {
		return planner.Cardinal
	}
	conn, err := planner.ParseConnectivity(*c.GridConnectivity)
	if err != nil {
		return planner.Cardinal
	}
	return conn
}

func (c *NavConfig) GetGridCellSizeM() float64 { return floatOr(c.GridCellSizeM, 0.1) }

func (c *NavConfig) GetReplanBackoff() time.Duration {
	return durationOr(c.ReplanBackoff, 2*time.Second)
}

func (c *NavConfig) GetMaxReplanAttempts() int       { return intOr(c.MaxReplanAttempts, 3) }
func (c *NavConfig) GetHeadingToleranceDeg() float64 { return floatOr(c.HeadingToleranceDeg, 15) }

// ArbiterConfig assembles the avoidance thresholds.
func (c *NavConfig) ArbiterConfig() avoidance.Config {
	return avoidance.Config{
		EmergencyMM:   c.GetEmergencyStopMM(),
		AvoidMM:       c.GetAvoidThresholdMM(),
		TurnDuration:  c.GetTurnDuration(),
		ClearDebounce: c.GetClearDebounce(),
		Policy:        c.GetTurnPolicy(),
	}
}

// SectorConfig assembles the rangefinder's sector partition.
func (c *NavConfig) SectorConfig() lidar.SectorConfig {
	return lidar.SectorConfig{
		FrontHalfWidthDeg: c.GetFrontHalfWidthDeg(),
		MaxRangeMM:        c.GetLidarMaxRangeMM(),
	}
}
