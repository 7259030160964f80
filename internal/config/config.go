// internal/config/config.go
package config

type Config struct {
	Device     DeviceConfig     `yaml:"device"`
	Driver     DriverConfig     `yaml:"driver"`
	Display    DisplayConfig    `yaml:"display"`
	Validation ValidationConfig `yaml:"validation"`
	Recovery   RecoveryConfig   `yaml:"recovery"`
	Policy     PolicyConfig     `yaml:"policy"`
	Status     *StatusConfig    `yaml:"status"` // optional, opt-in
	FaultLog   FaultLogConfig   `yaml:"fault_log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Log        LogConfig        `yaml:"log"`
}

// ---- DEVICE ----

type DeviceConfig struct {
	Name string `yaml:"name"`
}

// ---- DRIVER ----

const (
	DriverMemory = "memory"
	DriverModbus = "modbus"
)

type DriverConfig struct {
	Mode       string        `yaml:"mode"` // memory | modbus
	Endpoint   string        `yaml:"endpoint"`
	TimeoutMs  int           `yaml:"timeout_ms"`
	Brightness uint8         `yaml:"brightness"`
	Layout     *LayoutConfig `yaml:"layout"` // nil => gateway default
}

type LayoutConfig struct {
	BaseUnitID        uint8  `yaml:"base_unit_id"`
	PWMAddress        uint16 `yaml:"pwm_address"`
	BrightnessAddress uint16 `yaml:"brightness_address"`
	FaultAddress      uint16 `yaml:"fault_address"`
	ResetCoil         uint16 `yaml:"reset_coil"`
	ReinitCoil        uint16 `yaml:"reinit_coil"`
}

// ---- DISPLAY ----

type DisplayConfig struct {
	Intensity uint8    `yaml:"intensity"`
	Lit       [][2]int `yaml:"lit"` // [row, col] pairs
	RefreshMs int      `yaml:"refresh_ms"`
	LockMs    int      `yaml:"lock_timeout_ms"`
}

// ---- VALIDATION / SCHEDULER ----

type ValidationConfig struct {
	SettleMs        int  `yaml:"settle_ms"`
	DeferMs         int  `yaml:"transition_defer_ms"`
	DisabledPollMs  int  `yaml:"disabled_poll_ms"`
	StartupDelayMs  int  `yaml:"startup_delay_ms"`
	RestartDelayMs  int  `yaml:"restart_delay_ms"`
	OnDemandPerMin  int  `yaml:"on_demand_per_min"`
	ValidateOnWrite bool `yaml:"validate_on_write"`
	SelfTestOnStart bool `yaml:"self_test_on_start"`
}

// ---- RECOVERY ----

type RecoveryConfig struct {
	Attempts    int `yaml:"attempts"`
	BackoffMs   int `yaml:"backoff_ms"`
	BusSettleMs int `yaml:"bus_settle_ms"`
}

// ---- POLICY ----

type PolicyConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

// ---- STATUS BLOCK ----

const (
	TransportModbus = "modbus"
	TransportIngest = "ingest"
)

type StatusConfig struct {
	Transport string `yaml:"transport"` // modbus | ingest
	Endpoint  string `yaml:"endpoint"`
	UnitID    uint16 `yaml:"unit_id"`
	Slot      uint16 `yaml:"slot"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// ---- FAULT LOG ----

type FaultLogConfig struct {
	Path string `yaml:"path"` // empty => disabled
}

// ---- METRICS ----

type MetricsConfig struct {
	Listen string `yaml:"listen"` // empty => disabled
}

// ---- LOG ----

type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}
