package config

import (
	"os"
	"path/filepath"
	"testing"
	_ "time/tzdata"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
site:
  id: "test-site"
  timezone: "Europe/Berlin"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
readings:
  battery_soc:
    topic: "graylogic/state/modbus/battery"
    field: "soc"
    series: "battery_soc"
advisor:
  grid_import_threshold_w: 800
report:
  time: "07:30"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.Advisor.GridImportThresholdW != 800 {
		t.Errorf("GridImportThresholdW = %v, want 800", cfg.Advisor.GridImportThresholdW)
	}
	// Defaults survive a partial advisor section.
	if cfg.Advisor.LowSOCPercent != 20 {
		t.Errorf("LowSOCPercent = %v, want default 20", cfg.Advisor.LowSOCPercent)
	}
	src, ok := cfg.Readings[MetricBatterySOC]
	if !ok || src.Field != "soc" {
		t.Errorf("Readings[battery_soc] = %+v, want field soc", src)
	}

	loc, err := cfg.Location()
	if err != nil {
		t.Fatalf("Location() error = %v", err)
	}
	if loc.String() != "Europe/Berlin" {
		t.Errorf("Location() = %v, want Europe/Berlin", loc)
	}
}

// TestLoad_ShippedExample keeps configs/advisor.yaml loadable.
func TestLoad_ShippedExample(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "..", "configs", "advisor.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Readings) != 6 {
		t.Errorf("Readings = %d entries, want 6", len(cfg.Readings))
	}
	for _, m := range []string{MetricConsumption, MetricWaterFlow, MetricBatterySOC, MetricOutsideTemp, MetricGridImport, MetricPVPower} {
		if cfg.Readings[m].Topic == "" {
			t.Errorf("Readings[%s].Topic is empty", m)
		}
	}
	if cfg.Site.Timezone != "Europe/Berlin" {
		t.Errorf("Site.Timezone = %q", cfg.Site.Timezone)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
site:
  id: ""
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Error("Load() expected validation error for empty site.id, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("GRAYLOGIC_ADVISOR_DATABASE_PATH", "/env/advisor.db")
	t.Setenv("GRAYLOGIC_ADVISOR_MQTT_HOST", "broker.local")
	t.Setenv("GRAYLOGIC_ADVISOR_MQTT_PORT", "8883")
	t.Setenv("GRAYLOGIC_ADVISOR_TIMEZONE", "America/New_York")

	cfg, err := Load(writeConfig(t, "site:\n  id: env-site\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/env/advisor.db" {
		t.Errorf("Database.Path = %q, want env override", cfg.Database.Path)
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want env override", cfg.MQTT.Broker.Host)
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}
	if cfg.Site.Timezone != "America/New_York" {
		t.Errorf("Site.Timezone = %q, want env override", cfg.Site.Timezone)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "missing site ID", mutate: func(c *Config) { c.Site.ID = "" }, wantErr: true},
		{name: "bad timezone", mutate: func(c *Config) { c.Site.Timezone = "Mars/Olympus" }, wantErr: true},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{
			name: "redis store ignores database path",
			mutate: func(c *Config) {
				c.Store.Backend = StoreBackendRedis
				c.Database.Path = ""
			},
		},
		{name: "unknown store backend", mutate: func(c *Config) { c.Store.Backend = "etcd" }, wantErr: true},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{name: "invalid port low", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: true},
		{name: "invalid port high", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: true},
		{name: "equal day and night hours", mutate: func(c *Config) { c.Advisor.NightStartHour = 6 }, wantErr: true},
		{name: "hour out of range", mutate: func(c *Config) { c.Advisor.DayStartHour = 24 }, wantErr: true},
		{name: "zero interval", mutate: func(c *Config) { c.Advisor.IntervalMinutes = 0 }, wantErr: true},
		{name: "bad execution mode", mutate: func(c *Config) { c.Advisor.ExecutionMode = "auto" }, wantErr: true},
		{name: "bad report time", mutate: func(c *Config) { c.Report.Time = "8am" }, wantErr: true},
		{name: "completion without model", mutate: func(c *Config) { c.Completion.Enabled = true }, wantErr: true},
		{name: "kafka without brokers", mutate: func(c *Config) { c.Kafka.Enabled = true }, wantErr: true},
		{name: "unsupported history backend is not fatal", mutate: func(c *Config) { c.History.Backend = "graphite" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		input      string
		wantHour   int
		wantMinute int
		wantErr    bool
	}{
		{input: "08:00", wantHour: 8},
		{input: "23:59", wantHour: 23, wantMinute: 59},
		{input: " 7:05 ", wantHour: 7, wantMinute: 5},
		{input: "24:00", wantErr: true},
		{input: "12:60", wantErr: true},
		{input: "noon", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			h, m, err := ParseClock(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseClock(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err == nil && (h != tt.wantHour || m != tt.wantMinute) {
				t.Errorf("ParseClock(%q) = %d:%d, want %d:%d", tt.input, h, m, tt.wantHour, tt.wantMinute)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := defaultConfig()
	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %vs, want 30s", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %vs, want 60s", got)
	}
}
