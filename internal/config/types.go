package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// GlobalConfig represents the global configuration loaded from
// ~/.config/modemcheck/config.yaml
type GlobalConfig struct {
	Version    int              `yaml:"version"`
	Rzsz       string           `yaml:"rzsz"`
	Link       LinkConfig       `yaml:"link"`
	Serial     SerialConfig     `yaml:"serial"`
	Timing     TimingConfig     `yaml:"timing"`
	Comparator ComparatorConfig `yaml:"comparator"`
	History    HistoryConfig    `yaml:"history"`
}

// LinkConfig describes how the virtual serial link is provisioned.
type LinkConfig struct {
	Provider string   `yaml:"provider"` // "socat" or "static"
	Command  []string `yaml:"command"`
	Wait     Duration `yaml:"wait"`
	Probe    bool     `yaml:"probe"`

	// Endpoints are the two device paths of a static link.
	Endpoints []string `yaml:"endpoints,omitempty"`
}

// SerialConfig holds the line settings forwarded to both transfer sides.
type SerialConfig struct {
	Speed    int `yaml:"speed"`
	StopBits int `yaml:"stop_bits"`
}

// TimingConfig holds the start-ordering and blocking bounds of a scenario.
type TimingConfig struct {
	// Settle is how long the transmitter is given before the receiver starts
	// when no ready pattern is configured.
	Settle Duration `yaml:"settle"`

	// ReadyPattern, when set, is searched for in the emission log as an
	// explicit transmitter readiness signal.
	ReadyPattern string   `yaml:"ready_pattern"`
	ReadyTimeout Duration `yaml:"ready_timeout"`

	// ReceiveTimeout bounds the receiver invocation. Zero means no bound.
	ReceiveTimeout Duration `yaml:"receive_timeout"`
}

// ComparatorConfig selects how result files are compared to references.
type ComparatorConfig struct {
	Kind    string   `yaml:"kind"` // "diff" or "bytes"
	Command []string `yaml:"command"`
}

// HistoryConfig controls persistence of run outcomes.
type HistoryConfig struct {
	Disabled bool   `yaml:"disabled"`
	Path     string `yaml:"path"`
}

// ProjectConfig represents the project configuration loaded from
// modemcheck.yaml in the test directory.
type ProjectConfig struct {
	Version    int               `yaml:"version"`
	Rzsz       string            `yaml:"rzsz,omitempty"`
	WorkDir    string            `yaml:"work_dir,omitempty"`
	ResultsDir string            `yaml:"results_dir"`
	Logs       LogFiles          `yaml:"logs"`
	Env        map[string]EnvVar `yaml:"env,omitempty"`
	Matrix     string            `yaml:"matrix,omitempty"`
	Scenarios  []ScenarioEntry   `yaml:"scenarios,omitempty"`
}

// LogFiles names the log files written during a run. Relative names are
// resolved against the work directory.
type LogFiles struct {
	Emission  string `yaml:"emission"`
	Reception string `yaml:"reception"`
	Link      string `yaml:"link"`
	Harness   string `yaml:"harness"`
}

// ScenarioEntry is the declarative form of one scenario in modemcheck.yaml.
type ScenarioEntry struct {
	Name      string `yaml:"name"`
	Protocol  string `yaml:"protocol"`
	TxOptions string `yaml:"tx_options,omitempty"`
	RxOptions string `yaml:"rx_options,omitempty"`
	Source    string `yaml:"source"`
	Expected  string `yaml:"expected"`
	Result    string `yaml:"result"`
}

// EnvVar represents an environment variable value passed to the transfer
// processes. It can be either a literal string or a from_file reference.
type EnvVar struct {
	Value    string // Literal value (after expansion)
	FromFile string // Path to file containing value
}

// UnmarshalYAML implements custom unmarshaling for EnvVar to handle
// both string values and {from_file: path} objects.
func (e *EnvVar) UnmarshalYAML(value *yaml.Node) error {
	var str string
	if err := value.Decode(&str); err == nil {
		e.Value = str
		return nil
	}

	var obj struct {
		FromFile string `yaml:"from_file"`
	}
	if err := value.Decode(&obj); err != nil {
		return err
	}
	e.FromFile = obj.FromFile
	return nil
}

// MarshalYAML writes the literal form when there is no file reference.
func (e EnvVar) MarshalYAML() (any, error) {
	if e.FromFile != "" {
		return map[string]string{"from_file": e.FromFile}, nil
	}
	return e.Value, nil
}

// Duration is a time.Duration that reads and writes as "1s", "250ms", ...
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML accepts Go duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// MergedConfig represents the final merged configuration after applying
// precedence rules (defaults → global → project → flags). All paths are
// absolute.
type MergedConfig struct {
	ProjectDir string
	WorkDir    string
	Rzsz       string

	Link       LinkConfig
	Serial     SerialConfig
	Timing     TimingConfig
	Comparator ComparatorConfig

	HistoryEnabled bool
	HistoryPath    string

	ResultsDir string
	Logs       LogFiles
	Env        map[string]string

	Matrix    string
	Scenarios []ScenarioEntry
}

// DefaultSettle is the transmitter head start used when no readiness
// pattern is configured. It is a timing assumption, not a signal.
const DefaultSettle = time.Second

// DefaultLinkWait bounds how long the link provider is given to announce
// its endpoints.
const DefaultLinkWait = time.Second

// DefaultGlobalConfig returns a GlobalConfig with sensible defaults.
func DefaultGlobalConfig() GlobalConfig {
	return GlobalConfig{
		Version: 1,
		Rzsz:    "../build/tools/rzsz",
		Link: LinkConfig{
			Provider: "socat",
			Command:  []string{"socat", "-d", "-d", "pty,raw,echo=0", "pty,raw,echo=0"},
			Wait:     Duration(DefaultLinkWait),
		},
		Serial: SerialConfig{
			Speed:    115200,
			StopBits: 1,
		},
		Timing: TimingConfig{
			Settle:       Duration(DefaultSettle),
			ReadyTimeout: Duration(5 * time.Second),
		},
		Comparator: ComparatorConfig{
			Kind:    "diff",
			Command: []string{"diff"},
		},
	}
}

// DefaultProjectConfig returns a ProjectConfig with sensible defaults.
func DefaultProjectConfig() ProjectConfig {
	return ProjectConfig{
		Version:    1,
		ResultsDir: "tests_results",
		Logs: LogFiles{
			Emission:  "emission.log",
			Reception: "reception.log",
			Link:      "socat.log",
			Harness:   "tests.log",
		},
		Matrix: "nominal",
	}
}
