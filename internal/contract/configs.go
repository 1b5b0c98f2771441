package contract

import (
	"cmp"
	"fmt"
	"maps"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/huangsam/spikewave/schema"
)

// Default values for configuration.
const (
	DefaultProbeSampleRate    = 30000.0
	DefaultBitDuration        = 0.03
	DefaultInterBarcodeGap    = 10.0
	DefaultBarcodeBits        = 32
	DefaultAlignmentTolerance = 1.0
	DefaultBarcodeLine        = 1
	DefaultOptoLine           = 2
	DefaultSeed               = 1
)

// Sorter output file names used when a probe only names its sorting directory.
const (
	DefaultSpikeTimesFile    = "spike_times.npy"
	DefaultSpikeClustersFile = "spike_clusters.npy"
	DefaultChannelMapFile    = "channel_map.npy"
	DefaultClusterLabelsFile = "cluster_KSLabel.tsv"
)

// DefaultWorkers is the default number of concurrent workers to use.
var DefaultWorkers = runtime.GOMAXPROCS(0)

// StreamConfig locates a digital event stream.
type StreamConfig struct {
	Samples     string  `mapstructure:"samples"`
	States      string  `mapstructure:"states"`
	Timestamps  string  `mapstructure:"timestamps"`
	SampleRate  float64 `mapstructure:"sample-rate"`
	BarcodeLine int     `mapstructure:"barcode-line"`
	OptoLine    int     `mapstructure:"opto-line"`
}

// ProbeConfig locates the inputs of one probe.
type ProbeConfig struct {
	Label         string       `mapstructure:"label"`
	Raw           string       `mapstructure:"raw"`
	Events        StreamConfig `mapstructure:"events"`
	SortingDir    string       `mapstructure:"sorting-dir"`
	SpikeTimes    string       `mapstructure:"spike-times"`
	SpikeClusters string       `mapstructure:"spike-clusters"`
	ChannelMap    string       `mapstructure:"channel-map"`
	ClusterLabels string       `mapstructure:"cluster-labels"`
}

// RecordingConfig locates the inputs of one recording.
type RecordingConfig struct {
	Name   string        `mapstructure:"name"`
	Master StreamConfig  `mapstructure:"master"`
	Trials string        `mapstructure:"trials"`
	Probes []ProbeConfig `mapstructure:"probes"`
}

// BarcodeConfig holds the barcode decoding parameters.
type BarcodeConfig struct {
	BitDuration     float64 `mapstructure:"bit-duration"`
	InterBarcodeGap float64 `mapstructure:"inter-barcode-gap"`
	NBits           int     `mapstructure:"nbits"`
}

// ProfileConfig holds profiling settings.
type ProfileConfig struct {
	Enabled bool
	Prefix  string
}

// PSTHRawInput holds the stimulus conditions and their histogram settings.
type PSTHRawInput struct {
	Conditions map[string]string            `mapstructure:"conditions"`
	Parameters map[string]schema.PSTHParams `mapstructure:"parameters"`
}

// Config holds the runtime configuration for a session run.
// This struct remains the "final, validated" config.
type Config struct {
	SessionName     string
	OutputDir       string
	ArtifactFormat  schema.ArtifactFormat
	Workers         int
	ClusterWorkers  int
	Seed            uint64
	ProbeSampleRate float64

	Barcode            BarcodeConfig
	AlignmentPolicy    schema.AlignmentPolicy
	AlignmentTolerance float64

	Extraction schema.ExtractionParams

	// Conditions maps a stimulus condition id to its parameter set name.
	Conditions map[string]string
	PSTHParams map[string]schema.PSTHParams

	Recordings      []RecordingConfig
	RecordingFilter []string
	ProbeFilter     []string
	FlagOnFailure   bool

	FlagBackend   schema.DatabaseBackend
	FlagDBConnect string // Please use env var as this is plaintext

	RunBackend   schema.DatabaseBackend
	RunDBConnect string // Please use env var as this is plaintext

	Output     schema.OutputMode
	OutputFile string
	Width      int // Terminal width override (0 = auto-detect)
	UseColors  bool

	LogLevel string
	LogFile  string
}

// ConfigRawInput holds the raw inputs from all sources (flags, env, config file).
// Viper unmarshals into this struct.
type ConfigRawInput struct {
	// --- Fields from rootCmd.PersistentFlags() ---
	Session        string `mapstructure:"session"`
	OutputDir      string `mapstructure:"output-dir"`
	ArtifactFormat string `mapstructure:"artifact-format"`
	Workers        int    `mapstructure:"workers"`
	ClusterWorkers int    `mapstructure:"cluster-workers"`
	Seed           uint64 `mapstructure:"seed"`
	Output         string `mapstructure:"output"`
	OutputFile     string `mapstructure:"output-file"`
	Width          int    `mapstructure:"width"`
	Color          string `mapstructure:"color"`
	FlagBackend    string `mapstructure:"flag-backend"`
	FlagDBConnect  string `mapstructure:"flag-db-connect"`
	RunBackend     string `mapstructure:"run-backend"`
	RunDBConnect   string `mapstructure:"run-db-connect"`
	LogLevel       string `mapstructure:"log-level"`
	LogFile        string `mapstructure:"log-file"`

	// --- Fields from runCmd.Flags() ---
	Recordings    string `mapstructure:"only-recordings"`
	Probes        string `mapstructure:"only-probes"`
	FlagOnFailure bool   `mapstructure:"flag-on-failure"`

	// --- Pipeline parameters from config file ---
	ProbeSampleRate    float64                 `mapstructure:"probe-sample-rate"`
	Barcode            BarcodeConfig           `mapstructure:"barcode"`
	AlignmentPolicy    string                  `mapstructure:"alignment-policy"`
	AlignmentTolerance float64                 `mapstructure:"alignment-tolerance"`
	Extraction         schema.ExtractionParams `mapstructure:"extraction"`
	PSTH               PSTHRawInput            `mapstructure:"psth"`

	// --- Session manifest from config file ---
	RecordingList []RecordingConfig `mapstructure:"recordings"`
}

// Clone returns a deep copy of the Config struct.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Conditions = maps.Clone(c.Conditions)
	clone.PSTHParams = maps.Clone(c.PSTHParams)
	clone.RecordingFilter = slices.Clone(c.RecordingFilter)
	clone.ProbeFilter = slices.Clone(c.ProbeFilter)
	if c.Recordings != nil {
		clone.Recordings = make([]RecordingConfig, len(c.Recordings))
		for i, rec := range c.Recordings {
			rec.Probes = slices.Clone(rec.Probes)
			clone.Recordings[i] = rec
		}
	}
	return &clone
}

// ParamsForCondition returns the histogram settings of a stimulus condition id.
func (c *Config) ParamsForCondition(condition string) (schema.PSTHParams, string, error) {
	name, ok := c.Conditions[strings.ToLower(condition)]
	if !ok {
		return schema.PSTHParams{}, "", fmt.Errorf("%w: no psth condition mapping for %q", ErrMissingInput, condition)
	}
	params, ok := c.PSTHParams[name]
	if !ok {
		return schema.PSTHParams{}, name, fmt.Errorf("%w: no psth parameters for condition %q (%s)", ErrMissingInput, condition, name)
	}
	return params, name, nil
}

// Selected reports whether a recording/probe passes the configured subset filters.
func (c *Config) Selected(recording, probe string) bool {
	if len(c.RecordingFilter) > 0 && !slices.Contains(c.RecordingFilter, recording) {
		return false
	}
	if len(c.ProbeFilter) > 0 && !slices.Contains(c.ProbeFilter, probe) {
		return false
	}
	return true
}

// FindStream returns the master stream of a recording, or the event stream of one of its
// probes when probe is set.
func (c *Config) FindStream(recording, probe string) (StreamConfig, error) {
	for _, rec := range c.Recordings {
		if rec.Name != recording {
			continue
		}
		if probe == "" {
			return rec.Master, nil
		}
		for _, p := range rec.Probes {
			if p.Label == probe {
				return p.Events, nil
			}
		}
		return StreamConfig{}, fmt.Errorf("probe %s not found in recording %s", probe, recording)
	}
	return StreamConfig{}, fmt.Errorf("recording %s not found in session %s", recording, c.SessionName)
}

// ProcessAndValidate performs all parsing and validation on the raw inputs
// and updates the final Config struct.
func ProcessAndValidate(cfg *Config, input *ConfigRawInput) error {
	if err := validateSimpleInputs(cfg, input); err != nil {
		return err
	}
	if err := processPipelineParams(cfg, input); err != nil {
		return err
	}
	if err := processPSTHParams(cfg, input); err != nil {
		return err
	}
	if err := processRecordings(cfg, input); err != nil {
		return err
	}
	return nil
}

// ProcessProfilingConfig enables profiling when a file prefix is given.
func ProcessProfilingConfig(profile *ProfileConfig, profilePrefix string) error {
	if profilePrefix != "" {
		profile.Enabled = true
		profile.Prefix = profilePrefix
	}
	return nil
}

// ValidateDatabaseConnectionString validates the format of database connection strings
// for MySQL and PostgreSQL backends.
func ValidateDatabaseConnectionString(backend schema.DatabaseBackend, connStr string) error {
	switch backend {
	case schema.SQLiteBackend, schema.NoneBackend:
		return nil
	case schema.MySQLBackend:
		if connStr == "" {
			return fmt.Errorf("a connection string is required when using %s backend", backend)
		}
		if !strings.Contains(connStr, "@tcp(") {
			return fmt.Errorf("MySQL connection string must contain '@tcp(' for host:port specification")
		}
		if !strings.Contains(connStr, "/") {
			return fmt.Errorf("MySQL connection string must contain '/' followed by database name")
		}
	case schema.PostgreSQLBackend:
		if connStr == "" {
			return fmt.Errorf("a connection string is required when using %s backend", backend)
		}
		if !strings.Contains(connStr, "host=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'host=' parameter")
		}
		if !strings.Contains(connStr, "dbname=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'dbname=' parameter")
		}
	}
	return nil
}

// validateBackendConfigs validates flag and run backend configurations.
func validateBackendConfigs(cfg *Config, input *ConfigRawInput) error {
	// --- Flag Backend Validation ---
	cfg.FlagBackend = schema.DatabaseBackend(strings.ToLower(input.FlagBackend))
	if _, ok := schema.ValidDatabaseBackends[cfg.FlagBackend]; !ok {
		return fmt.Errorf("invalid flag backend '%s'. must be sqlite, mysql, postgresql, none", input.FlagBackend)
	}
	cfg.FlagDBConnect = input.FlagDBConnect
	if err := ValidateDatabaseConnectionString(cfg.FlagBackend, cfg.FlagDBConnect); err != nil {
		return err
	}

	// --- Run Backend Validation ---
	cfg.RunBackend = schema.DatabaseBackend(strings.ToLower(input.RunBackend))
	if cfg.RunBackend == "" {
		return nil
	}
	if _, ok := schema.ValidDatabaseBackends[cfg.RunBackend]; !ok {
		return fmt.Errorf("invalid run backend '%s'. must be sqlite, mysql, postgresql, none", input.RunBackend)
	}
	cfg.RunDBConnect = input.RunDBConnect
	if err := ValidateDatabaseConnectionString(cfg.RunBackend, cfg.RunDBConnect); err != nil {
		return err
	}

	// Flag and run stores must not share a SQLite file
	if cfg.FlagBackend == schema.SQLiteBackend && cfg.RunBackend == schema.SQLiteBackend {
		flagPath := cmp.Or(cfg.FlagDBConnect, GetFlagDBFilePath())
		runPath := cmp.Or(cfg.RunDBConnect, GetRunDBFilePath())
		if flagPath == runPath {
			return fmt.Errorf("flag and run storage must use different SQLite database files. Both resolve to %q", flagPath)
		}
	}
	return nil
}

// validateSimpleInputs processes and validates all scalar fields.
func validateSimpleInputs(cfg *Config, input *ConfigRawInput) error {
	cfg.SessionName = input.Session
	cfg.OutputFile = input.OutputFile
	cfg.Width = input.Width
	cfg.FlagOnFailure = input.FlagOnFailure
	cfg.LogFile = input.LogFile
	cfg.Seed = input.Seed

	colors, err := ParseBoolString(input.Color)
	if err != nil {
		return fmt.Errorf("invalid --color value: %w", err)
	}
	cfg.UseColors = colors

	if input.Workers <= 0 {
		return fmt.Errorf("workers must be greater than 0 (received %d)", input.Workers)
	}
	cfg.Workers = input.Workers

	if input.ClusterWorkers <= 0 {
		return fmt.Errorf("cluster-workers must be greater than 0 (received %d)", input.ClusterWorkers)
	}
	cfg.ClusterWorkers = input.ClusterWorkers

	cfg.Output = schema.OutputMode(strings.ToLower(input.Output))
	if _, ok := schema.ValidOutputModes[cfg.Output]; !ok {
		return fmt.Errorf("invalid output format '%s'. must be text, csv, json", input.Output)
	}

	cfg.ArtifactFormat = schema.ArtifactFormat(strings.ToLower(input.ArtifactFormat))
	if _, ok := schema.ValidArtifactFormats[cfg.ArtifactFormat]; !ok {
		return fmt.Errorf("invalid artifact format '%s'. must be msgpack, json", input.ArtifactFormat)
	}

	cfg.LogLevel = strings.ToLower(input.LogLevel)
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level '%s'. must be debug, info, warn, error", input.LogLevel)
	}

	cfg.OutputDir = input.OutputDir
	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}

	cfg.RecordingFilter = splitList(input.Recordings)
	cfg.ProbeFilter = splitList(input.Probes)

	return validateBackendConfigs(cfg, input)
}

// processPipelineParams validates rates, barcode settings, alignment and extraction parameters.
func processPipelineParams(cfg *Config, input *ConfigRawInput) error {
	if input.ProbeSampleRate <= 0 {
		return fmt.Errorf("probe-sample-rate must be greater than 0 (received %g)", input.ProbeSampleRate)
	}
	cfg.ProbeSampleRate = input.ProbeSampleRate

	bc := input.Barcode
	if bc.BitDuration <= 0 {
		return fmt.Errorf("barcode.bit-duration must be greater than 0 (received %g)", bc.BitDuration)
	}
	if bc.InterBarcodeGap <= bc.BitDuration {
		return fmt.Errorf("barcode.inter-barcode-gap must exceed bit-duration (received %g)", bc.InterBarcodeGap)
	}
	if bc.NBits <= 0 || bc.NBits > 64 {
		return fmt.Errorf("barcode.nbits must be in [1, 64] (received %d)", bc.NBits)
	}
	cfg.Barcode = bc

	cfg.AlignmentPolicy = schema.AlignmentPolicy(strings.ToLower(input.AlignmentPolicy))
	if _, ok := schema.ValidAlignmentPolicies[cfg.AlignmentPolicy]; !ok {
		return fmt.Errorf("invalid alignment policy '%s'. must be first, mean", input.AlignmentPolicy)
	}
	if input.AlignmentTolerance <= 0 {
		return fmt.Errorf("alignment-tolerance must be greater than 0 (received %g)", input.AlignmentTolerance)
	}
	cfg.AlignmentTolerance = input.AlignmentTolerance

	if err := input.Extraction.Validate(); err != nil {
		return fmt.Errorf("invalid extraction parameters: %w", err)
	}
	cfg.Extraction = input.Extraction
	return nil
}

// processPSTHParams normalizes the condition mapping and checks every referenced parameter set.
func processPSTHParams(cfg *Config, input *ConfigRawInput) error {
	cfg.Conditions = make(map[string]string, len(input.PSTH.Conditions))
	cfg.PSTHParams = make(map[string]schema.PSTHParams, len(input.PSTH.Parameters))

	for name, p := range input.PSTH.Parameters {
		if p.BinSize <= 0 {
			return fmt.Errorf("psth.parameters.%s.binsize must be greater than 0 (received %g)", name, p.BinSize)
		}
		if p.WindowDur <= 0 {
			return fmt.Errorf("psth.parameters.%s.window-dur must be greater than 0 (received %g)", name, p.WindowDur)
		}
		cfg.PSTHParams[strings.ToLower(name)] = p
	}
	for id, name := range input.PSTH.Conditions {
		name = strings.ToLower(name)
		if _, ok := cfg.PSTHParams[name]; !ok {
			return fmt.Errorf("psth condition %s references unknown parameter set %q", id, name)
		}
		cfg.Conditions[strings.ToLower(id)] = name
	}
	return nil
}

// processRecordings fills default sorter file names and checks the manifest for duplicates.
func processRecordings(cfg *Config, input *ConfigRawInput) error {
	seen := make(map[string]struct{})
	cfg.Recordings = make([]RecordingConfig, 0, len(input.RecordingList))

	for _, rec := range input.RecordingList {
		if rec.Name == "" {
			return fmt.Errorf("every recording needs a name")
		}
		if rec.Master.SampleRate <= 0 {
			return fmt.Errorf("recording %s: master sample-rate must be greater than 0", rec.Name)
		}
		rec.Master = withLineDefaults(rec.Master)

		probes := make([]ProbeConfig, 0, len(rec.Probes))
		for _, p := range rec.Probes {
			if p.Label == "" {
				return fmt.Errorf("recording %s: every probe needs a label", rec.Name)
			}
			key := rec.Name + "/" + p.Label
			if _, dup := seen[key]; dup {
				return fmt.Errorf("duplicate probe %s in recording %s", p.Label, rec.Name)
			}
			seen[key] = struct{}{}

			if p.Events.SampleRate <= 0 {
				p.Events.SampleRate = cfg.ProbeSampleRate
			}
			p.Events = withLineDefaults(p.Events)
			p.SpikeTimes = sortingPath(p.SortingDir, p.SpikeTimes, DefaultSpikeTimesFile)
			p.SpikeClusters = sortingPath(p.SortingDir, p.SpikeClusters, DefaultSpikeClustersFile)
			p.ChannelMap = sortingPath(p.SortingDir, p.ChannelMap, DefaultChannelMapFile)
			p.ClusterLabels = sortingPath(p.SortingDir, p.ClusterLabels, DefaultClusterLabelsFile)
			probes = append(probes, p)
		}
		rec.Probes = probes
		cfg.Recordings = append(cfg.Recordings, rec)
	}
	return nil
}

func withLineDefaults(s StreamConfig) StreamConfig {
	if s.BarcodeLine == 0 {
		s.BarcodeLine = DefaultBarcodeLine
	}
	if s.OptoLine == 0 {
		s.OptoLine = DefaultOptoLine
	}
	return s
}

func sortingPath(dir, explicit, fallback string) string {
	if explicit != "" || dir == "" {
		return explicit
	}
	return filepath.Join(dir, fallback)
}

func splitList(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
