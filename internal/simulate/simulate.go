// Package simulate writes synthetic sessions with known clock offsets, spike templates and
// opto trials. It backs the 'simulate' command and end-to-end tests.
package simulate

import (
	"bufio"
	"cmp"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/huangsam/spikewave/core/barcode"
	"github.com/huangsam/spikewave/internal/contract"
	"github.com/huangsam/spikewave/schema"
	"github.com/sbinet/npyio"
	"github.com/spf13/viper"
)

// Options shape the generated session.
type Options struct {
	Dir              string
	Session          string
	Recordings       int
	Probes           []string
	Offset           float64 // master = probe + Offset for the first probe
	OffsetStep       float64 // added per following probe
	Duration         float64 // seconds of probe recording
	ProbeRate        float64
	MasterRate       float64
	NChannels        int
	GoodClusters     int
	SpikesPerCluster int
	Amplitude        int16
	Noise            int16
	BarcodeInterval  float64
	Barcode          contract.BarcodeConfig
	Trials           int
	Seed             uint64
}

// DefaultOptions returns a small session that runs in well under a second.
func DefaultOptions(dir string) Options {
	return Options{
		Dir:              dir,
		Session:          "sim",
		Recordings:       1,
		Probes:           []string{"A"},
		Offset:           1.5,
		OffsetStep:       0.25,
		Duration:         40,
		ProbeRate:        2000,
		MasterRate:       2500,
		NChannels:        4,
		GoodClusters:     3,
		SpikesPerCluster: 60,
		Amplitude:        100,
		Noise:            3,
		BarcodeInterval:  12,
		Barcode: contract.BarcodeConfig{
			BitDuration:     contract.DefaultBitDuration,
			InterBarcodeGap: contract.DefaultInterBarcodeGap,
			NBits:           contract.DefaultBarcodeBits,
		},
		Trials: 8,
		Seed:   contract.DefaultSeed,
	}
}

// ProbeTruth records what was planted in one probe.
type ProbeTruth struct {
	Offset   float64
	Template map[int]int // cluster id -> channel carrying its spike
}

// Session is the manifest of a generated session together with the planted ground truth.
type Session struct {
	Name       string
	Recordings []contract.RecordingConfig
	Truth      map[string]ProbeTruth // keyed by recording/probe
	Options    Options
}

// Conditions and parameter sets written alongside the session.
var (
	conditionIDs   = []string{"0", "1"}
	conditionNames = map[string]string{"0": "short", "1": "long"}
	psthParams     = map[string]schema.PSTHParams{
		"short": {Pretime: 0.5, WindowDur: 1.5, BinSize: 0.05},
		"long":  {Pretime: 0.5, WindowDur: 3, BinSize: 0.1},
	}
	levels = []float64{1, 2}
)

// Generate writes every recording of the session under opts.Dir.
func Generate(opts Options) (*Session, error) {
	if opts.Recordings <= 0 || len(opts.Probes) == 0 {
		return nil, fmt.Errorf("a session needs at least one recording and one probe")
	}
	if opts.BarcodeInterval <= opts.Barcode.InterBarcodeGap+float64(opts.Barcode.NBits+1)*opts.Barcode.BitDuration {
		return nil, fmt.Errorf("barcode interval %g is too short for the inter-barcode gap", opts.BarcodeInterval)
	}
	rng := rand.New(rand.NewPCG(opts.Seed, 0x5eed))
	s := &Session{Name: opts.Session, Truth: make(map[string]ProbeTruth), Options: opts}

	for r := range opts.Recordings {
		rec, err := generateRecording(opts, strconv.Itoa(r+1), rng, s.Truth)
		if err != nil {
			return nil, err
		}
		s.Recordings = append(s.Recordings, rec)
	}
	return s, nil
}

func generateRecording(opts Options, name string, rng *rand.Rand, truth map[string]ProbeTruth) (contract.RecordingConfig, error) {
	dir := filepath.Join(opts.Dir, "recording"+name)
	rec := contract.RecordingConfig{Name: name}

	// Barcodes every BarcodeInterval seconds of probe time, starting at 2s.
	var probeStarts []float64
	var codes []uint64
	for t := 2.0; t+opts.BarcodeInterval/2 < opts.Duration; t += opts.BarcodeInterval {
		probeStarts = append(probeStarts, t)
		codes = append(codes, uint64(rng.Uint32())&(1<<opts.Barcode.NBits-1))
	}
	if len(codes) < 2 {
		return rec, fmt.Errorf("duration %g holds fewer than two barcodes", opts.Duration)
	}

	// Master stream: barcodes shifted by the first probe's offset, plus opto onsets.
	masterStarts := shift(probeStarts, opts.Offset)
	mRise, mFall := barcode.Encode(codes, masterStarts, opts.Barcode.BitDuration, opts.Barcode.NBits)
	onsets := make([]float64, opts.Trials)
	for i := range onsets {
		onsets[i] = 3 + float64(i)*(opts.Duration-6)/float64(max(opts.Trials, 1))
	}
	master, err := writeEvents(filepath.Join(dir, "master"), opts.MasterRate,
		lineEdges{line: contract.DefaultBarcodeLine, rising: mRise, falling: mFall},
		lineEdges{line: contract.DefaultOptoLine, rising: onsets, falling: shift(onsets, 0.01)},
	)
	if err != nil {
		return rec, err
	}
	rec.Master = master

	if opts.Trials > 0 {
		trials := filepath.Join(dir, "trials.json")
		if err := writeTrials(trials, opts.Trials); err != nil {
			return rec, err
		}
		rec.Trials = trials
	}

	for i, label := range opts.Probes {
		offset := opts.Offset + float64(i)*opts.OffsetStep
		// Probe clock = master clock - offset.
		pRise, pFall := barcode.Encode(codes, shift(masterStarts, -offset), opts.Barcode.BitDuration, opts.Barcode.NBits)
		probe, templates, err := generateProbe(opts, filepath.Join(dir, "probe"+label), label, pRise, pFall, rng)
		if err != nil {
			return rec, err
		}
		rec.Probes = append(rec.Probes, probe)
		truth[name+"/"+label] = ProbeTruth{Offset: offset, Template: templates}
	}
	return rec, nil
}

func generateProbe(opts Options, dir, label string, rising, falling []float64, rng *rand.Rand) (contract.ProbeConfig, map[int]int, error) {
	probe := contract.ProbeConfig{Label: label}

	events, err := writeEvents(filepath.Join(dir, "events"), opts.ProbeRate,
		lineEdges{line: contract.DefaultBarcodeLine, rising: rising, falling: falling})
	if err != nil {
		return probe, nil, err
	}
	probe.Events = events

	numSamples := int64(opts.Duration * opts.ProbeRate)
	const margin = 100
	templates := make(map[int]int)
	type spike struct {
		sample  int64
		cluster int
	}
	var spikes []spike
	// Clusters 0..GoodClusters-1 are good; one extra noise cluster is sorted out.
	for c := range opts.GoodClusters + 1 {
		templates[c] = c % opts.NChannels
		for range opts.SpikesPerCluster {
			spikes = append(spikes, spike{sample: margin + rng.Int64N(numSamples-2*margin), cluster: c})
		}
	}
	delete(templates, opts.GoodClusters)
	slices.SortFunc(spikes, func(a, b spike) int { return cmp.Compare(a.sample, b.sample) })

	signal := make([]int16, numSamples*int64(opts.NChannels))
	for i := range signal {
		signal[i] = int16(rng.IntN(2*int(opts.Noise)+1)) - opts.Noise
	}
	for _, sp := range spikes {
		ch := sp.cluster % opts.NChannels
		for k, w := range spikeShape {
			idx := (sp.sample+int64(k-1))*int64(opts.NChannels) + int64(ch)
			signal[idx] += int16(math.Round(w * float64(opts.Amplitude)))
		}
	}
	probe.Raw = filepath.Join(dir, "continuous.dat")
	if err := writeSignal(probe.Raw, signal); err != nil {
		return probe, nil, err
	}

	sortDir := filepath.Join(dir, "sorting")
	times := make([]uint64, len(spikes))
	clusters := make([]int32, len(spikes))
	for i, sp := range spikes {
		times[i] = uint64(sp.sample)
		clusters[i] = int32(sp.cluster)
	}
	channelMap := make([]int32, opts.NChannels)
	for i := range channelMap {
		channelMap[i] = int32(i)
	}
	probe.SortingDir = sortDir
	probe.SpikeTimes = filepath.Join(sortDir, contract.DefaultSpikeTimesFile)
	probe.SpikeClusters = filepath.Join(sortDir, contract.DefaultSpikeClustersFile)
	probe.ChannelMap = filepath.Join(sortDir, contract.DefaultChannelMapFile)
	probe.ClusterLabels = filepath.Join(sortDir, contract.DefaultClusterLabelsFile)
	for path, data := range map[string]any{probe.SpikeTimes: times, probe.SpikeClusters: clusters, probe.ChannelMap: channelMap} {
		if err := writeNpy(path, data); err != nil {
			return probe, nil, err
		}
	}
	if err := writeLabels(probe.ClusterLabels, opts.GoodClusters); err != nil {
		return probe, nil, err
	}
	return probe, templates, nil
}

// spikeShape starts one sample before the peak, so index 1 is the trough.
var spikeShape = []float64{-0.2, -1, -0.6, 0.3, 0.4, 0.2}

type lineEdges struct {
	line            int
	rising, falling []float64
}

// writeEvents writes an OpenEphys style event stream: sample indices and +/-line states in time order.
func writeEvents(dir string, rate float64, lines ...lineEdges) (contract.StreamConfig, error) {
	type event struct {
		sample, state int64
	}
	var events []event
	for _, l := range lines {
		for _, t := range l.rising {
			events = append(events, event{int64(math.Round(t * rate)), int64(l.line)})
		}
		for _, t := range l.falling {
			events = append(events, event{int64(math.Round(t * rate)), -int64(l.line)})
		}
	}
	slices.SortStableFunc(events, func(a, b event) int { return cmp.Compare(a.sample, b.sample) })

	samples := make([]int64, len(events))
	states := make([]int64, len(events))
	for i, e := range events {
		samples[i], states[i] = e.sample, e.state
	}

	cfg := contract.StreamConfig{
		Samples:     filepath.Join(dir, "sample_numbers.npy"),
		States:      filepath.Join(dir, "states.npy"),
		SampleRate:  rate,
		BarcodeLine: contract.DefaultBarcodeLine,
		OptoLine:    contract.DefaultOptoLine,
	}
	if err := writeNpy(cfg.Samples, samples); err != nil {
		return cfg, err
	}
	if err := writeNpy(cfg.States, states); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func writeNpy(path string, data any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := npyio.Write(f, data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func writeSignal(path string, data []int16) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := binary.Write(w, binary.LittleEndian, data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func writeLabels(path string, good int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	_, _ = fmt.Fprintln(w, "cluster_id\tKSLabel")
	for c := range good {
		_, _ = fmt.Fprintf(w, "%d\t%s\n", c, schema.GoodLabel)
	}
	_, _ = fmt.Fprintf(w, "%d\tnoise\n", good)
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func writeTrials(path string, n int) error {
	meta := struct {
		Conditions []string             `json:"opto_conditions"`
		Levels     []float64            `json:"opto_levels"`
		Waveforms  map[string][]float64 `json:"opto_waveforms"`
	}{Waveforms: make(map[string][]float64)}
	for i := range n {
		meta.Conditions = append(meta.Conditions, conditionIDs[i%len(conditionIDs)])
		meta.Levels = append(meta.Levels, levels[(i/len(conditionIDs))%len(levels)])
	}
	for i, id := range conditionIDs {
		wave := make([]float64, 20)
		for k := range wave {
			if k >= 5 && k < 5+5*(i+1) {
				wave[k] = 1
			}
		}
		meta.Waveforms[id] = wave
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func shift(ts []float64, by float64) []float64 {
	out := make([]float64, len(ts))
	for i, t := range ts {
		out[i] = t + by
	}
	return out
}

// WriteConfig writes a config file that runs the generated session.
func (s *Session) WriteConfig(path, outputDir string) error {
	v := viper.New()
	v.Set("session", s.Name)
	v.Set("output-dir", outputDir)
	v.Set("probe-sample-rate", s.Options.ProbeRate)
	v.Set("barcode.bit-duration", s.Options.Barcode.BitDuration)
	v.Set("barcode.inter-barcode-gap", s.Options.Barcode.InterBarcodeGap)
	v.Set("barcode.nbits", s.Options.Barcode.NBits)
	v.Set("extraction.n-channels", s.Options.NChannels)
	v.Set("psth.conditions", conditionNames)
	params := make(map[string]any, len(psthParams))
	for name, p := range psthParams {
		params[name] = map[string]any{"pretime": p.Pretime, "window-dur": p.WindowDur, "binsize": p.BinSize}
	}
	v.Set("psth.parameters", params)
	v.Set("recordings", s.manifest())
	return v.WriteConfigAs(path)
}

// Conditions returns the condition mapping and parameter sets that match the trial metadata.
func Conditions() (map[string]string, map[string]schema.PSTHParams) {
	return maps.Clone(conditionNames), maps.Clone(psthParams)
}

func (s *Session) manifest() []map[string]any {
	stream := func(c contract.StreamConfig) map[string]any {
		return map[string]any{
			"samples":      c.Samples,
			"states":       c.States,
			"sample-rate":  c.SampleRate,
			"barcode-line": c.BarcodeLine,
			"opto-line":    c.OptoLine,
		}
	}
	out := make([]map[string]any, 0, len(s.Recordings))
	for _, rec := range s.Recordings {
		probes := make([]map[string]any, 0, len(rec.Probes))
		for _, p := range rec.Probes {
			probes = append(probes, map[string]any{
				"label":       p.Label,
				"raw":         p.Raw,
				"events":      stream(p.Events),
				"sorting-dir": p.SortingDir,
			})
		}
		out = append(out, map[string]any{
			"name":   rec.Name,
			"master": stream(rec.Master),
			"trials": rec.Trials,
			"probes": probes,
		})
	}
	return out
}
