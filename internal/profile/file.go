package profile

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/socialload/internal/runtime/executor"
	"github.com/wesleyorama2/socialload/internal/threshold"
	"github.com/wesleyorama2/socialload/internal/workload"
)

//go:embed schema.json
var schemaJSON []byte

// File is the on-disk YAML form of a profile.
//
// Example:
//
//	name: read-heavy
//	executor: ramping-vus
//	stages:
//	  - duration: 1m
//	    target: 50
//	  - duration: 30s
//	    target: 0
//	thresholds:
//	  http_req_duration: ["p(95)<500"]
//	  http_req_failed: ["rate<0.05"]
//	workload:
//	  mix:
//	    - action: read-home-timeline
//	      weight: 60
//	    - action: compose-post
//	      weight: 40
//	  thinkTime: {min: 1s, max: 3s}
type File struct {
	Name         string        `yaml:"name"`
	Description  string        `yaml:"description,omitempty"`
	Executor     string        `yaml:"executor"`
	VUs          int           `yaml:"vus,omitempty"`
	Duration     Duration      `yaml:"duration,omitempty"`
	GracefulStop Duration      `yaml:"gracefulStop,omitempty"`
	Stages       []StageFile   `yaml:"stages,omitempty"`
	Timeout      Duration      `yaml:"requestTimeout,omitempty"`
	ResultFile   string        `yaml:"resultFile,omitempty"`
	Thresholds   threshold.Set `yaml:"thresholds,omitempty"`
	Workload     WorkloadFile  `yaml:"workload"`
}

// StageFile is one ramping stage.
type StageFile struct {
	Duration Duration `yaml:"duration"`
	Target   int      `yaml:"target"`
	Name     string   `yaml:"name,omitempty"`
}

// WorkloadFile mirrors workload.Config.
type WorkloadFile struct {
	Mix                  []workload.Branch `yaml:"mix"`
	ThinkTime            Pause             `yaml:"thinkTime,omitempty"`
	Journey              JourneyFile       `yaml:"journey,omitempty"`
	Post                 PostFile          `yaml:"post,omitempty"`
	SeedUserID           int64             `yaml:"seedUserId,omitempty"`
	ExistingUsers        int64             `yaml:"existingUsers,omitempty"`
	TimelineStop         int               `yaml:"timelineStop,omitempty"`
	ReadsPerIteration    int               `yaml:"readsPerIteration,omitempty"`
	ClientWork           int               `yaml:"clientWork,omitempty"`
	SlowRequestThreshold Duration          `yaml:"slowRequestThreshold,omitempty"`
	CheckLatency         LatencyCheckFile  `yaml:"checkLatency,omitempty"`
}

// LatencyCheckFile mirrors workload.LatencyCheck:
//
//	checkLatency:
//	  max: 1s
//	  operations:
//	    ReadHomeTimeline: 500ms
type LatencyCheckFile struct {
	Max        Duration            `yaml:"max,omitempty"`
	Operations map[string]Duration `yaml:"operations,omitempty"`
}

func (c LatencyCheckFile) latencyCheck() workload.LatencyCheck {
	out := workload.LatencyCheck{Max: time.Duration(c.Max)}
	if len(c.Operations) > 0 {
		out.Operations = make(map[string]time.Duration, len(c.Operations))
		for op, d := range c.Operations {
			out.Operations[op] = time.Duration(d)
		}
	}
	return out
}

func latencyCheckFileOf(c workload.LatencyCheck) LatencyCheckFile {
	out := LatencyCheckFile{Max: Duration(c.Max)}
	if len(c.Operations) > 0 {
		out.Operations = make(map[string]Duration, len(c.Operations))
		for op, d := range c.Operations {
			out.Operations[op] = Duration(d)
		}
	}
	return out
}

// JourneyFile mirrors workload.JourneyConfig.
type JourneyFile struct {
	AfterRegister    Pause `yaml:"afterRegister,omitempty"`
	AfterFollow      Pause `yaml:"afterFollow,omitempty"`
	AfterCompose     Pause `yaml:"afterCompose,omitempty"`
	AfterRead        Pause `yaml:"afterRead,omitempty"`
	OnFailure        Pause `yaml:"onFailure,omitempty"`
	ReadAfterCompose bool  `yaml:"readAfterCompose,omitempty"`
}

// PostFile mirrors workload.PostOptions. A missing postType means random.
type PostFile struct {
	Style      string `yaml:"style,omitempty"`
	TextLength int    `yaml:"textLength,omitempty"`
	PostType   *int   `yaml:"postType,omitempty"`
}

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Pause is either a fixed duration ("500ms") or a {min, max} range.
type Pause struct {
	Min Duration `yaml:"min,omitempty"`
	Max Duration `yaml:"max,omitempty"`
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *Pause) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var d Duration
		if err := node.Decode(&d); err != nil {
			return err
		}
		p.Min, p.Max = d, d
		return nil
	}

	type plain Pause
	var v plain
	if err := node.Decode(&v); err != nil {
		return err
	}
	*p = Pause(v)
	return nil
}

func (p Pause) thinkTime() workload.ThinkTime {
	if p.Max == 0 {
		return workload.Fixed(time.Duration(p.Min))
	}
	return workload.Between(time.Duration(p.Min), time.Duration(p.Max))
}

// LoadFile reads, schema-checks and validates a YAML profile.
func LoadFile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading profile file: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	return p, nil
}

// Parse decodes a YAML profile document.
func Parse(data []byte) (*Profile, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}

	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("error parsing profile: %w", err)
	}

	p := f.toProfile()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (f *File) toProfile() *Profile {
	p := &Profile{
		Name:        f.Name,
		Description: f.Description,
		Executor: executor.Config{
			Name:         f.Name,
			Type:         executor.Type(f.Executor),
			VUs:          f.VUs,
			Duration:     time.Duration(f.Duration),
			GracefulStop: time.Duration(f.GracefulStop),
		},
		Thresholds:     f.Thresholds,
		RequestTimeout: time.Duration(f.Timeout),
		ResultFile:     f.ResultFile,
	}
	for _, s := range f.Stages {
		p.Executor.Stages = append(p.Executor.Stages, executor.Stage{
			Duration: time.Duration(s.Duration),
			Target:   s.Target,
			Name:     s.Name,
		})
	}

	w := f.Workload
	postType := -1
	if w.Post.PostType != nil {
		postType = *w.Post.PostType
	}
	p.Workload = workload.Config{
		Branches:  w.Mix,
		ThinkTime: w.ThinkTime.thinkTime(),
		Journey: workload.JourneyConfig{
			AfterRegister:    w.Journey.AfterRegister.thinkTime(),
			AfterFollow:      w.Journey.AfterFollow.thinkTime(),
			AfterCompose:     w.Journey.AfterCompose.thinkTime(),
			AfterRead:        w.Journey.AfterRead.thinkTime(),
			OnFailure:        w.Journey.OnFailure.thinkTime(),
			ReadAfterCompose: w.Journey.ReadAfterCompose,
		},
		Post: workload.PostOptions{
			Style:      workload.PostStyle(w.Post.Style),
			TextLength: w.Post.TextLength,
			PostType:   postType,
		},
		SeedUserID:           w.SeedUserID,
		ExistingUsers:        w.ExistingUsers,
		TimelineStop:         w.TimelineStop,
		ReadsPerIteration:    w.ReadsPerIteration,
		ClientWork:           w.ClientWork,
		SlowRequestThreshold: time.Duration(w.SlowRequestThreshold),
		CheckLatency:         w.CheckLatency.latencyCheck(),
	}
	return p
}

// SchemaErrors lists every schema violation found in a profile document.
type SchemaErrors []error

func (e SchemaErrors) Error() string {
	var sb bytes.Buffer
	sb.WriteString("profile does not match schema")
	for _, err := range e {
		sb.WriteString("\n  - ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

func validateSchema(data []byte) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(schemaJSON)); err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}

	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("error parsing profile: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("profile is empty")
	}

	// round-trip through JSON so numbers and maps have the types the
	// validator expects
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("error converting profile: %w", err)
	}
	var instance interface{}
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("error converting profile: %w", err)
	}

	if err := schema.Validate(instance); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return extractValidationErrors(ve)
		}
		return err
	}
	return nil
}

// extractValidationErrors flattens the leaf causes of a schema error.
func extractValidationErrors(err *jsonschema.ValidationError) SchemaErrors {
	if len(err.Causes) == 0 {
		loc := err.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return SchemaErrors{fmt.Errorf("%s: %s", loc, err.Message)}
	}
	var out SchemaErrors
	for _, cause := range err.Causes {
		out = append(out, extractValidationErrors(cause)...)
	}
	return out
}

// ToFile converts p to its YAML form. Parse(Marshal(p)) yields an
// equivalent profile.
func ToFile(p *Profile) *File {
	f := &File{
		Name:         p.Name,
		Description:  p.Description,
		Executor:     string(p.Executor.Type),
		GracefulStop: Duration(p.Executor.GracefulStop),
		Timeout:      Duration(p.RequestTimeout),
		ResultFile:   p.ResultFile,
		Thresholds:   p.Thresholds,
	}
	if p.Executor.Type == executor.TypeConstantVUs {
		f.VUs = p.Executor.VUs
		f.Duration = Duration(p.Executor.Duration)
	}
	for _, s := range p.Executor.Stages {
		f.Stages = append(f.Stages, StageFile{Duration: Duration(s.Duration), Target: s.Target, Name: s.Name})
	}

	w := p.Workload
	postType := w.Post.PostType
	if postType < 0 {
		postType = -1
	}
	f.Workload = WorkloadFile{
		Mix:       w.Branches,
		ThinkTime: pauseOf(w.ThinkTime),
		Journey: JourneyFile{
			AfterRegister:    pauseOf(w.Journey.AfterRegister),
			AfterFollow:      pauseOf(w.Journey.AfterFollow),
			AfterCompose:     pauseOf(w.Journey.AfterCompose),
			AfterRead:        pauseOf(w.Journey.AfterRead),
			OnFailure:        pauseOf(w.Journey.OnFailure),
			ReadAfterCompose: w.Journey.ReadAfterCompose,
		},
		Post: PostFile{
			Style:      string(w.Post.Style),
			TextLength: w.Post.TextLength,
			PostType:   &postType,
		},
		SeedUserID:           w.SeedUserID,
		ExistingUsers:        w.ExistingUsers,
		TimelineStop:         w.TimelineStop,
		ReadsPerIteration:    w.ReadsPerIteration,
		ClientWork:           w.ClientWork,
		SlowRequestThreshold: Duration(w.SlowRequestThreshold),
		CheckLatency:         latencyCheckFileOf(w.CheckLatency),
	}
	return f
}

// Marshal renders p as a YAML profile document.
func Marshal(p *Profile) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(ToFile(p)); err != nil {
		return nil, fmt.Errorf("error encoding profile: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func pauseOf(t workload.ThinkTime) Pause {
	if t.Max <= t.Min {
		return Pause{Min: Duration(t.Min)}
	}
	return Pause{Min: Duration(t.Min), Max: Duration(t.Max)}
}
