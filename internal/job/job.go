// Package job reads diff jobs: one explanation run described in YAML.
//
//	test: SELECT * FROM sensor_readings WHERE temperature > 50
//	control_table: sensor_readings_baseline
//	value_columns: [sensor_id]
//	range_columns: [voltage, humidity]
//	min_support: 0.05
//	min_risk_ratio: 2
package job

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/guillermoBallester/whydiff/internal/core/domain"
)

const (
	DefaultMinSupport   = 0.05
	DefaultMinRiskRatio = 2.0
	DefaultMaxOrder     = 1
)

// Job is a diff request as written by a person. Each side is either a
// SELECT statement or a table name. Unset thresholds take the defaults.
type Job struct {
	Test         string   `yaml:"test,omitempty"`
	TestTable    string   `yaml:"test_table,omitempty"`
	Control      string   `yaml:"control,omitempty"`
	ControlTable string   `yaml:"control_table,omitempty"`
	ValueColumns []string `yaml:"value_columns,omitempty"`
	RangeColumns []string `yaml:"range_columns,omitempty"`
	MinSupport   *float64 `yaml:"min_support,omitempty"`
	MinRiskRatio *float64 `yaml:"min_risk_ratio,omitempty"`
	MaxOrder     *int     `yaml:"max_order,omitempty"`
}

// LoadFromFile reads a YAML job file and returns the validated request.
func LoadFromFile(path string) (domain.DiffRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.DiffRequest{}, fmt.Errorf("reading job file: %w", err)
	}

	j, err := Parse(data)
	if err != nil {
		return domain.DiffRequest{}, err
	}

	req, err := j.Request()
	if err != nil {
		return domain.DiffRequest{}, fmt.Errorf("validating job: %w", err)
	}
	return req, nil
}

// Parse decodes a job. Unknown keys are rejected.
func Parse(data []byte) (Job, error) {
	var j Job
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&j); err != nil {
		if errors.Is(err, io.EOF) {
			return Job{}, fmt.Errorf("parsing job YAML: empty document")
		}
		return Job{}, fmt.Errorf("parsing job YAML: %w", err)
	}
	return j, nil
}

// Request converts the job into a validated DiffRequest.
func (j Job) Request() (domain.DiffRequest, error) {
	test, err := relation("test", j.Test, j.TestTable)
	if err != nil {
		return domain.DiffRequest{}, err
	}
	control, err := relation("control", j.Control, j.ControlTable)
	if err != nil {
		return domain.DiffRequest{}, err
	}

	req := domain.DiffRequest{
		Test:         test,
		Control:      control,
		ValueColumns: domain.Columns(j.ValueColumns...),
		RangeColumns: domain.Columns(j.RangeColumns...),
		MinSupport:   DefaultMinSupport,
		MinRiskRatio: DefaultMinRiskRatio,
		MaxOrder:     DefaultMaxOrder,
	}
	if j.MinSupport != nil {
		req.MinSupport = *j.MinSupport
	}
	if j.MinRiskRatio != nil {
		req.MinRiskRatio = *j.MinRiskRatio
	}
	if j.MaxOrder != nil {
		req.MaxOrder = *j.MaxOrder
	}

	if err := req.Validate(); err != nil {
		return domain.DiffRequest{}, err
	}
	return req, nil
}

func relation(side, query, table string) (domain.Relation, error) {
	switch {
	case query != "" && table != "":
		return domain.Relation{}, fmt.Errorf("%w: set either %s or %s_table, not both", domain.ErrInvalidArgument, side, side)
	case query != "":
		return domain.QueryRelation(query), nil
	case table != "":
		return domain.TableRelation(table), nil
	default:
		return domain.Relation{}, fmt.Errorf("%w: %s or %s_table is required", domain.ErrInvalidArgument, side, side)
	}
}
