package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EndpointSpec declares one dependency to wait on:
// endpoints: [{name, host, port, protocol, path}]
type EndpointSpec struct {
	Name     string `yaml:"name"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Protocol string `yaml:"protocol"`
	Path     string `yaml:"path,omitempty"`
}

// InitStepSpec declares one ordered initialization step. Action names a
// registered setup action (create-schema, create-collection, verify-cache).
type InitStepSpec struct {
	Name          string        `yaml:"name"`
	DependsOn     string        `yaml:"depends_on"`
	Action        string        `yaml:"action"`
	RetryAttempts int           `yaml:"retry_attempts,omitempty"`
	RetryInterval time.Duration `yaml:"retry_interval,omitempty"`
	Optional      bool          `yaml:"optional,omitempty"`
}

// WaitSpec overrides the dependency wait policy. Zero max_attempts keeps the
// unbounded infra wait; timeout is an optional operational bound.
type WaitSpec struct {
	Interval    time.Duration `yaml:"interval,omitempty"`
	MaxAttempts int           `yaml:"max_attempts,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
}

// ReadinessSpec declares the application health endpoint, probed with a
// success-status requirement after launch.
type ReadinessSpec struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// AppSpec declares the dependent application.
type AppSpec struct {
	Service    string        `yaml:"service"`
	LaunchWait time.Duration `yaml:"launch_wait,omitempty"`
	Readiness  ReadinessSpec `yaml:"readiness"`
}

// Plan is the parsed YAML bootstrap plan:
// endpoints, init_steps, wait, app.
type Plan struct {
	Endpoints []EndpointSpec `yaml:"endpoints"`
	InitSteps []InitStepSpec `yaml:"init_steps"`
	Wait      WaitSpec       `yaml:"wait,omitempty"`
	App       AppSpec        `yaml:"app"`
}

// LoadPlan parses a YAML bootstrap plan from the given path.
func LoadPlan(path string) (Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, fmt.Errorf("read plan file: %w", err)
	}

	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return Plan{}, fmt.Errorf("parse plan file: %w", err)
	}

	if err := plan.Validate(); err != nil {
		return Plan{}, err
	}

	return plan, nil
}

// Validate ensures the plan is internally consistent. Steps may depend on
// endpoints discovered from a compose file, so dependency references are
// cross-checked later, once discovery has run.
func (p Plan) Validate() error {
	if len(p.Endpoints) == 0 && p.App.Service == "" {
		return errors.New("plan declares neither endpoints nor an app service")
	}

	seenEndpoints := make(map[string]bool, len(p.Endpoints))
	for i, endpoint := range p.Endpoints {
		if endpoint.Name == "" {
			return fmt.Errorf("endpoint %d: name is required", i)
		}
		if seenEndpoints[endpoint.Name] {
			return fmt.Errorf("duplicate endpoint name %q", endpoint.Name)
		}
		seenEndpoints[endpoint.Name] = true

		if endpoint.Host == "" {
			return fmt.Errorf("endpoint %q: host is required", endpoint.Name)
		}
		if endpoint.Port <= 0 || endpoint.Port > 65535 {
			return fmt.Errorf("endpoint %q: port %d out of range", endpoint.Name, endpoint.Port)
		}
		switch endpoint.Protocol {
		case "tcp", "http":
		default:
			return fmt.Errorf("endpoint %q: protocol must be tcp or http, got %q", endpoint.Name, endpoint.Protocol)
		}
	}

	seenSteps := make(map[string]bool, len(p.InitSteps))
	for i, step := range p.InitSteps {
		if step.Name == "" {
			return fmt.Errorf("init step %d: name is required", i)
		}
		if seenSteps[step.Name] {
			return fmt.Errorf("duplicate init step name %q", step.Name)
		}
		seenSteps[step.Name] = true

		if step.Action == "" {
			return fmt.Errorf("init step %q: action is required", step.Name)
		}
		if step.RetryAttempts < 0 {
			return fmt.Errorf("init step %q: retry_attempts must not be negative", step.Name)
		}
		if step.RetryInterval < 0 {
			return fmt.Errorf("init step %q: retry_interval must not be negative", step.Name)
		}
	}

	if p.Wait.Interval < 0 || p.Wait.MaxAttempts < 0 || p.Wait.Timeout < 0 {
		return errors.New("wait policy values must not be negative")
	}

	if p.App.Service != "" {
		r := p.App.Readiness
		if r.Host == "" || r.Port <= 0 {
			return fmt.Errorf("app %q: readiness host and port are required", p.App.Service)
		}
		if p.App.LaunchWait < 0 {
			return fmt.Errorf("app %q: launch_wait must not be negative", p.App.Service)
		}
	}

	return nil
}
