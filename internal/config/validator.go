package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"serverharness/internal/logging"
	"serverharness/internal/step"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "timing.startup_timeout_ms")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Validate checks the Config for invalid values and returns all validation
// errors found. Missing server settings are not reported here; the
// orchestrator rejects them when a run starts.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors

	errs = append(errs, c.validateTiming()...)
	errs = append(errs, c.validateInstall()...)
	errs = append(errs, c.validateProvision()...)
	errs = append(errs, c.validateProperties()...)
	errs = append(errs, c.validateSteps()...)
	errs = append(errs, c.validateLogging()...)

	return errs
}

func (c *Config) validateTiming() []ValidationError {
	var errs []ValidationError
	fields := []struct {
		name  string
		value int
	}{
		{"timing.startup_timeout_ms", c.Timing.StartupTimeoutMS},
		{"timing.delay_before_steps_ms", c.Timing.DelayBeforeStepsMS},
		{"timing.delay_between_steps_ms", c.Timing.DelayBetweenStepsMS},
		{"timing.stop_timeout_ms", c.Timing.StopTimeoutMS},
	}
	for _, f := range fields {
		if f.value < 0 {
			errs = append(errs, ValidationError{Field: f.name, Value: f.value, Message: "must not be negative"})
		}
	}
	return errs
}

func (c *Config) validateInstall() []ValidationError {
	var errs []ValidationError

	if u, err := url.Parse(c.Install.MavenURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, ValidationError{
			Field:   "install.maven_url",
			Value:   c.Install.MavenURL,
			Message: "must be an http or https URL",
		})
	}
	if c.Install.MaxRetries < 0 {
		errs = append(errs, ValidationError{Field: "install.max_retries", Value: c.Install.MaxRetries, Message: "must not be negative"})
	}
	return errs
}

func (c *Config) validateProvision() []ValidationError {
	if c.Provision.Concurrency < 1 {
		return []ValidationError{{Field: "provision.concurrency", Value: c.Provision.Concurrency, Message: "must be at least 1"}}
	}
	return nil
}

func (c *Config) validateProperties() []ValidationError {
	if p := c.Properties.Port; p < 0 || p > 65535 {
		return []ValidationError{{Field: "properties.port", Value: p, Message: "must be between 0 and 65535"}}
	}
	return nil
}

func (c *Config) validateSteps() []ValidationError {
	var errs []ValidationError
	for i, s := range c.Steps {
		field := fmt.Sprintf("steps[%d]", i)
		switch {
		case s.Command == "" && s.Await == "":
			errs = append(errs, ValidationError{Field: field, Value: s, Message: "must set command or await"})
		case s.Command != "" && s.Await != "":
			errs = append(errs, ValidationError{Field: field, Value: s, Message: "must set only one of command and await"})
		case s.Command != "" && s.TimeoutMS != 0:
			errs = append(errs, ValidationError{Field: field + ".timeout_ms", Value: s.TimeoutMS, Message: "only applies to await"})
		case s.TimeoutMS < 0:
			errs = append(errs, ValidationError{Field: field + ".timeout_ms", Value: s.TimeoutMS, Message: "must not be negative"})
		}
	}
	return errs
}

func (c *Config) validateLogging() []ValidationError {
	if c.Logging.Level != "" && !slices.Contains(logging.ValidLevels(), strings.ToUpper(c.Logging.Level)) {
		return []ValidationError{{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(logging.ValidLevels(), ", ")),
		}}
	}
	return nil
}

// BuildSteps converts the configured steps into executable steps, in order.
func (c *Config) BuildSteps() ([]step.Step, error) {
	if errs := c.validateSteps(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	steps := make([]step.Step, 0, len(c.Steps))
	for _, s := range c.Steps {
		if s.Command != "" {
			steps = append(steps, step.NewCommand(s.Command))
			continue
		}
		steps = append(steps, step.NewAwait(s.Await, time.Duration(s.TimeoutMS)*time.Millisecond))
	}
	return steps, nil
}
