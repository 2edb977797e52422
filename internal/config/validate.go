package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

// validate is shared; validator caches struct metadata.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration once at load time.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", describe(err))
	}
	if c.Audit.PruneSchedule != "" {
		if _, err := cron.ParseStandard(c.Audit.PruneSchedule); err != nil {
			return fmt.Errorf("config validation failed: audit.prune_schedule: %w", err)
		}
	}
	for name := range c.Services {
		if strings.TrimSpace(name) == "" {
			return errors.New("config validation failed: services: empty capability name")
		}
	}
	if c.Reviewer.Kind == "openai" && c.Reviewer.APIKeyEnv == "" && c.Reviewer.BaseURL == "" {
		return errors.New("config validation failed: reviewer: openai needs api_key_env or base_url")
	}
	return nil
}

// describe flattens validator errors into "Field: tag" pairs.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		ns := fe.Namespace()
		ns = strings.TrimPrefix(ns, "Config.")
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s (got %v)", ns, fe.Tag(), fe.Param(), fe.Value()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", ns, fe.Tag()))
		}
	}
	return errors.New(strings.Join(parts, "; "))
}
