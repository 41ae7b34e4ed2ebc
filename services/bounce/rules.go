package bounce

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/customeros/mailwarden/internal/enum"
	"github.com/customeros/mailwarden/internal/models"
)

// DefaultRules apply to domains without their own bounce_rules.
var DefaultRules = models.BounceRules{
	{
		Type: enum.BounceHard,
		Patterns: []string{
			"user unknown",
			"unknown user",
			"no such user",
			"mailbox not found",
			"mailbox unavailable",
			"recipient address rejected",
			"invalid recipient",
			"address does not exist",
			"does not exist",
			"account has been disabled",
			"no mailbox here",
			"5.1.1",
		},
	},
	{
		Type: enum.BounceSoft,
		Patterns: []string{
			"mailbox full",
			"over quota",
			"quota exceeded",
			"insufficient storage",
			"temporarily deferred",
			"temporary failure",
			"try again later",
			"4.2.2",
		},
	},
	{
		Type: enum.BounceSpam,
		Patterns: []string{
			"spam",
			"blacklisted",
			"blocklisted",
			"blocked",
			"junk mail",
			"content rejected",
			"5.7.1",
		},
	},
}

type rulesFile struct {
	Rules models.BounceRules `yaml:"rules"`
}

// LoadRules reads an ordered rule list from a YAML file:
//
//	rules:
//	  - type: hard
//	    patterns: ["user unknown", "no such user"]
func LoadRules(path string) (models.BounceRules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read bounce rules")
	}

	var file rulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(err, "parse bounce rules")
	}
	if err := ValidateRules(file.Rules); err != nil {
		return nil, err
	}
	return file.Rules, nil
}

func ValidateRules(rules models.BounceRules) error {
	if len(rules) == 0 {
		return errors.New("no bounce rules defined")
	}
	for i, rule := range rules {
		switch rule.Type {
		case enum.BounceHard, enum.BounceSoft, enum.BounceSpam, enum.BounceUnknown:
		default:
			return errors.Errorf("rule %d: unknown bounce type %q", i, rule.Type)
		}
		if len(rule.Patterns) == 0 {
			return errors.Errorf("rule %d: no patterns", i)
		}
	}
	return nil
}
