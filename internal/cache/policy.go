package cache

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy binds a logical data class to a tier.
type Policy map[string]Tier

// DefaultPolicy covers the hub's data classes.
func DefaultPolicy() Policy {
	return Policy{
		"queries":    TierBoth,
		"reports":    TierDistributed,
		"dashboards": TierBoth,
		"metrics":    TierLocal,
		"connectors": TierLocal,
		"templates":  TierLocal,
	}
}

// TierFor resolves the tier for a class, defaulting to local.
func (p Policy) TierFor(class string) Tier {
	if t, ok := p[class]; ok {
		return t
	}
	return TierLocal
}

type policyFile struct {
	Classes map[string]string `yaml:"classes"`
}

// LoadPolicy reads a class→tier table from a YAML file:
//
//	classes:
//	  queries: both
//	  reports: distributed
//	  metrics: local
func LoadPolicy(path string) (Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var pf policyFile
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return nil, fmt.Errorf("parse cache policy: %w", err)
	}

	policy := DefaultPolicy()
	for class, tierName := range pf.Classes {
		switch tierName {
		case "local":
			policy[class] = TierLocal
		case "distributed":
			policy[class] = TierDistributed
		case "both":
			policy[class] = TierBoth
		default:
			return nil, fmt.Errorf("cache policy class %q: unknown tier %q", class, tierName)
		}
	}
	return policy, nil
}
