package config

import (
	"context"
	"fmt"
)

// applyGenerators runs each generator script against the declared axes
// and folds its exports back into the specification. A generator sees the
// current matrix as `axes` (axis name to member list) and may export:
//
//	members = {"net": ["thread"]}           # extra axis members
//	exclude = [["mcu", "esp32", "net", "thread"]]  # extra exclusion pairs
//
// Generators run in declaration order, each seeing the members added by
// its predecessors. Everything a generator emits still goes through the
// same validation as declared configuration.
func (p *Parser) applyGenerators(ctx context.Context, mc *MatrixConfig) error {
	for _, gen := range mc.Generators {
		axes := make(map[string]interface{}, len(mc.Axes))
		for _, axis := range mc.Axes {
			axes[axis.Name] = axis.Members
		}

		result, err := p.evaluator.Evaluate(ctx, gen.Script, map[string]interface{}{
			"axes": axes,
		})
		if err != nil {
			return fmt.Errorf("generator %s: %w", gen.Name, err)
		}

		if raw, ok := result.Output["members"]; ok {
			if err := mergeGeneratedMembers(mc, raw); err != nil {
				return fmt.Errorf("generator %s: %w", gen.Name, err)
			}
		}
		if raw, ok := result.Output["exclude"]; ok {
			if err := mergeGeneratedExclusions(mc, raw); err != nil {
				return fmt.Errorf("generator %s: %w", gen.Name, err)
			}
		}
	}
	return nil
}

// mergeGeneratedMembers appends generated members to their axes.
func mergeGeneratedMembers(mc *MatrixConfig, raw interface{}) error {
	byAxis, ok := raw.(map[string]interface{})
	if !ok {
		return fmt.Errorf("members must be a dict of axis to member list, got %T", raw)
	}

	for axisName, rawMembers := range byAxis {
		members, err := stringList(rawMembers)
		if err != nil {
			return fmt.Errorf("members[%s]: %w", axisName, err)
		}

		found := false
		for i := range mc.Axes {
			if mc.Axes[i].Name == axisName {
				mc.Axes[i].Members = append(mc.Axes[i].Members, members...)
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("members[%s]: axis not declared", axisName)
		}
	}
	return nil
}

// mergeGeneratedExclusions appends generated exclusion pairs.
func mergeGeneratedExclusions(mc *MatrixConfig, raw interface{}) error {
	rules, ok := raw.([]interface{})
	if !ok {
		return fmt.Errorf("exclude must be a list of 4-element rules, got %T", raw)
	}

	for i, rawRule := range rules {
		rule, err := stringList(rawRule)
		if err != nil {
			return fmt.Errorf("exclude[%d]: %w", i, err)
		}
		if len(rule) != 4 {
			return fmt.Errorf("exclude[%d]: want [axis_a, value_a, axis_b, value_b], got %d elements", i, len(rule))
		}
		mc.Exclude = append(mc.Exclude, ExcludeConfig{
			AxisA: rule[0], ValueA: rule[1],
			AxisB: rule[2], ValueB: rule[3],
		})
	}
	return nil
}

// stringList coerces a decoded Starlark list into []string.
func stringList(raw interface{}) ([]string, error) {
	items, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected a list of strings, got %T", raw)
	}
	out := make([]string, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("element %d: expected string, got %T", i, item)
		}
		out[i] = s
	}
	return out, nil
}
