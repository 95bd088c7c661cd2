package pricing

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ComboMode discriminates the ComboInfo variants.
type ComboMode string

const (
	// ComboSingle is produced by server-side matching of one combo kind.
	ComboSingle ComboMode = "single"
	// ComboAggregate carries multi-combo savings bookkeeping.
	ComboAggregate ComboMode = "aggregate"
)

// SingleCombo describes one applied combo kind.
type SingleCombo struct {
	ComboID   string `json:"comboId"`
	ComboName string `json:"comboName"`
	Savings   Money  `json:"savings"`
	Message   string `json:"message,omitempty"`
}

// AggregateSavings describes savings spread across several combos.
type AggregateSavings struct {
	Savings       Money           `json:"savings"`
	OriginalTotal Money           `json:"originalTotal"`
	FinalTotal    Money           `json:"finalTotal"`
	Combos        json.RawMessage `json:"combos,omitempty"`
	Breakdown     json.RawMessage `json:"breakdown,omitempty"`
}

// AppliedCombo is the per-combo entry of an aggregate computed server-side.
type AppliedCombo struct {
	ComboID   string `json:"comboId"`
	ComboName string `json:"comboName"`
	Count     int    `json:"count"`
	Savings   Money  `json:"savings"`
}

// ComboInfo is a tagged union; exactly one of Single or Aggregate is set,
// selected by Mode.
type ComboInfo struct {
	Mode      ComboMode
	Single    *SingleCombo
	Aggregate *AggregateSavings
}

// NewSingle wraps a single-combo result.
func NewSingle(s SingleCombo) *ComboInfo {
	return &ComboInfo{Mode: ComboSingle, Single: &s}
}

// NewAggregate builds an aggregate result from server-side bookkeeping.
func NewAggregate(original, final Money, combos []AppliedCombo, breakdown json.RawMessage) (*ComboInfo, error) {
	raw, err := json.Marshal(combos)
	if err != nil {
		return nil, fmt.Errorf("encode combos: %w", err)
	}
	return &ComboInfo{Mode: ComboAggregate, Aggregate: &AggregateSavings{
		Savings:       original - final,
		OriginalTotal: original,
		FinalTotal:    final,
		Combos:        raw,
		Breakdown:     breakdown,
	}}, nil
}

// Savings returns the savings carried by whichever variant is set.
func (c *ComboInfo) Savings() Money {
	if c == nil {
		return 0
	}
	switch c.Mode {
	case ComboSingle:
		if c.Single != nil {
			return c.Single.Savings
		}
	case ComboAggregate:
		if c.Aggregate != nil {
			return c.Aggregate.Savings
		}
	}
	return 0
}

// Validate checks that the variant matches its discriminant and that
// aggregate totals reconcile exactly.
func (c *ComboInfo) Validate() error {
	if c == nil {
		return nil
	}
	switch c.Mode {
	case ComboSingle:
		if c.Single == nil || c.Aggregate != nil {
			return fmt.Errorf("%w: single combo info malformed", ErrInvalid)
		}
		if c.Single.Savings < 0 {
			return fmt.Errorf("%w: negative savings", ErrInvalid)
		}
	case ComboAggregate:
		a := c.Aggregate
		if a == nil || c.Single != nil {
			return fmt.Errorf("%w: aggregate combo info malformed", ErrInvalid)
		}
		if a.Savings < 0 || a.FinalTotal < 0 || a.OriginalTotal-a.FinalTotal != a.Savings {
			return ErrTotalsMismatch
		}
	default:
		return fmt.Errorf("%w: unknown combo info mode %q", ErrInvalid, c.Mode)
	}
	return nil
}

// MarshalJSON flattens the active variant next to its mode tag.
func (c ComboInfo) MarshalJSON() ([]byte, error) {
	switch c.Mode {
	case ComboSingle:
		if c.Single == nil {
			return nil, errors.New("combo info: single variant missing")
		}
		return json.Marshal(struct {
			Mode ComboMode `json:"mode"`
			SingleCombo
		}{c.Mode, *c.Single})
	case ComboAggregate:
		if c.Aggregate == nil {
			return nil, errors.New("combo info: aggregate variant missing")
		}
		return json.Marshal(struct {
			Mode ComboMode `json:"mode"`
			AggregateSavings
		}{c.Mode, *c.Aggregate})
	default:
		return nil, fmt.Errorf("combo info: unknown mode %q", c.Mode)
	}
}

// UnmarshalJSON decodes the variant selected by the mode tag.
func (c *ComboInfo) UnmarshalJSON(data []byte) error {
	var tag struct {
		Mode ComboMode `json:"mode"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return err
	}
	*c = ComboInfo{Mode: tag.Mode}
	switch tag.Mode {
	case ComboSingle:
		c.Single = &SingleCombo{}
		return json.Unmarshal(data, c.Single)
	case ComboAggregate:
		c.Aggregate = &AggregateSavings{}
		return json.Unmarshal(data, c.Aggregate)
	default:
		return fmt.Errorf("combo info: unknown mode %q", tag.Mode)
	}
}
