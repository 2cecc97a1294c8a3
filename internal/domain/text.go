package domain

import (
	"fmt"
	"strings"
)

// ─── Text Encoding ──────────────────────────────────────────────────────────
// Enumerations travel as their names in JSON and TOML, never as integers.

// ParseOutcome is the inverse of Outcome.String.
func ParseOutcome(s string) (Outcome, error) {
	for o := OutcomeNone; o <= OutcomeUnfunded; o++ {
		if strings.EqualFold(s, o.String()) {
			return o, nil
		}
	}
	return 0, fmt.Errorf("unknown outcome %q", s)
}

// ParseChoice accepts FOR/AGAINST and the yes/no shorthands.
func ParseChoice(s string) (Choice, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "FOR", "YES", "Y":
		return ChoiceFor, nil
	case "AGAINST", "NO", "N":
		return ChoiceAgainst, nil
	default:
		return 0, fmt.Errorf("unknown choice %q", s)
	}
}

func (k ProposalKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *ProposalKind) UnmarshalText(b []byte) error {
	v, err := ParseProposalKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

func (c Choice) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Choice) UnmarshalText(b []byte) error {
	v, err := ParseChoice(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *Outcome) UnmarshalText(b []byte) error {
	v, err := ParseOutcome(string(b))
	if err != nil {
		return err
	}
	*o = v
	return nil
}

func (s ProposalState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *ProposalState) UnmarshalText(b []byte) error {
	v, err := ParseProposalState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
