package compliance

import (
	"errors"
	"fmt"
)

// Policy は警告・除籍のしきい値。デプロイ単位で固定
type Policy struct {
	WarnUnjustified    int `yaml:"warn_unjustified"`
	WarnTotal          int `yaml:"warn_total"`
	ExcludeUnjustified int `yaml:"exclude_unjustified"`
	ExcludeJustified   int `yaml:"exclude_justified"`
}

func DefaultPolicy() Policy {
	return Policy{
		WarnUnjustified:    2,
		WarnTotal:          3,
		ExcludeUnjustified: 3,
		ExcludeJustified:   5,
	}
}

func (p Policy) Validate() error {
	var errs []error
	if p.WarnUnjustified < 1 {
		errs = append(errs, errors.New("policy.warn_unjustified must be >= 1"))
	}
	if p.WarnTotal < 1 {
		errs = append(errs, errors.New("policy.warn_total must be >= 1"))
	}
	if p.ExcludeUnjustified < p.WarnUnjustified {
		errs = append(errs, fmt.Errorf("policy.exclude_unjustified (%d) must be >= warn_unjustified (%d)", p.ExcludeUnjustified, p.WarnUnjustified))
	}
	if p.ExcludeJustified < 1 {
		errs = append(errs, errors.New("policy.exclude_justified must be >= 1"))
	}
	return errors.Join(errs...)
}
