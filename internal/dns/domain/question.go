package domain

import (
	"fmt"

	"github.com/haukened/rr-relay/internal/dns/common/utils"
)

// Question is the single question section entry carried by every message the
// relay handles.
type Question struct {
	Name  string
	Type  RRType
	Class RRClass
}

// NewQuestion constructs a Question for name and validates it.
func NewQuestion(name string, rrtype RRType, class RRClass) (Question, error) {
	q := Question{
		Name:  name,
		Type:  rrtype,
		Class: class,
	}
	if err := q.Validate(); err != nil {
		return Question{}, err
	}
	return q, nil
}

// Validate checks whether the Question is usable for a synthesized query.
func (q Question) Validate() error {
	if q.Name == "" {
		return fmt.Errorf("question name must not be empty")
	}
	if q.Type == 0 {
		return fmt.Errorf("question type must be set")
	}
	if q.Class == 0 {
		return fmt.Errorf("question class must be set")
	}
	return nil
}

// CanonicalName returns the question name as used for authority lookups.
func (q Question) CanonicalName() string {
	return utils.CanonicalDNSName(q.Name)
}

func (q Question) String() string {
	return fmt.Sprintf("%s %s %s", q.Name, q.Class, q.Type)
}
