// Package proactive evaluates profile rules that surface unsolicited
// suggestions alongside a normal reply. Every rule is a predicate over a
// Snapshot; no rule inspects user identity.
package proactive

import (
	"time"

	"citizen-assistant/internal/domain"
)

// Snapshot is the directory state a turn's rules evaluate against.
type Snapshot struct {
	Profile      *domain.UserProfile
	Payments     []domain.Payment
	Applications []domain.Application
	Now          time.Time
}

func (s Snapshot) children() []domain.Child {
	if s.Profile == nil {
		return nil
	}
	return s.Profile.Family.Children
}

func (s Snapshot) income() float64 {
	if s.Profile == nil {
		return 0
	}
	return s.Profile.Financial.Income
}

// ChildAges returns the age of each child in declaration order.
func (s Snapshot) ChildAges() []int {
	kids := s.children()
	ages := make([]int, len(kids))
	for i, c := range kids {
		ages[i] = domain.AgeOn(c.DateOfBirth, s.Now)
	}
	return ages
}

// Youngest returns the child with the latest date of birth.
func (s Snapshot) Youngest() (domain.Child, bool) {
	kids := s.children()
	if len(kids) == 0 {
		return domain.Child{}, false
	}
	youngest := kids[0]
	for _, c := range kids[1:] {
		if c.DateOfBirth.After(youngest.DateOfBirth) {
			youngest = c
		}
	}
	return youngest, true
}

// PaymentsDueWithin returns payments whose next date is between now and
// now+days, in directory order.
func (s Snapshot) PaymentsDueWithin(days int) []domain.Payment {
	var out []domain.Payment
	for _, p := range s.Payments {
		if p.NextPaymentDate.IsZero() {
			continue
		}
		d := domain.DaysUntil(p.NextPaymentDate, s.Now)
		if d >= 0 && d <= days {
			out = append(out, p)
		}
	}
	return out
}

// PaymentsDueBy returns payments whose next date is no later than now+days,
// including overdue ones, in directory order.
func (s Snapshot) PaymentsDueBy(days int) []domain.Payment {
	var out []domain.Payment
	for _, p := range s.Payments {
		if !p.NextPaymentDate.IsZero() && domain.DaysUntil(p.NextPaymentDate, s.Now) <= days {
			out = append(out, p)
		}
	}
	return out
}

// PendingApplications returns applications still awaiting a decision.
func (s Snapshot) PendingApplications() []domain.Application {
	var out []domain.Application
	for _, a := range s.Applications {
		if a.Status == domain.ApplicationSubmitted {
			out = append(out, a)
		}
	}
	return out
}
