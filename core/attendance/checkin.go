package attendance

import (
	"github.com/pkg/errors"

	"github.com/vilmosmisota/sportapp/core/member"
)

// Reason tells why a check-in was turned down.
type Reason int

const (
	ReasonNotFound Reason = iota + 1
	ReasonNotEligible
	ReasonAlreadyCheckedIn
)

func (r Reason) String() string {
	switch r {
	case ReasonNotFound:
		return "not_found"
	case ReasonNotEligible:
		return "not_eligible"
	case ReasonAlreadyCheckedIn:
		return "already_checked_in"
	}
	return "unknown"
}

// Rejection is returned by the lookup and eligibility steps instead of a member.
// ReasonAlreadyCheckedIn carries the existing Record and is informational, not a failure.
type Rejection struct {
	Reason Reason
	Member *member.Member
	Record *Record
}

func (r *Rejection) Error() string {
	switch r.Reason {
	case ReasonNotFound:
		return "no member found with this PIN"
	case ReasonNotEligible:
		return "member is not part of this team's session"
	case ReasonAlreadyCheckedIn:
		return "member is already checked in"
	}
	return "check-in rejected"
}

// AsRejection unwraps err into a *Rejection.
func AsRejection(err error) (*Rejection, bool) {
	rej, ok := errors.Cause(err).(*Rejection)
	return rej, ok
}

// IsRejected reports whether err is a Rejection for reason.
func IsRejected(err error, reason Reason) bool {
	rej, ok := AsRejection(err)
	return ok && rej.Reason == reason
}

// ErrAmbiguousPIN means more than one member of a tenant shares a PIN, which the storage layer should prevent.
var ErrAmbiguousPIN = errors.New("PIN matches more than one member")

// LookupByPIN picks the member whose PIN is exactly pin among candidates.
func LookupByPIN(candidates []member.Member, pin string) (member.Member, error) {
	var matches []member.Member
	for _, m := range candidates {
		if m.PIN.Valid && m.PIN.String == pin {
			matches = append(matches, m)
		}
	}
	switch len(matches) {
	case 0:
		return member.Member{}, &Rejection{Reason: ReasonNotFound}
	case 1:
		return matches[0], nil
	default:
		return member.Member{}, ErrAmbiguousPIN
	}
}

// CheckEligibility checks that m may check in to sess. existing is m's record for sess, if any.
func CheckEligibility(sess Session, m member.Member, existing *Record) error {
	if !m.OnTeam(sess.TeamID) {
		return &Rejection{Reason: ReasonNotEligible, Member: &m}
	}
	if existing != nil {
		return &Rejection{Reason: ReasonAlreadyCheckedIn, Member: &m, Record: existing}
	}
	return nil
}
