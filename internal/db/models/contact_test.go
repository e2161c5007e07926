package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCanTransitionTo(t *testing.T) {
	testCases := []struct {
		name    string
		from    Status
		to      Status
		allowed bool
	}{
		{name: "pending to approved", from: StatusPending, to: StatusApproved, allowed: true},
		{name: "pending to rejected", from: StatusPending, to: StatusRejected, allowed: true},
		{name: "pending to provisioned skips approval", from: StatusPending, to: StatusProvisioned, allowed: false},
		{name: "approved to provisioned", from: StatusApproved, to: StatusProvisioned, allowed: true},
		{name: "approved to partial", from: StatusApproved, to: StatusPartial, allowed: true},
		{name: "approved back to pending", from: StatusApproved, to: StatusPending, allowed: true},
		{name: "partial to provisioned", from: StatusPartial, to: StatusProvisioned, allowed: true},
		{name: "provisioned to approved", from: StatusProvisioned, to: StatusApproved, allowed: false},
		{name: "provisioned deprovisioned to rejected", from: StatusProvisioned, to: StatusRejected, allowed: true},
		{name: "rejected to deleting", from: StatusRejected, to: StatusDeleting, allowed: true},
		{name: "rejected reclassified as bogus", from: StatusRejected, to: StatusBogus, allowed: true},
		{name: "duplicate resurrected to pending", from: StatusDuplicate, to: StatusPending, allowed: true},
		{name: "rejected cannot skip review", from: StatusRejected, to: StatusApproved, allowed: false},
		{name: "deleting is terminal", from: StatusDeleting, to: StatusPending, allowed: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to))
		})
	}
}

func TestStatusIsLive(t *testing.T) {
	assert.True(t, StatusApproved.IsLive())
	assert.True(t, StatusProvisioned.IsLive())
	assert.False(t, StatusPending.IsLive())
	assert.False(t, StatusPartial.IsLive())
	assert.False(t, StatusDuplicate.IsLive())
}

func TestStatusDeprovisionEligible(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusRejected, StatusDuplicate, StatusBogus, StatusUnknown, StatusDeleting} {
		assert.True(t, s.DeprovisionEligible(), "status %s should be deprovision eligible", s)
	}

	for _, s := range []Status{StatusApproved, StatusProvisioned, StatusPartial} {
		assert.False(t, s.DeprovisionEligible(), "status %s should not be deprovision eligible", s)
	}
}

func TestPupilLinkBlank(t *testing.T) {
	assert.True(t, PupilLink{}.Blank())
	assert.True(t, PupilLink{Adno: "1234", Department: "7B"}.Blank())
	assert.True(t, PupilLink{Forename: "  "}.Blank())
	assert.False(t, PupilLink{Forename: "Tom"}.Blank())
	assert.False(t, PupilLink{Surname: "Jones"}.Blank())
}

func TestContactAppendComment(t *testing.T) {
	var c Contact

	c.AppendComment("first")
	c.AppendComment("second")

	lines := strings.Split(c.SystemComment, "\n")

	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "first")
	assert.Contains(t, lines[1], "second")
}

func TestContactFullName(t *testing.T) {
	c := Contact{Forename: "Alice", Surname: "Smith"}
	assert.Equal(t, "Alice Smith", c.FullName())

	c = Contact{Surname: "Smith"}
	assert.Equal(t, "Smith", c.FullName())
}
