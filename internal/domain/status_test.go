package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleEscalates(t *testing.T) {
	testCases := []struct {
		from, to Role
		expected bool
	}{
		{RoleStudent, RoleTeacher, true},
		{RoleStudent, RoleAdmin, true},
		{RoleTeacher, RoleAdmin, true},
		{RoleTeacher, RoleStudent, false},
		{RoleAdmin, RoleTeacher, false},
		{RoleStudent, RoleStudent, false},
		{Role(""), RoleStudent, true},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, tc.from.Escalates(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestEnrollmentTransitions(t *testing.T) {
	assert.True(t, EnrollmentEnrolled.CanTransitionTo(EnrollmentCompleted))
	assert.True(t, EnrollmentCompleted.CanTransitionTo(EnrollmentCompleted))
	assert.False(t, EnrollmentCompleted.CanTransitionTo(EnrollmentEnrolled))
	assert.False(t, EnrollmentDropped.CanTransitionTo(EnrollmentEnrolled))
	assert.False(t, EnrollmentDropped.CanTransitionTo(EnrollmentCompleted))
}
