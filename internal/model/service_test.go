package model

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestParseContainerType(t *testing.T) {
	cases := []struct {
		label string
		want  ContainerType
	}{
		{"", Instance},
		{"instance", Instance},
		{"application-companion", ApplicationCompanion},
		{"service-companion", ServiceCompanion},
		{"linked", Linked},
	}
	for _, c := range cases {
		got, err := ParseContainerType(c.label)
		assert.NilError(t, err)
		assert.Equal(t, got, c.want)
	}
}

func TestParseContainerType_UnknownIsError(t *testing.T) {
	_, err := ParseContainerType("something-else")
	assert.ErrorContains(t, err, "unknown container type label")
}

func TestService_EqualByIDOnly(t *testing.T) {
	a, _ := NewAppName("demo")
	s1 := Service{AppName: a, ServiceName: "web", ID: "abc", Status: StatusRunning}
	s2 := Service{AppName: a, ServiceName: "different-name", ID: "abc", Status: StatusPaused}
	s3 := Service{AppName: a, ServiceName: "web", ID: "xyz", Status: StatusRunning}

	assert.Assert(t, s1.Equal(s2))
	assert.Assert(t, !s1.Equal(s3))
}
