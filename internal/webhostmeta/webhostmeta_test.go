package webhostmeta

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestParse_EmptyBody(t *testing.T) {
	m := Parse(nil)
	assert.Assert(t, !m.IsValid())
	assert.Assert(t, m.IsEmpty())
}

func TestParse_MalformedBody(t *testing.T) {
	m := Parse([]byte("not json"))
	assert.Assert(t, m.IsEmpty())
}

func TestParse_AllFieldsEmpty(t *testing.T) {
	m := Parse([]byte(`{}`))
	assert.Assert(t, m.IsEmpty())
}

func TestParse_Valid(t *testing.T) {
	body := []byte(`{
		"subject": "/demo/web",
		"links": [{"rel": "self", "href": "/status"}]
	}`)
	m := Parse(body)
	assert.Assert(t, m.IsValid())
	assert.Assert(t, !m.IsEmpty())
	assert.Equal(t, len(m.Links()), 1)
	assert.Equal(t, m.Links()[0].Href, "/status")
}

func TestWithBaseURL_RewritesRelativeLinks(t *testing.T) {
	m := Parse([]byte(`{"links": [{"rel": "self", "href": "/status", "template": "/items/{id}"}]}`))
	rewritten := m.WithBaseURL("http://10.0.0.5:8080")

	assert.Equal(t, rewritten.Links()[0].Href, "http://10.0.0.5:8080/status")
	assert.Equal(t, rewritten.Links()[0].Template, "http://10.0.0.5:8080/items/{id}")
	// original is untouched
	assert.Equal(t, m.Links()[0].Href, "/status")
}

func TestWithBaseURL_OnEmptyIsNoop(t *testing.T) {
	m := Empty()
	rewritten := m.WithBaseURL("http://example.com")
	assert.Assert(t, rewritten.IsEmpty())
}
