// Package webhostmeta models the document served by a service at
// /.well-known/host-meta.json. The upstream schema (RFC 6415 JRD) and its
// parser are treated as an external collaborator: this package only
// carries the opaque value the rest of the control plane needs —
// validity, emptiness, and base-URL rewriting — plus the minimal decode
// step required to turn a probe response body into one.
package webhostmeta

import (
	"encoding/json"
	"net/url"
)

// Link is one entry of the host-meta document's "links" array.
type Link struct {
	Rel      string            `json:"rel"`
	Href     string            `json:"href,omitempty"`
	Template string            `json:"template,omitempty"`
	Type     string            `json:"type,omitempty"`
	Titles   map[string]string `json:"titles,omitempty"`
}

// WebHostMeta is the opaque discovery document attached to a Service once
// the crawler has successfully probed it.
type WebHostMeta struct {
	valid   bool
	present bool
	subject string
	aliases []string
	links   []Link
}

// Empty returns the zero-value meta: well-formed request, but the
// service has nothing (or nothing parseable) to report. Never inserted
// into the cache.
func Empty() WebHostMeta {
	return WebHostMeta{valid: false, present: false}
}

// Invalid returns the meta used when the probe itself failed in a way
// that should be retried soon (as opposed to assumed permanently
// unavailable). Never inserted into the cache.
func Invalid() WebHostMeta {
	return WebHostMeta{valid: false, present: false}
}

// Parse decodes a host-meta.json response body. A malformed or empty
// body yields Empty() rather than an error — the caller (the forwarder)
// reports this as "Ok(None)" in spec terms, i.e. an unparseable body is
// not a transport failure.
func Parse(body []byte) WebHostMeta {
	if len(body) == 0 {
		return Empty()
	}

	var doc struct {
		Subject string   `json:"subject,omitempty"`
		Aliases []string `json:"aliases,omitempty"`
		Links   []Link   `json:"links,omitempty"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return Empty()
	}
	if doc.Subject == "" && len(doc.Aliases) == 0 && len(doc.Links) == 0 {
		return Empty()
	}

	return WebHostMeta{
		valid:   true,
		present: true,
		subject: doc.Subject,
		aliases: doc.Aliases,
		links:   doc.Links,
	}
}

// IsValid reports whether this meta carries a real, non-empty document
// that should be cached.
func (m WebHostMeta) IsValid() bool {
	return m.valid
}

// IsEmpty reports whether this meta is the empty sentinel (no document,
// or a document with nothing in it).
func (m WebHostMeta) IsEmpty() bool {
	return !m.present
}

// WithBaseURL rewrites every relative href/template in the document
// against the given base URL, returning a new value (the type is
// immutable).
func (m WebHostMeta) WithBaseURL(baseURL string) WebHostMeta {
	if !m.present {
		return m
	}
	isAbs := func(s string) bool {
		u, err := url.Parse(s)
		return err == nil && u.IsAbs()
	}
	rewritten := make([]Link, len(m.links))
	for i, l := range m.links {
		rl := l
		if rl.Href != "" && !isAbs(rl.Href) {
			rl.Href = baseURL + rl.Href
		}
		if rl.Template != "" && !isAbs(rl.Template) {
			rl.Template = baseURL + rl.Template
		}
		rewritten[i] = rl
	}
	return WebHostMeta{
		valid:   m.valid,
		present: m.present,
		subject: m.subject,
		aliases: m.aliases,
		links:   rewritten,
	}
}

// Links returns the document's links, if any.
func (m WebHostMeta) Links() []Link {
	return m.links
}
