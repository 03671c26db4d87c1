package data

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// Resource names. Each maps to one list endpoint.
const (
	ResourcePosts  = "posts"
	ResourceAuthor = "author"
	ResourceClan   = "clan"
	ResourceSearch = "search"
)

var resourcePattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// Key identifies one cached page of one resource.
//
// The rendered form is <resource>/<escaped id>?<sorted query>#p=<page>.
// Resource names cannot contain '/', the id is path-escaped and the query is
// form-encoded, so two distinct keys never render to the same string.
type Key struct {
	Resource string
	ID       string
	Query    url.Values
	Page     int
}

// NewKey builds a key for page 1 of resource. The query is copied.
func NewKey(resource, id string, query url.Values) Key {
	var q url.Values
	if len(query) > 0 {
		q = make(url.Values, len(query))
		for k, v := range query {
			q[k] = append([]string(nil), v...)
		}
	}
	return Key{Resource: resource, ID: id, Query: q, Page: 1}
}

// WithPage returns a copy of k addressing page.
func (k Key) WithPage(page int) Key {
	k.Page = page
	return k
}

// Validate reports whether the key can be rendered unambiguously.
func (k Key) Validate() error {
	if !resourcePattern.MatchString(k.Resource) {
		return fmt.Errorf("invalid resource name %q", k.Resource)
	}
	if k.Page < 1 {
		return fmt.Errorf("invalid page %d for %s", k.Page, k.Resource)
	}
	return nil
}

func (k Key) String() string {
	var b strings.Builder
	b.WriteString(k.Resource)
	b.WriteByte('/')
	b.WriteString(url.PathEscape(k.ID))
	b.WriteByte('?')
	b.WriteString(k.Query.Encode())
	b.WriteString("#p=")
	b.WriteString(strconv.Itoa(k.Page))
	return b.String()
}

// Feed returns the key with the page stripped, used to name a feed.
func (k Key) Feed() string {
	s := k.WithPage(1).String()
	return strings.TrimSuffix(s, "#p=1")
}
