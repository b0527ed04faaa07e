// Package sitemap loads the file that maps snapshot sites to destination
// URLs during a pull.
//
// The file lists sites under a "sites" key in JSON, YAML or TOML:
//
//	sites:
//	  - blog_id: 1
//	    home_url: https://example.test
//	  - blog_id: 2
//	    home_url: https://shop.example.test
//	    site_url: https://shop.example.test/wp
//
// A JSON file may also hold the bare list.
package sitemap

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"wpsnapshots/internal/errs"
)

// Entry is the destination of one site.
type Entry struct {
	BlogID  int64  `json:"blog_id" yaml:"blog_id" toml:"blog_id"`
	HomeURL string `json:"home_url" yaml:"home_url" toml:"home_url"`
	SiteURL string `json:"site_url" yaml:"site_url" toml:"site_url"`
}

// Mapping is a parsed mapping file.
type Mapping struct {
	Sites []Entry `json:"sites" yaml:"sites" toml:"sites"`
}

// Load reads a mapping file, choosing the format from its extension.
func Load(path string) (*Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading site mapping: %w", err)
	}
	return Parse(data, strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."))
}

// Parse decodes data in the named format: "json", "yaml", "yml" or "toml".
// Every entry needs a valid home_url; a missing site_url defaults to it.
func Parse(data []byte, format string) (*Mapping, error) {
	var m Mapping
	switch format {
	case "json":
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			if err := json.Unmarshal(trimmed, &m.Sites); err != nil {
				return nil, errs.Wrap(errs.Validation, "", err, "invalid site mapping")
			}
		} else if err := json.Unmarshal(trimmed, &m); err != nil {
			return nil, errs.Wrap(errs.Validation, "", err, "invalid site mapping")
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, errs.Wrap(errs.Validation, "", err, "invalid site mapping")
		}
	case "toml":
		if _, err := toml.Decode(string(data), &m); err != nil {
			return nil, errs.Wrap(errs.Validation, "", err, "invalid site mapping")
		}
	default:
		return nil, errs.Validationf("unsupported site mapping format %q", format)
	}

	for i := range m.Sites {
		e := &m.Sites[i]
		if err := ValidateURL(e.HomeURL); err != nil {
			return nil, errs.Validationf("site mapping entry %d: home_url: %v", i+1, err)
		}
		if e.SiteURL == "" {
			e.SiteURL = e.HomeURL
		} else if err := ValidateURL(e.SiteURL); err != nil {
			return nil, errs.Validationf("site mapping entry %d: site_url: %v", i+1, err)
		}
	}
	return &m, nil
}

// Lookup finds the destination for a site: by blog ID first, then by the
// site's position in the snapshot.
func (m *Mapping) Lookup(blogID int64, index int) (Entry, bool) {
	if m == nil {
		return Entry{}, false
	}
	if blogID > 0 {
		for _, e := range m.Sites {
			if e.BlogID == blogID {
				return e, true
			}
		}
	}
	if index >= 0 && index < len(m.Sites) && m.Sites[index].BlogID == 0 {
		return m.Sites[index], true
	}
	return Entry{}, false
}

var schemeRe = regexp.MustCompile(`(?i)^https?:`)

// ValidateURL accepts absolute http(s) URLs without spaces.
func ValidateURL(s string) error {
	if strings.TrimSpace(s) == "" || strings.Contains(s, " ") || !schemeRe.MatchString(s) {
		return fmt.Errorf("URL is not valid: it should start with http and contain no spaces")
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return fmt.Errorf("URL is not valid: %q has no host", s)
	}
	return nil
}

// ValidateDomain accepts a bare host name such as "example.test".
func ValidateDomain(s string) error {
	if strings.TrimSpace(s) == "" || strings.Contains(s, " ") || schemeRe.MatchString(s) || strings.Contains(s, "/") {
		return fmt.Errorf("domain is not valid: use the form example.test, without http://")
	}
	return nil
}

// Key normalizes a URL for uniqueness checks: scheme and host are
// case-insensitive and a trailing slash is ignored.
func Key(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return strings.TrimRight(strings.ToLower(raw), "/")
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + strings.TrimRight(u.Path, "/")
}

// CheckUnique fails when two URLs normalize to the same Key.
func CheckUnique(urls []string) error {
	seen := make(map[string]int, len(urls))
	for i, u := range urls {
		k := Key(u)
		if j, dup := seen[k]; dup {
			return errs.Validationf("sites %d and %d are both mapped to %s", j+1, i+1, u)
		}
		seen[k] = i
	}
	return nil
}
