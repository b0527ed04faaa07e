package snapshots

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"wpsnapshots/internal/errs"
)

// Author identifies who created a snapshot.
type Author struct {
	Name  string
	Email string
}

// Site is one site of an install. BlogID, Domain and Path are only set for
// multisite installs.
type Site struct {
	BlogID   int64
	Domain   string
	Path     string
	SiteURL  string
	HomeURL  string
	Blogname string
}

// Meta is the descriptive record of one snapshot. It is serialized through
// ToMap/MetaFromMap, which use the field names of meta.json and of the
// remote metadata record.
type Meta struct {
	ID          string
	Project     string
	Description string
	Author      Author
	Repository  string

	Multisite         bool
	SubdomainInstall  bool
	DomainCurrentSite string
	PathCurrentSite   string
	SiteIDCurrentSite int64
	BlogIDCurrentSite int64
	Sites             []Site

	TablePrefix string
	WPVersion   string

	ContainsFiles bool
	ContainsDB    bool
	FilesSize     int64
	DBSize        int64
	// Size is the combined size recorded by older snapshots.
	Size int64

	// Time is the unix time the record was inserted remotely.
	Time int64
}

// Validate checks the invariants every loaded Meta must satisfy.
func (m *Meta) Validate() error {
	if m.ID == "" {
		return errs.Validationf("snapshot meta has no id")
	}
	if !m.ContainsFiles && !m.ContainsDB {
		return errs.Validationf("snapshot %s contains neither files nor a database", m.ID)
	}
	return nil
}

// TotalSize returns the artifact size, falling back to the legacy field.
func (m *Meta) TotalSize() int64 {
	if m.FilesSize > 0 || m.DBSize > 0 {
		return m.FilesSize + m.DBSize
	}
	return m.Size
}

// MainSite returns the site matching BlogIDCurrentSite, or the first site.
func (m *Meta) MainSite() (Site, bool) {
	if len(m.Sites) == 0 {
		return Site{}, false
	}
	if m.Multisite {
		for _, s := range m.Sites {
			if s.BlogID == m.BlogIDCurrentSite {
				return s, true
			}
		}
	}
	return m.Sites[0], true
}

// Clone returns a deep copy.
func (m *Meta) Clone() *Meta {
	c := *m
	c.Sites = append([]Site(nil), m.Sites...)
	return &c
}

// ToMap projects m onto the serialized field names.
func (m *Meta) ToMap() map[string]any {
	out := map[string]any{
		"id":                m.ID,
		"project":           m.Project,
		"description":       m.Description,
		"repository":        m.Repository,
		"multisite":         m.Multisite,
		"subdomain_install": m.SubdomainInstall,
		"table_prefix":      m.TablePrefix,
		"wp_version":        m.WPVersion,
		"contains_files":    m.ContainsFiles,
		"contains_db":       m.ContainsDB,
		"files_size":        m.FilesSize,
		"db_size":           m.DBSize,
	}
	if m.Author != (Author{}) {
		out["author"] = map[string]any{"name": m.Author.Name, "email": m.Author.Email}
	}
	if m.Multisite {
		out["domain_current_site"] = m.DomainCurrentSite
		out["path_current_site"] = m.PathCurrentSite
		out["site_id_current_site"] = m.SiteIDCurrentSite
		out["blog_id_current_site"] = m.BlogIDCurrentSite
	} else {
		out["domain_current_site"] = false
		out["path_current_site"] = false
		out["site_id_current_site"] = false
		out["blog_id_current_site"] = false
	}
	if m.Size > 0 {
		out["size"] = m.Size
	}
	if m.Time > 0 {
		out["time"] = m.Time
	}

	sites := make([]any, 0, len(m.Sites))
	for _, s := range m.Sites {
		site := map[string]any{
			"site_url": s.SiteURL,
			"home_url": s.HomeURL,
			"blogname": s.Blogname,
		}
		if s.BlogID > 0 {
			site["blog_id"] = s.BlogID
		}
		if s.Domain != "" {
			site["domain"] = s.Domain
		}
		if s.Path != "" {
			site["path"] = s.Path
		}
		sites = append(sites, site)
	}
	out["sites"] = sites
	return out
}

// MetaFromMap builds a Meta from decoded JSON or a remote record. Values
// are converted loosely: legacy records store numbers as strings and use
// false for absent multisite fields.
func MetaFromMap(in map[string]any) (*Meta, error) {
	m := &Meta{
		ID:                asString(in["id"]),
		Project:           asString(in["project"]),
		Description:       asString(in["description"]),
		Repository:        asString(in["repository"]),
		Multisite:         asBool(in["multisite"]),
		SubdomainInstall:  asBool(in["subdomain_install"]),
		DomainCurrentSite: asString(in["domain_current_site"]),
		PathCurrentSite:   asString(in["path_current_site"]),
		SiteIDCurrentSite: asInt(in["site_id_current_site"]),
		BlogIDCurrentSite: asInt(in["blog_id_current_site"]),
		TablePrefix:       asString(in["table_prefix"]),
		WPVersion:         asString(in["wp_version"]),
		ContainsFiles:     asBool(in["contains_files"]),
		ContainsDB:        asBool(in["contains_db"]),
		FilesSize:         asInt(in["files_size"]),
		DBSize:            asInt(in["db_size"]),
		Size:              asInt(in["size"]),
		Time:              asInt(in["time"]),
	}

	if a, ok := in["author"].(map[string]any); ok {
		m.Author = Author{Name: asString(a["name"]), Email: asString(a["email"])}
	}

	if raw, ok := in["sites"]; ok && raw != nil {
		list, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("sites: expected a list, got %T", raw)
		}
		for i, item := range list {
			s, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("sites[%d]: expected an object, got %T", i, item)
			}
			m.Sites = append(m.Sites, Site{
				BlogID:   asInt(s["blog_id"]),
				Domain:   asString(s["domain"]),
				Path:     asString(s["path"]),
				SiteURL:  asString(s["site_url"]),
				HomeURL:  asString(s["home_url"]),
				Blogname: asString(s["blogname"]),
			})
		}
	}
	return m, nil
}

// MarshalJSON encodes the ToMap projection.
func (m *Meta) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.ToMap())
}

// UnmarshalJSON decodes through MetaFromMap.
func (m *Meta) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded, err := MetaFromMap(raw)
	if err != nil {
		return err
	}
	*m = *decoded
	return nil
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case json.Number:
		return x.String()
	case bool:
		if x {
			return "1"
		}
	}
	return ""
}

func asBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		switch strings.ToLower(x) {
		case "1", "true", "yes":
			return true
		}
	case float64:
		return x != 0
	case int64:
		return x != 0
	case int:
		return x != 0
	}
	return false
}

func asInt(v any) int64 {
	switch x := v.(type) {
	case float64:
		return int64(x)
	case int64:
		return x
	case int:
		return int64(x)
	case json.Number:
		n, _ := x.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		return n
	}
	return 0
}
