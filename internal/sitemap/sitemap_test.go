package sitemap

import (
	"os"
	"path/filepath"
	"testing"

	"wpsnapshots/internal/errs"
)

func TestParse_Formats(t *testing.T) {
	tests := []struct {
		format string
		data   string
	}{
		{"json", `{"sites":[{"blog_id":1,"home_url":"https://a.test"},{"blog_id":2,"home_url":"https://b.test","site_url":"https://b.test/wp"}]}`},
		{"json", `[{"blog_id":1,"home_url":"https://a.test"},{"blog_id":2,"home_url":"https://b.test","site_url":"https://b.test/wp"}]`},
		{"yaml", "sites:\n  - blog_id: 1\n    home_url: https://a.test\n  - blog_id: 2\n    home_url: https://b.test\n    site_url: https://b.test/wp\n"},
		{"toml", "[[sites]]\nblog_id = 1\nhome_url = \"https://a.test\"\n\n[[sites]]\nblog_id = 2\nhome_url = \"https://b.test\"\nsite_url = \"https://b.test/wp\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			m, err := Parse([]byte(tt.data), tt.format)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if len(m.Sites) != 2 {
				t.Fatalf("len(Sites) = %d, want 2", len(m.Sites))
			}
			if m.Sites[0].SiteURL != "https://a.test" {
				t.Errorf("site_url default = %q, want home_url", m.Sites[0].SiteURL)
			}
			if m.Sites[1].SiteURL != "https://b.test/wp" {
				t.Errorf("Sites[1].SiteURL = %q", m.Sites[1].SiteURL)
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name, format, data string
	}{
		{"bad url", "json", `[{"home_url":"example.test"}]`},
		{"url with space", "json", `[{"home_url":"https://a b.test"}]`},
		{"syntax", "yaml", "sites: [\n"},
		{"format", "ini", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.data), tt.format); !errs.Is(err, errs.Validation) {
				t.Errorf("Parse() error = %v, want validation", err)
			}
		})
	}
}

func TestLoad_UsesExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sites.yml")
	if err := os.WriteFile(path, []byte("sites:\n  - home_url: https://a.test\n"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(m.Sites) != 1 {
		t.Errorf("len(Sites) = %d, want 1", len(m.Sites))
	}
}

func TestMapping_Lookup(t *testing.T) {
	m := &Mapping{Sites: []Entry{
		{BlogID: 2, HomeURL: "https://two.test"},
		{HomeURL: "https://second.test"},
	}}

	if e, ok := m.Lookup(2, 0); !ok || e.HomeURL != "https://two.test" {
		t.Errorf("Lookup(2) = %+v, %v", e, ok)
	}
	if e, ok := m.Lookup(5, 1); !ok || e.HomeURL != "https://second.test" {
		t.Errorf("Lookup by order = %+v, %v", e, ok)
	}
	if _, ok := m.Lookup(5, 0); ok {
		t.Error("Lookup matched an entry reserved for another blog by position")
	}
	if _, ok := m.Lookup(5, 7); ok {
		t.Error("Lookup out of range matched")
	}
}

func TestCheckUnique(t *testing.T) {
	if err := CheckUnique([]string{"https://a.test", "https://b.test"}); err != nil {
		t.Errorf("CheckUnique() error = %v", err)
	}
	err := CheckUnique([]string{"https://A.test/", "https://b.test", "https://a.test"})
	if !errs.Is(err, errs.Validation) {
		t.Errorf("CheckUnique() error = %v, want validation", err)
	}
}

func TestValidateDomain(t *testing.T) {
	for _, ok := range []string{"example.test", "localhost"} {
		if err := ValidateDomain(ok); err != nil {
			t.Errorf("ValidateDomain(%q) error = %v", ok, err)
		}
	}
	for _, bad := range []string{"", "https://example.test", "a b", "example.test/path"} {
		if err := ValidateDomain(bad); err == nil {
			t.Errorf("ValidateDomain(%q) expected error", bad)
		}
	}
}
