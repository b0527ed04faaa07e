package wordpress

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// ConfigFileName is the name of the WordPress configuration file.
const ConfigFileName = "wp-config.php"

// DefaultTablePrefix is used when wp-config.php does not set $table_prefix.
const DefaultTablePrefix = "wp_"

var (
	defineRe = regexp.MustCompile(`define\(\s*['"]([A-Za-z0-9_]+)['"]\s*,\s*('(?:[^'\\]|\\.)*'|"(?:[^"\\]|\\.)*"|[^;)]+?)\s*\)\s*;`)
	prefixRe = regexp.MustCompile(`\$table_prefix\s*=\s*['"]([^'"]*)['"]\s*;`)
)

// ConfigFile holds the constants defined in a wp-config.php. The file is
// never executed: values are read from literal define() calls only.
type ConfigFile struct {
	src       []byte
	constants map[string]constant
	prefix    string
}

type constant struct {
	raw        string
	start, end int // byte span of the raw value in src
}

// ParseConfig extracts every literal define() and $table_prefix from src.
// Definitions on commented-out lines are ignored.
func ParseConfig(src []byte) *ConfigFile {
	c := &ConfigFile{src: src, constants: map[string]constant{}}

	for _, m := range defineRe.FindAllSubmatchIndex(src, -1) {
		if commented(src, m[0]) {
			continue
		}
		name := string(src[m[2]:m[3]])
		if _, seen := c.constants[name]; seen {
			// PHP keeps the first definition.
			continue
		}
		c.constants[name] = constant{raw: string(src[m[4]:m[5]]), start: m[4], end: m[5]}
	}

	for _, m := range prefixRe.FindAllSubmatchIndex(src, -1) {
		if commented(src, m[0]) {
			continue
		}
		c.prefix = string(src[m[2]:m[3]])
	}
	return c
}

func commented(src []byte, offset int) bool {
	lineStart := bytes.LastIndexByte(src[:offset], '\n') + 1
	lead := strings.TrimSpace(string(src[lineStart:offset]))
	return strings.HasPrefix(lead, "//") || strings.HasPrefix(lead, "#") ||
		strings.HasPrefix(lead, "*") || strings.HasPrefix(lead, "/*")
}

// Bytes returns the file content.
func (c *ConfigFile) Bytes() []byte {
	if c == nil {
		return nil
	}
	return c.src
}

// Has reports whether name is defined.
func (c *ConfigFile) Has(name string) bool {
	if c == nil {
		return false
	}
	_, ok := c.constants[name]
	return ok
}

// String returns the value of name as a string. Quoted literals are
// unescaped; other literals are returned as written.
func (c *ConfigFile) String(name string) string {
	if c == nil {
		return ""
	}
	k, ok := c.constants[name]
	if !ok {
		return ""
	}
	return unquote(k.raw)
}

// Bool returns the value of name as PHP would coerce it in a boolean context.
func (c *ConfigFile) Bool(name string) bool {
	if !c.Has(name) {
		return false
	}
	switch strings.ToLower(c.String(name)) {
	case "", "0", "false", "null":
		return false
	}
	return true
}

// Int returns the value of name as an integer, or 0.
func (c *ConfigFile) Int(name string) int64 {
	n, _ := strconv.ParseInt(c.String(name), 10, 64)
	return n
}

// TablePrefix returns $table_prefix, or DefaultTablePrefix.
func (c *ConfigFile) TablePrefix() string {
	if c == nil || c.prefix == "" {
		return DefaultTablePrefix
	}
	return c.prefix
}

// DBParams returns the connection settings.
func (c *ConfigFile) DBParams() DBParams {
	return DBParams{
		Host:     c.String("DB_HOST"),
		Name:     c.String("DB_NAME"),
		User:     c.String("DB_USER"),
		Password: c.String("DB_PASSWORD"),
		Charset:  c.String("DB_CHARSET"),
	}
}

// Set returns a copy of the file with name defined to value. An existing
// literal definition is rewritten in place; otherwise a define() is inserted
// above the "stop editing" marker, or above the wp-settings.php require.
func (c *ConfigFile) Set(name string, value any) *ConfigFile {
	literal := phpLiteral(value)

	var out []byte
	if k, ok := c.constants[name]; ok {
		out = append(out, c.src[:k.start]...)
		out = append(out, literal...)
		out = append(out, c.src[k.end:]...)
		return ParseConfig(out)
	}

	line := fmt.Sprintf("define( '%s', %s );\n", name, literal)
	at := insertionPoint(c.src)
	out = append(out, c.src[:at]...)
	if at > 0 && c.src[at-1] != '\n' {
		out = append(out, '\n')
	}
	out = append(out, line...)
	out = append(out, c.src[at:]...)
	return ParseConfig(out)
}

func insertionPoint(src []byte) int {
	for _, marker := range []string{"/* That's all, stop editing!", "require_once"} {
		if i := bytes.Index(src, []byte(marker)); i >= 0 {
			return bytes.LastIndexByte(src[:i], '\n') + 1
		}
	}
	return len(src)
}

// Diff renders a unified diff between two versions of a config file.
func Diff(path string, before, after []byte) string {
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(before)),
		B:        difflib.SplitLines(string(after)),
		FromFile: path,
		ToFile:   path + " (updated)",
		Context:  2,
	})
	if err != nil {
		return ""
	}
	return text
}

func phpLiteral(v any) string {
	switch x := v.(type) {
	case bool:
		if x {
			return "true"
		}
		return "false"
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case string:
		return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(x) + "'"
	default:
		return phpLiteral(fmt.Sprint(v))
	}
}

func unquote(raw string) string {
	if len(raw) < 2 {
		return raw
	}
	switch q := raw[0]; {
	case q == '\'' && raw[len(raw)-1] == '\'':
		return strings.NewReplacer(`\\`, `\`, `\'`, `'`).Replace(raw[1 : len(raw)-1])
	case q == '"' && raw[len(raw)-1] == '"':
		return strings.NewReplacer(`\\`, `\`, `\"`, `"`, `\$`, `$`).Replace(raw[1 : len(raw)-1])
	}
	return raw
}

var saltKeys = []string{
	"AUTH_KEY", "SECURE_AUTH_KEY", "LOGGED_IN_KEY", "NONCE_KEY",
	"AUTH_SALT", "SECURE_AUTH_SALT", "LOGGED_IN_SALT", "NONCE_SALT",
}

// GenerateConfig renders a minimal wp-config.php for the given database.
func GenerateConfig(p DBParams, prefix string) ([]byte, error) {
	if prefix == "" {
		prefix = DefaultTablePrefix
	}
	charset := p.Charset
	if charset == "" {
		charset = "utf8mb4"
	}

	var b strings.Builder
	b.WriteString("<?php\n")
	fmt.Fprintf(&b, "define( 'DB_NAME', %s );\n", phpLiteral(p.Name))
	fmt.Fprintf(&b, "define( 'DB_USER', %s );\n", phpLiteral(p.User))
	fmt.Fprintf(&b, "define( 'DB_PASSWORD', %s );\n", phpLiteral(p.Password))
	fmt.Fprintf(&b, "define( 'DB_HOST', %s );\n", phpLiteral(p.Host))
	fmt.Fprintf(&b, "define( 'DB_CHARSET', %s );\n", phpLiteral(charset))
	b.WriteString("define( 'DB_COLLATE', '' );\n\n")

	for _, key := range saltKeys {
		salt, err := randomSalt()
		if err != nil {
			return nil, fmt.Errorf("generating salts: %w", err)
		}
		fmt.Fprintf(&b, "define( '%s', '%s' );\n", key, salt)
	}

	fmt.Fprintf(&b, "\n$table_prefix = %s;\n\n", phpLiteral(prefix))
	b.WriteString("define( 'WP_DEBUG', false );\n\n")
	b.WriteString("/* That's all, stop editing! Happy publishing. */\n\n")
	b.WriteString("if ( ! defined( 'ABSPATH' ) ) {\n\tdefine( 'ABSPATH', __DIR__ . '/' );\n}\n\n")
	b.WriteString("require_once ABSPATH . 'wp-settings.php';\n")
	return []byte(b.String()), nil
}

func randomSalt() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
