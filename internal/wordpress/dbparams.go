package wordpress

import (
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// DBParams are the connection settings read from wp-config.php.
type DBParams struct {
	Host     string
	Name     string
	User     string
	Password string
	Charset  string
}

// Endpoint splits Host the way WordPress does: "host", "host:port",
// "host:/path/to/socket" or "[::1]:port". An empty host means localhost.
func (p DBParams) Endpoint() (host, port, socket string) {
	host = strings.TrimSpace(p.Host)
	if host == "" {
		return "localhost", "", ""
	}
	if strings.HasPrefix(host, "/") {
		return "localhost", "", host
	}

	if strings.HasPrefix(host, "[") {
		end := strings.Index(host, "]")
		if end < 0 {
			return host, "", ""
		}
		rest := host[end+1:]
		host = host[1:end]
		if strings.HasPrefix(rest, ":") {
			return host, rest[1:], ""
		}
		return host, "", ""
	}

	i := strings.Index(host, ":")
	if i < 0 {
		return host, "", ""
	}
	rest := host[i+1:]
	host = host[:i]
	if host == "" {
		host = "localhost"
	}
	if strings.HasPrefix(rest, "/") {
		return host, "", rest
	}
	return host, rest, ""
}

// DSN returns a go-sql-driver/mysql data source name for p.
func (p DBParams) DSN() string {
	host, port, socket := p.Endpoint()

	cfg := mysql.NewConfig()
	cfg.User = p.User
	cfg.Passwd = p.Password
	cfg.DBName = p.Name
	if socket != "" {
		cfg.Net = "unix"
		cfg.Addr = socket
	} else {
		if port == "" {
			port = "3306"
		}
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(host, port)
	}
	if p.Charset != "" {
		cfg.Params = map[string]string{"charset": p.Charset}
	}
	return cfg.FormatDSN()
}
