package wordpress

import "testing"

func TestDBParams_Endpoint(t *testing.T) {
	tests := []struct {
		host                           string
		wantHost, wantPort, wantSocket string
	}{
		{"", "localhost", "", ""},
		{"db.internal", "db.internal", "", ""},
		{"127.0.0.1:3307", "127.0.0.1", "3307", ""},
		{"localhost:/var/run/mysqld/mysqld.sock", "localhost", "", "/var/run/mysqld/mysqld.sock"},
		{"/tmp/mysql.sock", "localhost", "", "/tmp/mysql.sock"},
		{"[::1]:3306", "::1", "3306", ""},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			host, port, socket := DBParams{Host: tt.host}.Endpoint()
			if host != tt.wantHost || port != tt.wantPort || socket != tt.wantSocket {
				t.Errorf("Endpoint() = (%q, %q, %q), want (%q, %q, %q)",
					host, port, socket, tt.wantHost, tt.wantPort, tt.wantSocket)
			}
		})
	}
}

func TestDBParams_DSN(t *testing.T) {
	tests := []struct {
		name   string
		params DBParams
		want   string
	}{
		{
			name:   "tcp with default port",
			params: DBParams{Host: "db", Name: "wp", User: "root", Password: "pw"},
			want:   "root:pw@tcp(db:3306)/wp",
		},
		{
			name:   "socket",
			params: DBParams{Host: "localhost:/tmp/mysql.sock", Name: "wp", User: "root"},
			want:   "root@unix(/tmp/mysql.sock)/wp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.params.DSN(); got != tt.want {
				t.Errorf("DSN() = %q, want %q", got, tt.want)
			}
		})
	}
}
