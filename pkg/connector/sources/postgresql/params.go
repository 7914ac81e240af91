package postgresql

import (
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ajitpratap0/pgstream/pkg/streamerrors"
)

// DefaultPort is used when a descriptor lists no ports.
const DefaultPort uint16 = 5432

// Host is either a TCP host name or address, or the directory holding a Unix
// domain socket. Exactly one field is set.
type Host struct {
	TCP  string `json:"tcp,omitempty" yaml:"tcp,omitempty"`
	Unix string `json:"unix,omitempty" yaml:"unix,omitempty"`
}

// TCPHost returns a TCP host.
func TCPHost(addr string) Host { return Host{TCP: addr} }

// UnixHost returns a Unix-socket host rooted at dir.
func UnixHost(dir string) Host { return Host{Unix: dir} }

// String returns the host as a libpq host entry.
func (h Host) String() string {
	if h.Unix != "" {
		return h.Unix
	}
	return h.TCP
}

func hostFromString(s string) Host {
	if strings.HasPrefix(s, "/") {
		return UnixHost(s)
	}
	return TCPHost(s)
}

// ConnectParams describes how to reach one database. It is plain data and
// can be serialized and shipped to whichever worker runs the assignment.
//
// Ports are matched to hosts by position. A host with no port at its
// position uses the last listed port; with no ports at all, DefaultPort.
type ConnectParams struct {
	Hosts          []Host        `json:"hosts" yaml:"hosts"`
	Ports          []uint16      `json:"ports,omitempty" yaml:"ports,omitempty"`
	User           string        `json:"user,omitempty" yaml:"user,omitempty"`
	Password       []byte        `json:"password,omitempty" yaml:"password,omitempty"`
	Database       string        `json:"database,omitempty" yaml:"database,omitempty"`
	Options        string        `json:"options,omitempty" yaml:"options,omitempty"`
	ConnectTimeout time.Duration `json:"connect_timeout,omitempty" yaml:"connect_timeout,omitempty"`
}

func (p ConnectParams) port(i int) uint16 {
	switch {
	case len(p.Ports) == 0:
		return DefaultPort
	case i < len(p.Ports):
		return p.Ports[i]
	default:
		return p.Ports[len(p.Ports)-1]
	}
}

// Validate checks that the descriptor names at least one well-formed host.
func (p ConnectParams) Validate() error {
	if len(p.Hosts) == 0 {
		return streamerrors.New(streamerrors.ErrorTypeConfig, "at least one host is required")
	}
	for i, h := range p.Hosts {
		if (h.TCP == "") == (h.Unix == "") {
			return streamerrors.New(streamerrors.ErrorTypeConfig, "host must be exactly one of tcp or unix").
				WithDetail("host", i)
		}
	}
	return nil
}

// Config converts the descriptor to a pgx connection config. The first host
// is the primary; the rest become fallbacks tried in order. TLS is not
// negotiated. Every field comes from the descriptor: an empty User is sent
// as is and the PG* environment variables are not consulted.
func (p ConnectParams) Config() (*pgx.ConnConfig, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	cfg, err := pgx.ParseConfig("")
	if err != nil {
		return nil, streamerrors.Wrap(err, streamerrors.ErrorTypeConfig, "failed to build connection config")
	}

	cfg.Host = p.Hosts[0].String()
	cfg.Port = p.port(0)
	cfg.TLSConfig = nil
	cfg.Fallbacks = nil
	for i := 1; i < len(p.Hosts); i++ {
		cfg.Fallbacks = append(cfg.Fallbacks, &pgconn.FallbackConfig{
			Host: p.Hosts[i].String(),
			Port: p.port(i),
		})
	}

	cfg.User = p.User
	cfg.Password = string(p.Password)
	cfg.Database = p.Database
	cfg.RuntimeParams = map[string]string{}
	if p.Options != "" {
		cfg.RuntimeParams["options"] = p.Options
	}
	cfg.ConnectTimeout = p.ConnectTimeout

	return cfg, nil
}

// FromConfig converts a pgx connection config back to a descriptor. Fields
// the descriptor has no room for are ignored. Consecutive fallbacks to the
// same host and port, which pgx creates for TLS negotiation, collapse into
// one host, and trailing repeated ports are dropped. A lone DefaultPort is
// dropped too, since no ports means the same thing.
func FromConfig(cfg *pgx.ConnConfig) ConnectParams {
	p := ConnectParams{
		User:           cfg.User,
		Database:       cfg.Database,
		Options:        cfg.RuntimeParams["options"],
		ConnectTimeout: cfg.ConnectTimeout,
	}
	if cfg.Password != "" {
		p.Password = []byte(cfg.Password)
	}

	add := func(host string, port uint16) {
		if n := len(p.Hosts); n > 0 && p.Hosts[n-1].String() == host && p.Ports[n-1] == port {
			return
		}
		p.Hosts = append(p.Hosts, hostFromString(host))
		p.Ports = append(p.Ports, port)
	}
	add(cfg.Host, cfg.Port)
	for _, fb := range cfg.Fallbacks {
		add(fb.Host, fb.Port)
	}

	for len(p.Ports) > 1 && p.Ports[len(p.Ports)-1] == p.Ports[len(p.Ports)-2] {
		p.Ports = p.Ports[:len(p.Ports)-1]
	}
	if len(p.Ports) == 1 && p.Ports[0] == DefaultPort {
		p.Ports = nil
	}
	return p
}

// ParseConnectParams parses a libpq connection string or URL.
func ParseConnectParams(connString string) (ConnectParams, error) {
	cfg, err := pgx.ParseConfig(connString)
	if err != nil {
		return ConnectParams{}, streamerrors.Wrap(err, streamerrors.ErrorTypeConfig, "failed to parse connection string")
	}
	return FromConfig(cfg), nil
}
