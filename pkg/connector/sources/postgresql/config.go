package postgresql

import (
	"github.com/ajitpratap0/pgstream/pkg/config"
	"github.com/ajitpratap0/pgstream/pkg/streamerrors"
)

// AssignmentsFromConfig builds the assignments described by cfg. A connection
// string is parsed first and the individual connection fields override what
// it set.
func AssignmentsFromConfig(cfg *config.ExportConfig) ([]Assignment, error) {
	assignments := make([]Assignment, 0, len(cfg.Assignments))
	for i, ac := range cfg.Assignments {
		params, err := paramsFromConfig(ac.Connection)
		if err != nil {
			return nil, streamerrors.Wrap(err, streamerrors.TypeOf(err), "invalid connection").
				WithDetail("assignment", i)
		}
		if params.ConnectTimeout == 0 {
			params.ConnectTimeout = cfg.Timeouts.Connection
		}

		relations := make([]Relation, 0, len(ac.Relations))
		for _, rc := range ac.Relations {
			rel, err := relationFromConfig(rc)
			if err != nil {
				return nil, streamerrors.Wrap(err, streamerrors.TypeOf(err), "invalid relation").
					WithDetail("assignment", i)
			}
			relations = append(relations, rel)
		}
		assignments = append(assignments, Assignment{Params: params, Relations: relations})
	}
	return assignments, nil
}

func paramsFromConfig(cc config.ConnectionConfig) (ConnectParams, error) {
	var p ConnectParams
	if cc.ConnString != "" {
		parsed, err := ParseConnectParams(cc.ConnString)
		if err != nil {
			return ConnectParams{}, err
		}
		p = parsed
	}

	if len(cc.Hosts) > 0 {
		p.Hosts = make([]Host, len(cc.Hosts))
		for i, h := range cc.Hosts {
			p.Hosts[i] = hostFromString(h)
		}
		p.Ports = cc.Ports
	} else if len(cc.Ports) > 0 {
		p.Ports = cc.Ports
	}
	if cc.User != "" {
		p.User = cc.User
	}
	if cc.Password != "" {
		p.Password = []byte(cc.Password)
	}
	if cc.Database != "" {
		p.Database = cc.Database
	}
	if cc.Options != "" {
		p.Options = cc.Options
	}
	if cc.ConnectTimeout != 0 {
		p.ConnectTimeout = cc.ConnectTimeout
	}

	if err := p.Validate(); err != nil {
		return ConnectParams{}, err
	}
	return p, nil
}

func relationFromConfig(rc config.RelationConfig) (Relation, error) {
	switch {
	case rc.Query != "" && rc.Table == "":
		return Query{SQL: rc.Query}, nil
	case rc.Table != "" && rc.Query == "":
		if rc.Schema == "" {
			return ParseTable(rc.Table)
		}
		return ParseTable(rc.Schema + "." + rc.Table)
	default:
		return nil, streamerrors.New(streamerrors.ErrorTypeValidation, "relation must have exactly one of table or query")
	}
}
