package sdata

import "fmt"

// Violation describes one schema validation failure with enough context
// to pinpoint the offending database, table or relation.
type Violation struct {
	DB       string `json:"db,omitempty"`
	Table    string `json:"table,omitempty"`
	Relation string `json:"relation,omitempty"`
	Reason   string `json:"reason"`
}

func (v Violation) String() string {
	switch {
	case v.Relation != "":
		return fmt.Sprintf("table %s, relation %s: %s", v.Table, v.Relation, v.Reason)
	case v.Table != "":
		return fmt.Sprintf("table %s: %s", v.Table, v.Reason)
	case v.DB != "":
		return fmt.Sprintf("database %s: %s", v.DB, v.Reason)
	default:
		return v.Reason
	}
}

// Validate runs the structural, per-database completeness and per-table
// referential checks. It inspects every table and every relation before
// returning so one pass reports all failures. Pure, no I/O.
func (s *Schema) Validate() []Violation {
	var vs []Violation

	if s.Databases == nil {
		vs = append(vs, Violation{Reason: "missing databases section"})
	}
	if s.Tables == nil {
		vs = append(vs, Violation{Reason: "missing tables section"})
	}
	if len(vs) != 0 {
		return vs
	}

	for _, name := range s.DatabaseNames() {
		vs = append(vs, validateDatabase(name, s.Databases[name])...)
	}

	for name, t := range s.Tables {
		vs = append(vs, s.validateTable(name, t)...)
	}
	return vs
}

func validateDatabase(name string, db Database) []Violation {
	var vs []Violation

	if _, ok := supportedTypes[db.Type]; !ok {
		vs = append(vs, Violation{DB: name,
			Reason: fmt.Sprintf("unsupported database type %q", db.Type)})
		return vs
	}
	if db.ConnString != "" {
		return vs
	}

	switch db.Type {
	case TypeSqlite:
		if db.Path == "" {
			vs = append(vs, Violation{DB: name, Reason: "sqlite requires a path"})
		}
	default:
		if db.Host == "" {
			vs = append(vs, Violation{DB: name, Reason: "missing host"})
		}
		if db.User == "" {
			vs = append(vs, Violation{DB: name, Reason: "missing user"})
		}
		if db.DBName == "" {
			vs = append(vs, Violation{DB: name, Reason: "missing database name"})
		}
	}
	return vs
}

func (s *Schema) validateTable(name string, t Table) []Violation {
	var vs []Violation

	if _, ok := s.Databases[t.DB]; !ok {
		vs = append(vs, Violation{Table: name,
			Reason: fmt.Sprintf("references undeclared database %q", t.DB)})
	}
	if len(t.Columns) == 0 {
		vs = append(vs, Violation{Table: name, Reason: "declares no columns"})
	}

	seen := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		if _, dup := seen[c]; dup {
			vs = append(vs, Violation{Table: name,
				Reason: fmt.Sprintf("duplicate column %q", c)})
		}
		seen[c] = struct{}{}
	}

	for rname, rel := range t.Relations {
		vs = append(vs, s.validateRelation(name, t, rname, rel)...)
	}
	return vs
}

func (s *Schema) validateRelation(tname string, t Table, rname string, rel Relation) []Violation {
	var vs []Violation

	target, ok := s.Tables[rel.Table]
	if !ok {
		vs = append(vs, Violation{Table: tname, Relation: rname,
			Reason: fmt.Sprintf("references undeclared table %q", rel.Table)})
	}
	if !t.HasColumn(rel.ForeignKey) {
		vs = append(vs, Violation{Table: tname, Relation: rname,
			Reason: fmt.Sprintf("foreign_key %q is not a column of %s", rel.ForeignKey, tname)})
	}
	if ok && !target.HasColumn(rel.Reference) {
		vs = append(vs, Violation{Table: tname, Relation: rname,
			Reason: fmt.Sprintf("reference %q is not a column of %s", rel.Reference, rel.Table)})
	}
	return vs
}
