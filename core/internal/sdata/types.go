// Package sdata holds the schema document that governs which databases,
// tables, columns and relations are queryable. The document is declared
// by operators, not introspected, and is immutable once parsed; reload
// replaces it wholesale.
package sdata

import (
	"encoding/json"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Supported database types. Aliases are folded by normalizeType.
const (
	TypePostgres  = "postgres"
	TypeMysql     = "mysql"
	TypeSqlite    = "sqlite"
	TypeSqlserver = "sqlserver"
)

var supportedTypes = map[string]struct{}{
	TypePostgres:  {},
	TypeMysql:     {},
	TypeSqlite:    {},
	TypeSqlserver: {},
}

var typeAliases = map[string]string{
	"postgresql": TypePostgres,
	"pg":         TypePostgres,
	"mariadb":    TypeMysql,
	"sqlite3":    TypeSqlite,
	"mssql":      TypeSqlserver,
}

// Schema is the parsed schema document: one connection config per
// database id and one table spec per table id.
type Schema struct {
	Databases map[string]Database `json:"databases" yaml:"databases"`
	Tables    map[string]Table    `json:"tables" yaml:"tables"`
}

// Database is the connection config for a single database id.
type Database struct {
	Type       string `json:"type" yaml:"type"`
	Host       string `json:"host,omitempty" yaml:"host,omitempty"`
	Port       uint16 `json:"port,omitempty" yaml:"port,omitempty"`
	User       string `json:"user,omitempty" yaml:"user,omitempty"`
	Password   string `json:"password,omitempty" yaml:"password,omitempty"`
	DBName     string `json:"database,omitempty" yaml:"database,omitempty"`
	Schema     string `json:"schema,omitempty" yaml:"schema,omitempty"`
	Path       string `json:"path,omitempty" yaml:"path,omitempty"`
	ConnString string `json:"connection_string,omitempty" yaml:"connection_string,omitempty"`
}

// Table describes one queryable table: the database it lives on, its
// columns in canonical select order, and its declared relations.
type Table struct {
	DB        string              `json:"db" yaml:"db"`
	Columns   []string            `json:"columns" yaml:"columns"`
	Relations map[string]Relation `json:"relations,omitempty" yaml:"relations,omitempty"`

	colIndex map[string]struct{}
}

// Relation links the owning table to another table. ForeignKey is a
// column of the owning table whose row value keys the lookup; Reference
// is the column of the target table it matches against.
type Relation struct {
	Table      string `json:"table" yaml:"table"`
	ForeignKey string `json:"foreign_key" yaml:"foreign_key"`
	Reference  string `json:"reference" yaml:"reference"`
}

// Parse decodes a JSON schema document and builds the column indexes.
func Parse(doc []byte) (*Schema, error) {
	var s Schema
	if err := json.Unmarshal(doc, &s); err != nil {
		return nil, fmt.Errorf("schema document: %w", err)
	}
	s.init()
	return &s, nil
}

// ParseYAML decodes a YAML schema document.
func ParseYAML(doc []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(doc, &s); err != nil {
		return nil, fmt.Errorf("schema document: %w", err)
	}
	s.init()
	return &s, nil
}

func (s *Schema) init() {
	for name, t := range s.Tables {
		t.colIndex = make(map[string]struct{}, len(t.Columns))
		for _, c := range t.Columns {
			t.colIndex[c] = struct{}{}
		}
		s.Tables[name] = t
	}
	for name, db := range s.Databases {
		db.Type = normalizeType(db.Type)
		s.Databases[name] = db
	}
}

func normalizeType(dbtype string) string {
	if v, ok := typeAliases[dbtype]; ok {
		return v
	}
	return dbtype
}

// Table returns the table spec for name.
func (s *Schema) Table(name string) (Table, bool) {
	t, ok := s.Tables[name]
	return t, ok
}

// Database returns the connection config for the database id.
func (s *Schema) Database(name string) (Database, bool) {
	db, ok := s.Databases[name]
	return db, ok
}

// DatabaseNames returns the declared database ids in sorted order.
func (s *Schema) DatabaseNames() []string {
	names := make([]string, 0, len(s.Databases))
	for name := range s.Databases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasColumn reports whether name is a declared column of the table.
// Tables built as literals have no index and fall back to a scan.
func (t Table) HasColumn(name string) bool {
	if t.colIndex != nil {
		_, ok := t.colIndex[name]
		return ok
	}
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Relation returns the named relation of the table.
func (t Table) Relation(name string) (Relation, bool) {
	r, ok := t.Relations[name]
	return r, ok
}

// Masked returns a copy of the schema with credentials blanked, safe to
// return from inspection endpoints.
func (s *Schema) Masked() *Schema {
	m := Schema{
		Databases: make(map[string]Database, len(s.Databases)),
		Tables:    s.Tables,
	}
	for name, db := range s.Databases {
		if db.Password != "" {
			db.Password = "****"
		}
		if db.ConnString != "" {
			db.ConnString = "****"
		}
		m.Databases[name] = db
	}
	return &m
}
