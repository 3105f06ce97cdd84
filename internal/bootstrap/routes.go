package bootstrap

import (
	"fmt"
	"os"

	"github.com/target/lms-access/internal/domain/access"
	"gopkg.in/yaml.v3"
)

// routeFile is the on-disk route table:
//
//	routes:
//	  - pattern: /courses/*
//	    public: true
//	  - pattern: /admin/*
//	    roles: [admin]
type routeFile struct {
	Routes []access.RouteRule `yaml:"routes"`
}

// LoadRouteTable compiles the route table at path. An empty path yields the built-in table.
func LoadRouteTable(path string) (*access.RouteTable, error) {
	if path == "" {
		return access.DefaultRouteTable(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read route table: %w", err)
	}
	return ParseRouteTable(raw)
}

// ParseRouteTable compiles a YAML route table.
func ParseRouteTable(raw []byte) (*access.RouteTable, error) {
	var f routeFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse route table: %w", err)
	}
	table, err := access.NewRouteTable(f.Routes)
	if err != nil {
		return nil, fmt.Errorf("compile route table: %w", err)
	}
	return table, nil
}
