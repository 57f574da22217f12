// Package registry resolves client-supplied cluster ids to upstream nodes.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/user00265/dxbridge/internal/config"
)

// ErrNotFound is returned for unknown or inactive cluster ids.
var ErrNotFound = errors.New("cluster not found")

// Cluster is a resolved upstream node.
type Cluster struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Host        string `json:"host"`
	Port        string `json:"port"`
	Description string `json:"description,omitempty"`
}

// Address returns host:port for dialing.
func (c Cluster) Address() string {
	return c.Host + ":" + c.Port
}

// Registry looks up clusters by id.
type Registry interface {
	Lookup(id string) (Cluster, error)
	List() []Cluster
}

// Static is an in-memory Registry built once from configuration. It is
// read-only after construction and safe for concurrent use.
type Static struct {
	clusters map[string]Cluster
}

// NewStatic builds a registry from config entries, skipping inactive ones.
func NewStatic(entries []config.ClusterConfig) *Static {
	s := &Static{clusters: make(map[string]Cluster, len(entries))}
	for _, e := range entries {
		if !e.IsActive() {
			continue
		}
		port := string(e.Port)
		if port == "" {
			port = config.DefaultDXCPort
		}
		name := e.Name
		if name == "" {
			name = e.Host
		}
		s.clusters[e.ID] = Cluster{
			ID:          e.ID,
			Name:        name,
			Host:        e.Host,
			Port:        port,
			Description: e.Description,
		}
	}
	return s
}

// Lookup returns the cluster with the given id.
func (s *Static) Lookup(id string) (Cluster, error) {
	c, ok := s.clusters[strings.TrimSpace(id)]
	if !ok {
		return Cluster{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return c, nil
}

// List returns all clusters ordered by id, numerically where both ids are numbers.
func (s *Static) List() []Cluster {
	out := make([]Cluster, 0, len(s.clusters))
	for _, c := range s.clusters {
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool {
		a, errA := strconv.Atoi(out[i].ID)
		b, errB := strconv.Atoi(out[j].ID)
		if errA == nil && errB == nil {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out
}
