// Package neo4j implements graph.Repository on Neo4j.
package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/efebarandurmaz/sqllineage/internal/graph"
	"github.com/efebarandurmaz/sqllineage/internal/lineage"
)

// MaxDepth bounds traversals; variable-length patterns need a literal bound.
const MaxDepth = graph.MaxDepth

// Neo4jRepository implements graph.Repository using Neo4j.
type Neo4jRepository struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewNeo4j connects to uri and verifies connectivity. An empty database
// selects the server default.
func NewNeo4j(ctx context.Context, uri, username, password, database string) (*Neo4jRepository, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return &Neo4jRepository{driver: driver, database: database}, nil
}

func (r *Neo4jRepository) Name() string { return "neo4j" }

func (r *Neo4jRepository) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return r.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: r.database, AccessMode: mode})
}

const mergeEdges = `UNWIND $edges AS e
MERGE (s:Table {name: e.source})
MERGE (t:Table {name: e.target})
MERGE (s)-[f:FEEDS {file: e.file}]->(t)
ON CREATE SET f.created_at = e.created_at
SET f.model = e.model, f.updated_at = e.created_at`

// SaveAll merges edges in one write transaction. One FEEDS relationship
// exists per (source, target, file).
func (r *Neo4jRepository) SaveAll(ctx context.Context, edges []lineage.Edge) error {
	if len(edges) == 0 {
		return nil
	}
	params := edgeParams(edges)

	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, mergeEdges, map[string]any{"edges": params})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("store lineage edges: %w", err)
	}
	return nil
}

func edgeParams(edges []lineage.Edge) []map[string]any {
	out := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		out = append(out, map[string]any{
			"source":     e.Source,
			"target":     e.Target,
			"file":       e.FilePath,
			"model":      e.Model,
			"created_at": e.CreatedAt.UTC(),
		})
	}
	return out
}

// Upstream returns the tables feeding table, nearest first.
func (r *Neo4jRepository) Upstream(ctx context.Context, table string, maxDepth int) ([]graph.Hop, error) {
	return r.walk(ctx, traversal(true, maxDepth), table)
}

// Downstream returns the tables fed by table, nearest first.
func (r *Neo4jRepository) Downstream(ctx context.Context, table string, maxDepth int) ([]graph.Hop, error) {
	return r.walk(ctx, traversal(false, maxDepth), table)
}

func clampDepth(d int) int { return graph.ClampDepth(d) }

// traversal builds the Cypher for one direction. Depth is formatted into the
// pattern since Cypher does not accept it as a parameter.
func traversal(upstream bool, maxDepth int) string {
	pattern := "(other:Table)-[:FEEDS*1..%d]->(t:Table {name: $name})"
	if !upstream {
		pattern = "(t:Table {name: $name})-[:FEEDS*1..%d]->(other:Table)"
	}
	return fmt.Sprintf("MATCH p = "+pattern+
		" WHERE other <> t"+
		" RETURN other.name AS tbl, min(length(p)) AS depth"+
		" ORDER BY depth, tbl", clampDepth(maxDepth))
}

func (r *Neo4jRepository) walk(ctx context.Context, cypher, table string) ([]graph.Hop, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx, cypher, map[string]any{"name": lineage.NormalizeName(table)})
		if err != nil {
			return nil, err
		}
		var hops []graph.Hop
		for records.Next(ctx) {
			rec := records.Record()
			name, _ := rec.Get("tbl")
			depth, _ := rec.Get("depth")
			hops = append(hops, graph.Hop{Table: asString(name), Depth: asInt(depth)})
		}
		return hops, records.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("traverse lineage from %s: %w", table, err)
	}
	hops, _ := result.([]graph.Hop)
	return hops, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	}
	return 0
}

// Ping verifies the driver can still reach the server.
func (r *Neo4jRepository) Ping(ctx context.Context) error {
	return r.driver.VerifyConnectivity(ctx)
}

func (r *Neo4jRepository) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

var _ graph.Repository = (*Neo4jRepository)(nil)
