package experience

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// Relationship is the persona's tie to one person it talks to.
type Relationship struct {
	UserID       string    `json:"user_id"`
	Strength     float64   `json:"strength"` // 0-1
	Interactions int64     `json:"interactions"`
	FirstMet     time.Time `json:"first_met"`
	History      []string  `json:"history,omitempty"` // recent interaction summaries
}

// RelationGraph stores the persona's social graph in Neo4j: one
// persona node with a KNOWS edge per user.
type RelationGraph struct {
	driver  neo4j.DriverWithContext
	persona string
	logger  *zap.Logger
}

// NewRelationGraph returns a graph rooted at the named persona.
func NewRelationGraph(driver neo4j.DriverWithContext, persona string, logger *zap.Logger) *RelationGraph {
	return &RelationGraph{driver: driver, persona: persona, logger: logger}
}

// RecordInteraction strengthens the tie to a user, creating it on
// first contact. Strength is capped at 1; the history keeps the last
// ten summaries.
func (g *RelationGraph) RecordInteraction(ctx context.Context, userID, summary string, boost float64) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MERGE (p:Persona {name: $persona})
		 MERGE (u:Person {id: $user})
		 MERGE (p)-[r:KNOWS]->(u)
		 ON CREATE SET r.strength = $boost, r.interactions = 0,
		               r.first_met = datetime(), r.history = []
		 ON MATCH SET r.strength = CASE WHEN r.strength + $boost > 1.0 THEN 1.0 ELSE r.strength + $boost END
		 SET r.interactions = r.interactions + 1,
		     r.history = r.history[-9..] + $summary,
		     r.updated_at = datetime()`,
		map[string]interface{}{
			"persona": g.persona,
			"user":    userID,
			"boost":   boost,
			"summary": summary,
		})
	if err != nil {
		return fmt.Errorf("record interaction: %w", err)
	}
	return nil
}

// Relationship returns the tie to one user, or nil when they have
// never interacted.
func (g *RelationGraph) Relationship(ctx context.Context, userID string) (*Relationship, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (p:Persona {name: $persona})-[r:KNOWS]->(u:Person {id: $user})
		 RETURN r.strength, r.interactions, r.history`,
		map[string]interface{}{"persona": g.persona, "user": userID})
	if err != nil {
		return nil, fmt.Errorf("get relationship: %w", err)
	}
	if !result.Next(ctx) {
		return nil, nil
	}

	rec := result.Record()
	strength, _ := rec.Get("r.strength")
	interactions, _ := rec.Get("r.interactions")

	rel := &Relationship{UserID: userID}
	if s, ok := strength.(float64); ok {
		rel.Strength = s
	}
	if n, ok := interactions.(int64); ok {
		rel.Interactions = n
	}
	rel.History = stringList(rec, "r.history")
	return rel, nil
}

// Relationships returns every tie, strongest first.
func (g *RelationGraph) Relationships(ctx context.Context) ([]*Relationship, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (p:Persona {name: $persona})-[r:KNOWS]->(u:Person)
		 RETURN u.id, r.strength, r.interactions, r.history
		 ORDER BY r.strength DESC`,
		map[string]interface{}{"persona": g.persona})
	if err != nil {
		return nil, fmt.Errorf("list relationships: %w", err)
	}

	var rels []*Relationship
	for result.Next(ctx) {
		rec := result.Record()
		userID, _ := rec.Get("u.id")
		strength, _ := rec.Get("r.strength")
		interactions, _ := rec.Get("r.interactions")

		rel := &Relationship{}
		if id, ok := userID.(string); ok {
			rel.UserID = id
		}
		if s, ok := strength.(float64); ok {
			rel.Strength = s
		}
		if n, ok := interactions.(int64); ok {
			rel.Interactions = n
		}
		rel.History = stringList(rec, "r.history")
		rels = append(rels, rel)
	}
	return rels, nil
}

// Decay weakens every tie by the given amount, flooring at zero.
// Meant to run from a periodic job so neglected relationships fade.
func (g *RelationGraph) Decay(ctx context.Context, amount float64) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MATCH (p:Persona {name: $persona})-[r:KNOWS]->()
		 WHERE r.strength > 0
		 SET r.strength = CASE WHEN r.strength - $amount < 0 THEN 0 ELSE r.strength - $amount END`,
		map[string]interface{}{"persona": g.persona, "amount": amount})
	if err != nil {
		return fmt.Errorf("decay relationships: %w", err)
	}
	return nil
}

func stringList(rec *neo4j.Record, key string) []string {
	raw, _ := rec.Get(key)
	items, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	var out []string
	for _, v := range items {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
