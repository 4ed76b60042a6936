package experience

import (
	"context"
	"fmt"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	tcneo4j "github.com/testcontainers/testcontainers-go/modules/neo4j"
	"go.uber.org/zap"
)

func startNeo4j(t *testing.T) neo4j.DriverWithContext {
	t.Helper()
	if testing.Short() {
		t.Skip("requires docker")
	}

	ctx := context.Background()
	container, err := tcneo4j.Run(ctx, "neo4j:5-community",
		tcneo4j.WithoutAuthentication(),
	)
	if err != nil {
		t.Fatalf("start neo4j: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	uri, err := container.BoltUrl(ctx)
	if err != nil {
		t.Fatalf("neo4j bolt url: %v", err)
	}
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.NoAuth())
	if err != nil {
		t.Fatalf("neo4j driver: %v", err)
	}
	t.Cleanup(func() { driver.Close(ctx) })
	return driver
}

func TestRelationGraph(t *testing.T) {
	driver := startNeo4j(t)
	ctx := context.Background()
	graph := NewRelationGraph(driver, "mira", zap.NewNop())

	rel, err := graph.Relationship(ctx, "stranger")
	if err != nil {
		t.Fatalf("relationship: %v", err)
	}
	if rel != nil {
		t.Fatalf("unknown user should have no relationship, got %+v", rel)
	}

	if err := graph.RecordInteraction(ctx, "sam", "talked about cats", 0.05); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := graph.RecordInteraction(ctx, "sam", "shared a recipe", 0.05); err != nil {
		t.Fatalf("record: %v", err)
	}

	rel, err = graph.Relationship(ctx, "sam")
	if err != nil {
		t.Fatalf("relationship: %v", err)
	}
	if rel == nil {
		t.Fatal("expected relationship after interactions")
	}
	if rel.Interactions != 2 {
		t.Errorf("interactions: got %d, want 2", rel.Interactions)
	}
	if rel.Strength < 0.09 || rel.Strength > 0.11 {
		t.Errorf("strength: got %v, want ~0.10", rel.Strength)
	}
	if len(rel.History) != 2 || rel.History[1] != "shared a recipe" {
		t.Errorf("history: got %v", rel.History)
	}
}

func TestRelationStrengthCapAndHistoryWindow(t *testing.T) {
	driver := startNeo4j(t)
	ctx := context.Background()
	graph := NewRelationGraph(driver, "mira", zap.NewNop())

	for i := 0; i < 15; i++ {
		summary := fmt.Sprintf("conversation %d", i)
		if err := graph.RecordInteraction(ctx, "regular", summary, 0.2); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	rel, err := graph.Relationship(ctx, "regular")
	if err != nil {
		t.Fatalf("relationship: %v", err)
	}
	if rel.Strength != 1.0 {
		t.Errorf("strength cap: got %v, want 1.0", rel.Strength)
	}
	if len(rel.History) != 10 {
		t.Errorf("history window: got %d entries, want 10", len(rel.History))
	}
	if rel.History[9] != "conversation 14" {
		t.Errorf("newest history entry: got %q", rel.History[9])
	}
}

func TestRelationDecayAndOrdering(t *testing.T) {
	driver := startNeo4j(t)
	ctx := context.Background()
	graph := NewRelationGraph(driver, "mira", zap.NewNop())

	if err := graph.RecordInteraction(ctx, "close", "long talk", 0.8); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := graph.RecordInteraction(ctx, "acquaintance", "quick hello", 0.05); err != nil {
		t.Fatalf("record: %v", err)
	}

	if err := graph.Decay(ctx, 0.1); err != nil {
		t.Fatalf("decay: %v", err)
	}

	rels, err := graph.Relationships(ctx)
	if err != nil {
		t.Fatalf("relationships: %v", err)
	}
	if len(rels) != 2 {
		t.Fatalf("relationships: got %d, want 2", len(rels))
	}
	if rels[0].UserID != "close" {
		t.Errorf("strongest first: got %q", rels[0].UserID)
	}
	if rels[0].Strength < 0.69 || rels[0].Strength > 0.71 {
		t.Errorf("decayed strength: got %v, want ~0.70", rels[0].Strength)
	}
	if rels[1].Strength != 0 {
		t.Errorf("weak tie should floor at zero, got %v", rels[1].Strength)
	}
}
