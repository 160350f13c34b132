package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/asaidimu/go-tapestry/core/association"
	"github.com/asaidimu/go-tapestry/core/persistence"
	"github.com/asaidimu/go-tapestry/core/schema"
	"github.com/asaidimu/go-tapestry/core/validation"
	"github.com/asaidimu/go-tapestry/sqlite"
)

const dbFileName = "tapestry.db"

func registry() *schema.Registry {
	r := schema.NewRegistry()
	r.MustRegister(schema.TypeDefinition{
		Name:   "Game",
		Fields: []schema.FieldDefinition{{Name: "title", Type: schema.FieldTypeString, Required: true}},
		Associations: []schema.AssociationMetadata{
			{Name: "creator", Kind: schema.HasOneRelated, Target: "Person"},
		},
	})
	r.MustRegister(schema.TypeDefinition{
		Name: "Person",
		Fields: []schema.FieldDefinition{
			{Name: "name", Type: schema.FieldTypeString, Required: true},
			{Name: "game_id", Type: schema.FieldTypeString},
		},
		Associations: []schema.AssociationMetadata{
			{Name: "game", Kind: schema.BelongsToRelated, Target: "Game"},
		},
	})
	return r
}

func main() {
	if err := os.Remove(dbFileName); err != nil && !os.IsNotExist(err) {
		log.Fatalf("Failed to remove existing database file %s: %v", dbFileName, err)
	}
	fmt.Printf("Starting fresh: removed existing %s (if any).\n", dbFileName)

	driver, err := sqlite.Open(dbFileName, nil, nil)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		if cErr := driver.Close(); cErr != nil {
			log.Printf("Error closing database connection: %v", cErr)
		}
		fmt.Println("Database connection closed.")
	}()

	ctx := context.Background()
	if err := driver.EnsureUniqueIndex(ctx, "games", "title"); err != nil {
		log.Fatalf("Failed to create index: %v", err)
	}

	p, err := persistence.NewPersistence(driver, registry(), persistence.DefaultConfig())
	if err != nil {
		log.Fatalf("Failed to initialize persistence: %v", err)
	}

	p.RegisterSubscription(persistence.RegisterSubscriptionOptions{
		Event: persistence.DocumentSaveSuccess,
		Callback: func(ctx context.Context, event persistence.Event) error {
			fmt.Printf("Saved %s %s into '%s'\n", event.DocumentType, event.DocumentID, event.Collection)
			return nil
		},
	})

	validator := validation.NewValidator(p, nil)
	validator.Register("Game", validation.Uniqueness{Attribute: "title"}, validation.FieldTypes{})

	games, err := p.Collection("Game")
	if err != nil {
		log.Fatalf("Failed to get collection: %v", err)
	}

	chess := games.New(map[string]any{"title": "Chess"})
	if ok, err := validator.Validate(ctx, chess); err != nil || !ok {
		log.Fatalf("Chess should be valid: %v %v", err, chess.Errors())
	}
	if err := p.Save(ctx, chess); err != nil {
		log.Fatalf("Failed to save game: %v", err)
	}

	duplicate := games.New(map[string]any{"title": "Chess"})
	if ok, err := validator.Validate(ctx, duplicate); err != nil {
		log.Fatalf("Validation error: %v", err)
	} else if !ok {
		fmt.Printf("Duplicate rejected: %v\n", duplicate.Errors())
	}

	creator, err := association.Get(ctx, p, chess, "creator")
	if err != nil {
		log.Fatalf("Failed to resolve creator: %v", err)
	}
	ann, err := creator.Create(ctx, map[string]any{"name": "Ann"})
	if err != nil {
		log.Fatalf("Failed to create creator: %v", err)
	}
	fmt.Printf("Created %v\n", ann)

	found, err := games.First(ctx, map[string]any{"title": "Chess"})
	if err != nil {
		log.Fatalf("Failed to find game: %v", err)
	}
	resolved, err := association.Get(ctx, p, found, "creator")
	if err != nil {
		log.Fatalf("Failed to resolve creator: %v", err)
	}
	fmt.Printf("%v was created by %v\n", found, resolved.(*association.HasOne).Target())
}
