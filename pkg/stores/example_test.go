package stores_test

import (
	"context"
	"fmt"
	"log"

	"github.com/hyperconf/hyperconf/pkg/stores"
)

// ExampleSQLiteStore_RecordLoad records a rejected load and reads it back.
func ExampleSQLiteStore_RecordLoad() {
	store, err := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	if err != nil {
		log.Fatal(err)
	}
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		log.Fatal(err)
	}

	rec := stores.NewLoadRecord("fleet.yaml", true)
	rec.Fail("MissingRequiredOption", "enterprise: missing required option 'captain'")
	if err := store.RecordLoad(ctx, rec); err != nil {
		log.Fatal(err)
	}

	got, err := store.GetLoad(ctx, rec.ID)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(got.File, got.Status, *got.ErrorKind)
	// Output: fleet.yaml failed MissingRequiredOption
}
