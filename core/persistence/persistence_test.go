package persistence_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/asaidimu/go-tapestry/core/document"
	"github.com/asaidimu/go-tapestry/core/persistence"
	"github.com/asaidimu/go-tapestry/core/query"
	"github.com/asaidimu/go-tapestry/core/schema"
	"github.com/asaidimu/go-tapestry/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRegistry() *schema.Registry {
	r := schema.NewRegistry()
	r.MustRegister(schema.TypeDefinition{
		Name:   "Person",
		Fields: []schema.FieldDefinition{{Name: "name"}, {Name: "age"}},
		Associations: []schema.AssociationMetadata{
			{Name: "addresses", Kind: schema.EmbedsMany, Target: "Address"},
		},
	})
	r.MustRegister(schema.TypeDefinition{Name: "Address", Fields: []schema.FieldDefinition{{Name: "street"}}})
	r.MustRegister(schema.TypeDefinition{Name: "Slug", Fields: []schema.FieldDefinition{{Name: "title"}}, Key: []string{"title"}})
	r.MustRegister(schema.TypeDefinition{Name: "Shape", Fields: []schema.FieldDefinition{{Name: "x"}}})
	r.MustRegister(schema.TypeDefinition{Name: "Circle", Base: "Shape"})
	r.MustRegister(schema.TypeDefinition{Name: "Square", Base: "Shape"})
	return r
}

func newPersistence(t *testing.T, mutate func(*persistence.Config)) (*persistence.Persistence, *memory.Driver) {
	t.Helper()
	driver := memory.New(zap.NewNop())
	cfg := persistence.DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := persistence.NewPersistence(driver, newRegistry(), cfg)
	require.NoError(t, err)
	return p, driver
}

func typeOf(t *testing.T, p *persistence.Persistence, name string) *schema.Type {
	t.Helper()
	typ, err := p.Registry().Lookup(name)
	require.NoError(t, err)
	return typ
}

func TestNewPersistence(t *testing.T) {
	_, err := persistence.NewPersistence(nil, schema.NewRegistry(), persistence.DefaultConfig())
	assert.Error(t, err)
	_, err = persistence.NewPersistence(memory.New(nil), nil, persistence.DefaultConfig())
	assert.Error(t, err)

	p, err := persistence.NewPersistence(memory.New(nil), schema.NewRegistry(), persistence.Config{
		AuditFields: []string{"", "_id", "updated_at"},
	})
	require.NoError(t, err)
	assert.NotNil(t, p.Config().Logger)
	assert.Equal(t, []string{"updated_at"}, p.Config().AuditFields)
}

func TestPersistence_SaveAndFind(t *testing.T) {
	p, driver := newPersistence(t, nil)
	ctx := context.Background()
	person := typeOf(t, p, "Person")

	doc := document.New(person, map[string]any{"name": "Ann", "age": 30})
	require.NoError(t, p.Save(ctx, doc))
	assert.False(t, doc.NewRecord())
	assert.Empty(t, doc.Changes())

	require.NoError(t, doc.Write("age", 31))
	require.NoError(t, p.Save(ctx, doc))

	raw, err := driver.FindOne(ctx, "people", query.Conditions{"_id": doc.ID()}.Filter())
	require.NoError(t, err)
	assert.Equal(t, 31, raw["age"])

	found, err := p.FindByID(ctx, person, doc.ID())
	require.NoError(t, err)
	assert.True(t, found.Equal(doc))
	assert.False(t, found.NewRecord())

	first, err := p.First(ctx, person, query.Conditions{"name": "Ann"})
	require.NoError(t, err)
	assert.True(t, first.Equal(doc))

	none, err := p.First(ctx, person, query.Conditions{"name": "Nobody"})
	require.NoError(t, err)
	assert.Nil(t, none)

	n, err := p.Count(ctx, person, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ok, err := p.Exists(ctx, person, query.Conditions{"age": 31})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPersistence_SaveIdentifiesKeyedRecords(t *testing.T) {
	p, _ := newPersistence(t, nil)
	ctx := context.Background()
	slug := typeOf(t, p, "Slug")

	doc := document.New(slug, map[string]any{"title": "Hello"})
	require.NoError(t, doc.Write("title", "Hello World"))
	require.NoError(t, p.Save(ctx, doc))
	assert.Equal(t, "hello-world", doc.ID())

	require.NoError(t, doc.Write("title", "Renamed"))
	require.NoError(t, p.Save(ctx, doc))
	assert.Equal(t, "hello-world", doc.ID())
}

func TestPersistence_SaveEmbeddedThroughRoot(t *testing.T) {
	p, _ := newPersistence(t, nil)
	ctx := context.Background()
	person := document.New(typeOf(t, p, "Person"), map[string]any{"name": "Ann"})
	address := document.New(typeOf(t, p, "Address"), map[string]any{"street": "Main"})
	require.NoError(t, address.Assimilate(person, "addresses"))

	require.NoError(t, p.Save(ctx, address))
	assert.False(t, person.NewRecord())
	assert.False(t, address.NewRecord())

	loaded, err := p.FindByID(ctx, person.Type(), person.ID())
	require.NoError(t, err)
	addresses, err := loaded.Embedded("addresses")
	require.NoError(t, err)
	require.Len(t, addresses, 1)
	assert.Equal(t, "Main", addresses[0].Attributes().Value("street"))

	require.NoError(t, p.Delete(ctx, addresses[0]))
	reloaded, err := p.FindByID(ctx, person.Type(), person.ID())
	require.NoError(t, err)
	assert.True(t, reloaded.Attributes().Has("addresses"))
	assert.Empty(t, reloaded.Attributes().Value("addresses"))
}

func TestPersistence_ReloadEmbedded(t *testing.T) {
	p, _ := newPersistence(t, nil)
	ctx := context.Background()
	person := document.New(typeOf(t, p, "Person"), map[string]any{"name": "Ann"})
	address := document.New(typeOf(t, p, "Address"), map[string]any{"street": "Main"})
	require.NoError(t, address.Assimilate(person, "addresses"))
	require.NoError(t, p.Save(ctx, person))

	require.NoError(t, address.Write("street", "Side"))
	assert.ErrorIs(t, p.Reload(ctx, address), persistence.ErrEmbeddedReload)
	assert.Equal(t, "Side", address.Attributes().Value("street"))

	require.NoError(t, p.Reload(ctx, person))
	addresses, err := person.Embedded("addresses")
	require.NoError(t, err)
	require.Len(t, addresses, 1)
	assert.Equal(t, "Main", addresses[0].Attributes().Value("street"))
	assert.Nil(t, address.Parent())
}

func TestPersistence_Delete(t *testing.T) {
	p, _ := newPersistence(t, nil)
	ctx := context.Background()
	person := typeOf(t, p, "Person")
	doc := document.New(person, nil)
	require.NoError(t, p.Save(ctx, doc))

	require.NoError(t, p.Delete(ctx, doc))
	_, err := p.FindByID(ctx, person, doc.ID())
	assert.ErrorIs(t, err, persistence.ErrNotFound)
	assert.ErrorIs(t, p.Delete(ctx, doc), persistence.ErrNotFound)
}

func TestPersistence_Reload(t *testing.T) {
	tests := []struct {
		name          string
		raiseNotFound bool
	}{
		{"raise not found", true},
		{"absent result", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, driver := newPersistence(t, func(c *persistence.Config) { c.RaiseNotFound = tt.raiseNotFound })
			ctx := context.Background()
			doc := document.New(typeOf(t, p, "Person"), map[string]any{"name": "Ann"})
			require.NoError(t, p.Save(ctx, doc))
			doc.Memoize("addresses", "cached")

			require.NoError(t, driver.Update(ctx, "people", doc.ID(), schema.Document{"_id": doc.ID(), "name": "Changed"}))
			require.NoError(t, p.Reload(ctx, doc))
			assert.Equal(t, "Changed", doc.Attributes().Value("name"))
			_, memoized := doc.Memo("addresses")
			assert.False(t, memoized)

			require.NoError(t, driver.Delete(ctx, "people", doc.ID()))
			err := p.Reload(ctx, doc)
			if tt.raiseNotFound {
				assert.ErrorIs(t, err, persistence.ErrNotFound)
				found, err := p.FindByID(ctx, doc.Type(), "gone")
				assert.ErrorIs(t, err, persistence.ErrNotFound)
				assert.Nil(t, found)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, 0, doc.Attributes().Len())
			found, err := p.FindByID(ctx, doc.Type(), "gone")
			assert.NoError(t, err)
			assert.Nil(t, found)
		})
	}
}

func TestPersistence_HereditaryQueries(t *testing.T) {
	p, _ := newPersistence(t, nil)
	ctx := context.Background()
	shape := typeOf(t, p, "Shape")
	circle := typeOf(t, p, "Circle")
	square := typeOf(t, p, "Square")

	for _, typ := range []*schema.Type{shape, circle, circle, square} {
		require.NoError(t, p.Save(ctx, document.New(typ, map[string]any{"x": 1})))
	}

	tests := []struct {
		typ   *schema.Type
		count int64
	}{
		{shape, 4},
		{circle, 2},
		{square, 1},
	}
	for _, tt := range tests {
		t.Run(tt.typ.Name(), func(t *testing.T) {
			n, err := p.Count(ctx, tt.typ, query.Conditions{"x": 1})
			require.NoError(t, err)
			assert.Equal(t, tt.count, n)
		})
	}

	docs, err := p.Find(ctx, shape, nil)
	require.NoError(t, err)
	names := make([]string, 0, len(docs))
	for _, d := range docs {
		names = append(names, d.TypeName())
	}
	assert.Equal(t, []string{"Shape", "Circle", "Circle", "Square"}, names)

	sorted, err := p.Query(ctx, shape, query.NewQueryBuilder().OrderByDesc("_type").Limit(1).Build())
	require.NoError(t, err)
	require.Len(t, sorted, 1)
	assert.Equal(t, "Square", sorted[0].TypeName())
}

func TestPersistence_DynamicFields(t *testing.T) {
	p, _ := newPersistence(t, func(c *persistence.Config) { c.DynamicFields = false })
	ctx := context.Background()
	person := typeOf(t, p, "Person")

	assert.NoError(t, p.Save(ctx, document.New(person, map[string]any{"name": "Ann"})))
	err := p.Save(ctx, document.New(person, map[string]any{"nickname": "Al"}))
	assert.ErrorIs(t, err, persistence.ErrUndeclaredField)
}

func TestPersistence_Clone(t *testing.T) {
	p, _ := newPersistence(t, nil)
	doc := document.Instantiate(typeOf(t, p, "Person"), map[string]any{
		"_id": "p1", "name": "Ann", "created_at": "now", "updated_at": "now",
	}, false)

	c := p.Clone(doc)
	assert.True(t, c.NewRecord())
	assert.Equal(t, "Ann", c.Attributes().Value("name"))
	assert.False(t, c.Attributes().Has("created_at"))
	assert.False(t, c.Attributes().Has("updated_at"))
}

type plainDriver struct{ persistence.Driver }

func TestPersistence_Transact(t *testing.T) {
	ctx := context.Background()

	t.Run("commit", func(t *testing.T) {
		p, _ := newPersistence(t, nil)
		person := typeOf(t, p, "Person")
		err := p.Transact(ctx, func(tx *persistence.Persistence) error {
			return tx.Save(ctx, document.New(person, nil))
		})
		require.NoError(t, err)
		n, _ := p.Count(ctx, person, nil)
		assert.Equal(t, int64(1), n)
	})

	t.Run("rollback", func(t *testing.T) {
		p, _ := newPersistence(t, nil)
		person := typeOf(t, p, "Person")
		boom := errors.New("boom")
		err := p.Transact(ctx, func(tx *persistence.Persistence) error {
			require.NoError(t, tx.Save(ctx, document.New(person, nil)))
			return boom
		})
		assert.ErrorIs(t, err, boom)
		n, _ := p.Count(ctx, person, nil)
		assert.Equal(t, int64(0), n)
	})

	t.Run("unsupported", func(t *testing.T) {
		p, err := persistence.NewPersistence(plainDriver{memory.New(nil)}, newRegistry(), persistence.DefaultConfig())
		require.NoError(t, err)
		err = p.Transact(ctx, func(*persistence.Persistence) error { return nil })
		assert.ErrorIs(t, err, persistence.ErrTransactionsUnsupported)
	})
}

func TestPersistence_Subscriptions(t *testing.T) {
	p, _ := newPersistence(t, nil)
	ctx := context.Background()

	var mu sync.Mutex
	var received []persistence.Event
	label := "audit"
	id := p.RegisterSubscription(persistence.RegisterSubscriptionOptions{
		Event: persistence.DocumentSaveSuccess,
		Label: &label,
		Callback: func(ctx context.Context, event persistence.Event) error {
			mu.Lock()
			defer mu.Unlock()
			received = append(received, event)
			return nil
		},
	})
	require.NotEmpty(t, id)
	require.Len(t, p.Subscriptions(), 1)
	assert.Equal(t, &label, p.Subscriptions()[0].Label)

	doc := document.New(typeOf(t, p, "Person"), nil)
	require.NoError(t, p.Save(ctx, doc))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	event := received[0]
	mu.Unlock()
	assert.Equal(t, persistence.DocumentSaveSuccess, event.Type)
	assert.Equal(t, "people", event.Collection)
	assert.Equal(t, "Person", event.DocumentType)
	assert.Equal(t, doc.ID(), event.DocumentID)
	assert.Equal(t, doc.ID(), event.Output)

	p.UnregisterSubscription(id)
	p.UnregisterSubscription("unknown")
	assert.Empty(t, p.Subscriptions())
}

func TestCollection(t *testing.T) {
	p, _ := newPersistence(t, nil)
	ctx := context.Background()

	_, err := p.Collection("Unknown")
	assert.ErrorIs(t, err, schema.ErrUnknownType)

	people, err := p.Collection("Person")
	require.NoError(t, err)
	assert.Equal(t, "Person", people.Type().Name())

	ann, err := people.Create(ctx, map[string]any{"name": "Ann"})
	require.NoError(t, err)
	_, err = people.Create(ctx, map[string]any{"name": "Bob"})
	require.NoError(t, err)

	found, err := people.FindByID(ctx, ann.ID())
	require.NoError(t, err)
	assert.True(t, found.Equal(ann))

	first, err := people.First(ctx, query.Conditions{"name": "Bob"})
	require.NoError(t, err)
	assert.Equal(t, "Bob", first.Attributes().Value("name"))

	all, err := people.Where(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	n, err := people.Count(ctx, query.Conditions{"name": "Ann"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ok, err := people.Exists(ctx, query.Conditions{"name": "Cid"})
	require.NoError(t, err)
	assert.False(t, ok)

	assert.True(t, people.New(nil).NewRecord())
}
