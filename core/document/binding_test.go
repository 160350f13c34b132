package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type boundAddress struct {
	ID     string `json:"_id,omitempty"`
	Street string `json:"street"`
}

type boundPerson struct {
	ID        string         `json:"_id,omitempty"`
	Title     string         `json:"title"`
	Age       int            `json:"age"`
	Addresses []boundAddress `json:"addresses,omitempty"`
}

func TestFromStruct(t *testing.T) {
	attrs, err := FromStruct(boundPerson{Title: "Dr", Age: 40, Addresses: []boundAddress{{Street: "Main"}}})
	require.NoError(t, err)
	assert.Equal(t, "Dr", attrs["title"])
	assert.EqualValues(t, 40, attrs["age"])
	assert.Equal(t, []any{map[string]any{"street": "Main"}}, attrs["addresses"])

	_, err = FromStruct[*boundPerson](nil)
	assert.Error(t, err)
	_, err = FromStruct(42)
	assert.Error(t, err)
}

func TestDecode(t *testing.T) {
	r := newRegistry(t)
	person := lookup(t, r, "Person")
	address := lookup(t, r, "Address")

	doc := New(person, map[string]any{"title": "Dr"})
	home := New(address, map[string]any{"street": "Main"})
	require.NoError(t, home.Assimilate(doc, "addresses"))

	got, err := Decode[boundPerson](doc)
	require.NoError(t, err)
	assert.Equal(t, boundPerson{
		ID:        doc.ID(),
		Title:     "Dr",
		Age:       100,
		Addresses: []boundAddress{{ID: home.ID(), Street: "Main"}},
	}, got)

	ptr, err := Decode[*boundPerson](doc)
	require.NoError(t, err)
	assert.Equal(t, "Dr", ptr.Title)

	_, err = Decode[boundPerson](nil)
	assert.Error(t, err)
	_, err = Decode[map[string]any](doc)
	assert.Error(t, err)
}
