package schema

// AssociationKind tags the resolver family an association belongs to.
type AssociationKind string

const (
	EmbedsOne        AssociationKind = "embeds_one"
	EmbedsMany       AssociationKind = "embeds_many"
	HasOneRelated    AssociationKind = "has_one_related"
	HasManyRelated   AssociationKind = "has_many_related"
	BelongsToRelated AssociationKind = "belongs_to_related"
)

// AssociationMetadata describes one entry of a type's association table.
type AssociationMetadata struct {
	// Name is the association name on the declaring type.
	Name string `json:"name"`
	// Kind selects the resolver.
	Kind AssociationKind `json:"kind"`
	// Target is the related type name. Empty for polymorphic belongs-to
	// associations, whose target is read from the discriminator.
	Target string `json:"target,omitempty"`
	// ForeignKey is the field holding the owner id. Filled with a default
	// at registration when empty.
	ForeignKey string `json:"foreignKey,omitempty"`
	// As is the polymorphic alias of a has-one or has-many association.
	As string `json:"as,omitempty"`
	// Polymorphic marks a belongs-to association whose target type varies.
	Polymorphic bool `json:"polymorphic,omitempty"`
	// Inverse names the association on the target pointing back.
	Inverse string `json:"inverse,omitempty"`
}

// IsEmbedded reports whether the association payload lives inside the
// owner's attribute tree.
func (m AssociationMetadata) IsEmbedded() bool {
	return m.Kind == EmbedsOne || m.Kind == EmbedsMany
}

// IsPolymorphic reports whether the association is disambiguated by a
// stored type discriminator.
func (m AssociationMetadata) IsPolymorphic() bool {
	return m.As != "" || m.Polymorphic
}

// TypeKey returns the discriminator field name, or "" when the association
// is not polymorphic.
func (m AssociationMetadata) TypeKey() string {
	switch {
	case m.Kind == BelongsToRelated && m.Polymorphic:
		return m.Name + "_type"
	case m.As != "":
		return m.As + "_type"
	}
	return ""
}

// withDefaults fills the foreign key for an association declared on owner.
func (m AssociationMetadata) withDefaults(owner string) AssociationMetadata {
	if m.ForeignKey != "" {
		return m
	}
	switch m.Kind {
	case HasOneRelated, HasManyRelated:
		if m.As != "" {
			m.ForeignKey = m.As + "_id"
		} else {
			m.ForeignKey = Underscore(owner) + "_id"
		}
	case BelongsToRelated:
		m.ForeignKey = m.Name + "_id"
	}
	return m
}
