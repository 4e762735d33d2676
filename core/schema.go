// Package core provides the fundamental building blocks of the golem ODM.
// This file defines the schema system, which describes an entity type's
// collection, fields, naming, relationships and hooks.
package core

import (
	"fmt"
	"strings"
	"sync"
)

// DefaultPrimaryKey is the primary-key field used when a schema does not
// declare one. It is never renamed by naming strategies.
const DefaultPrimaryKey = "_id"

// Field represents an entity attribute mapped to a stored document field.
//
// It contains the logical name used by application code, an optional
// storage name override, serialization settings and special markers for
// timestamp fields (createdAt, updatedAt, deletedAt).
type Field struct {
	Name         string // Logical name used by application code
	Column       string // Storage name override; empty defers to the naming strategy
	Serialize    string // Wire name override used by Entity.ToMap
	Hidden       bool   // Excluded from Entity.ToMap
	IsPrimaryKey bool
	DefaultValue any

	// Special timestamp markers
	IsCreatedAt bool
	IsUpdatedAt bool
	IsDeletedAt bool
}

// FieldOption is a function used to configure a Field.
type FieldOption func(*Field)

// Column overrides the stored field name.
func Column(name string) FieldOption {
	return func(f *Field) { f.Column = name }
}

// SerializeAs overrides the name used when the entity is serialized.
func SerializeAs(name string) FieldOption {
	return func(f *Field) { f.Serialize = name }
}

// Hidden excludes the field from serialization.
func Hidden() FieldOption {
	return func(f *Field) { f.Hidden = true }
}

// PrimaryKey marks the field as the primary key.
func PrimaryKey() FieldOption {
	return func(f *Field) { f.IsPrimaryKey = true }
}

// Default sets a value applied by Model.New when the attribute is absent.
func Default(value any) FieldOption {
	return func(f *Field) { f.DefaultValue = value }
}

// CreatedAt marks the field as the createdAt timestamp.
func CreatedAt() FieldOption {
	return func(f *Field) { f.IsCreatedAt = true }
}

// UpdatedAt marks the field as the updatedAt timestamp.
func UpdatedAt() FieldOption {
	return func(f *Field) { f.IsUpdatedAt = true }
}

// DeletedAt marks the field as the deletedAt timestamp (for soft deletes).
func DeletedAt() FieldOption {
	return func(f *Field) { f.IsDeletedAt = true }
}

// RelationKind defines the type of relationship between entities.
type RelationKind int

const (
	HasOne     RelationKind = 1 // one-to-one, foreign key lives on the related document
	HasMany    RelationKind = 2 // one-to-many, foreign key lives on the related documents
	BelongsTo  RelationKind = 3 // many-to-one, foreign key lives on this document
	EmbedsOne  RelationKind = 4 // a single sub-document stored inline
	EmbedsMany RelationKind = 5 // an array of sub-documents stored inline
)

func (k RelationKind) String() string {
	switch k {
	case HasOne:
		return "hasOne"
	case HasMany:
		return "hasMany"
	case BelongsTo:
		return "belongsTo"
	case EmbedsOne:
		return "embedsOne"
	case EmbedsMany:
		return "embedsMany"
	}
	return fmt.Sprintf("RelationKind(%d)", int(k))
}

// IsEmbedded reports whether the relation is stored inline on the parent.
func (k RelationKind) IsEmbedded() bool {
	return k == EmbedsOne || k == EmbedsMany
}

// Relation describes a declared relationship of a schema.
//
// The related schema is reached through a deferred accessor so that schemas
// may reference each other before both are defined. The accessor is
// evaluated on use until it yields a schema, which is then memoized.
type Relation struct {
	Name       string
	Kind       RelationKind
	LocalKey   string // key on the parent (HasOne/HasMany) or on the owner (BelongsTo)
	ForeignKey string // key on the related documents (HasOne/HasMany) or on the parent (BelongsTo)

	// Constraint is applied to every eager load of the relation.
	Constraint func(*Query)
	// EmbeddedConstraint is applied to every eager load of an embedded relation.
	EmbeddedConstraint func(*EmbeddedQuery) *EmbeddedQuery

	owner   *Schema
	related func() *Schema
	mutex   sync.Mutex
	target  *Schema
}

// RelationOption customizes a Relation at declaration time.
type RelationOption func(*Relation)

// ForeignKey sets the foreign key of the relation.
func ForeignKey(name string) RelationOption {
	return func(r *Relation) { r.ForeignKey = name }
}

// LocalKey sets the local (or owner) key of the relation.
func LocalKey(name string) RelationOption {
	return func(r *Relation) { r.LocalKey = name }
}

// Constrain registers a constraint applied to every eager load of the relation.
func Constrain(fn func(*Query)) RelationOption {
	return func(r *Relation) { r.Constraint = fn }
}

// ConstrainEmbedded registers a constraint applied to every eager load of an
// embedded relation.
func ConstrainEmbedded(fn func(*EmbeddedQuery) *EmbeddedQuery) RelationOption {
	return func(r *Relation) { r.EmbeddedConstraint = fn }
}

// Target resolves the related schema through the deferred accessor. A nil
// accessor result is a configuration error and is not remembered, so a
// later call succeeds once the related schema has been defined.
func (r *Relation) Target() (*Schema, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.target != nil {
		return r.target, nil
	}
	if r.related == nil {
		if r.Kind.IsEmbedded() {
			return nil, nil
		}
		return nil, r.unresolved()
	}
	target := r.related()
	if target == nil {
		return nil, r.unresolved()
	}
	r.target = target
	Registry.Register(target)
	if r.Kind == BelongsTo && r.ForeignKey == "" {
		r.ForeignKey = lowerFirst(target.Name) + "Id"
	}
	return target, nil
}

func (r *Relation) unresolved() error {
	return &ConfigurationError{
		Entity:   r.owner.Name,
		Relation: r.Name,
		Reason:   "related schema could not be resolved",
	}
}

// Resolved reports whether the related schema has been resolved.
func (r *Relation) Resolved() bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.target != nil
}

// Owner returns the schema declaring the relation.
func (r *Relation) Owner() *Schema {
	return r.owner
}

// Schema describes an entity type: where its documents live, how its fields
// are named, how it relates to other entity types and which hooks run
// around its operations.
type Schema struct {
	Name       string
	Database   string
	Collection string
	PrimaryKey string
	Fields     []*Field
	Relations  []*Relation
	Naming     NamingStrategy

	hooks          *HookRegistry
	fieldsByName   map[string]*Field
	createdAtField *Field
	updatedAtField *Field
	deletedAtField *Field
}

// SchemaOption represents a function that customizes a schema.
type SchemaOption func(*Schema)

// CollectionName sets the collection name for the schema.
func CollectionName(name string) SchemaOption {
	return func(s *Schema) { s.Collection = name }
}

// DatabaseName sets the database name for the schema.
func DatabaseName(name string) SchemaOption {
	return func(s *Schema) { s.Database = name }
}

// Naming sets the naming strategy used to translate field names.
func Naming(strategy NamingStrategy) SchemaOption {
	return func(s *Schema) { s.Naming = strategy }
}

// Attribute declares a field and its options.
func Attribute(name string, options ...FieldOption) SchemaOption {
	return func(s *Schema) {
		field := s.field(name)
		for _, option := range options {
			option(field)
		}
		if field.IsPrimaryKey {
			s.PrimaryKey = field.Name
		}
	}
}

// Timestamps declares createdAt and updatedAt fields maintained by Save.
func Timestamps() SchemaOption {
	return func(s *Schema) {
		Attribute("createdAt", CreatedAt())(s)
		Attribute("updatedAt", UpdatedAt())(s)
	}
}

// SoftDeletes declares a deletedAt field. Deletes then stamp the field
// instead of removing documents, and queries exclude stamped documents.
func SoftDeletes() SchemaOption {
	return func(s *Schema) { Attribute("deletedAt", DeletedAt())(s) }
}

// Hook registers a lifecycle or query hook on the schema.
func Hook(kind HookKind, fn HookFunc) SchemaOption {
	return func(s *Schema) { s.hooks.On(kind, fn) }
}

// HasOneOf declares a one-to-one relation owned by this schema.
func HasOneOf(name string, related func() *Schema, options ...RelationOption) SchemaOption {
	return relationOption(name, HasOne, related, options)
}

// HasManyOf declares a one-to-many relation owned by this schema.
func HasManyOf(name string, related func() *Schema, options ...RelationOption) SchemaOption {
	return relationOption(name, HasMany, related, options)
}

// BelongsToOne declares a many-to-one relation whose foreign key lives on
// this schema's documents.
func BelongsToOne(name string, related func() *Schema, options ...RelationOption) SchemaOption {
	return relationOption(name, BelongsTo, related, options)
}

// EmbedsOneOf declares a single inline sub-document. related may be nil for
// schema-less sub-documents.
func EmbedsOneOf(name string, related func() *Schema, options ...RelationOption) SchemaOption {
	return relationOption(name, EmbedsOne, related, options)
}

// EmbedsManyOf declares an inline array of sub-documents. related may be nil
// for schema-less sub-documents.
func EmbedsManyOf(name string, related func() *Schema, options ...RelationOption) SchemaOption {
	return relationOption(name, EmbedsMany, related, options)
}

func relationOption(name string, kind RelationKind, related func() *Schema, options []RelationOption) SchemaOption {
	return func(s *Schema) {
		relation := &Relation{Name: name, Kind: kind, owner: s, related: related}
		switch kind {
		case HasOne, HasMany:
			relation.ForeignKey = lowerFirst(s.Name) + "Id"
		case BelongsTo:
			relation.LocalKey = DefaultPrimaryKey
		}
		for _, option := range options {
			option(relation)
		}
		s.Relations = append(s.Relations, relation)
	}
}

// Define builds a schema and registers it in the process-wide Registry.
//
// Example:
//
//	var users = core.Define("User",
//		core.CollectionName("users"),
//		core.Attribute("firstName", core.Column("first_name")),
//		core.HasManyOf("posts", func() *core.Schema { return posts }),
//	)
func Define(name string, options ...SchemaOption) *Schema {
	schema := &Schema{
		Name:         name,
		Collection:   defaultCollection(name),
		PrimaryKey:   DefaultPrimaryKey,
		Naming:       FieldNaming{},
		hooks:        NewHookRegistry(),
		fieldsByName: make(map[string]*Field),
	}
	for _, option := range options {
		option(schema)
	}
	for _, relation := range schema.Relations {
		// the primary key may be declared after the relation
		if (relation.Kind == HasOne || relation.Kind == HasMany) && relation.LocalKey == "" {
			relation.LocalKey = schema.PrimaryKey
		}
	}
	for _, f := range schema.Fields {
		if f.IsCreatedAt {
			schema.createdAtField = f
		}
		if f.IsUpdatedAt {
			schema.updatedAtField = f
		}
		if f.IsDeletedAt {
			schema.deletedAtField = f
		}
	}
	Registry.Register(schema)
	return schema
}

// Hooks returns the schema's hook registry.
func (s *Schema) Hooks() *HookRegistry {
	return s.hooks
}

// On registers a hook on the schema after definition.
func (s *Schema) On(kind HookKind, fn HookFunc) *Schema {
	s.hooks.On(kind, fn)
	return s
}

// FieldByName returns a declared field.
func (s *Schema) FieldByName(name string) (*Field, bool) {
	f, ok := s.fieldsByName[name]
	return f, ok
}

// Relation finds a declared relation by name.
func (s *Schema) Relation(name string) (*Relation, bool) {
	for _, relation := range s.Relations {
		if relation.Name == name {
			return relation, true
		}
	}
	return nil, false
}

// SoftDeletes reports whether the schema stamps deletedAt instead of removing.
func (s *Schema) SoftDeletes() bool {
	return s.deletedAtField != nil
}

func (s *Schema) field(name string) *Field {
	if f, ok := s.fieldsByName[name]; ok {
		return f
	}
	f := &Field{Name: name}
	s.Fields = append(s.Fields, f)
	s.fieldsByName[name] = f
	return f
}

func defaultCollection(name string) string {
	collection := snakeCase(name)
	if strings.HasSuffix(collection, "s") {
		return collection
	}
	return collection + "s"
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
