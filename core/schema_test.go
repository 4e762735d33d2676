package core_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leandroluk/golem-odm/core"
	"github.com/leandroluk/golem-odm/driver/memory"
)

func TestRelationTargetResolvesAfterLateDefinition(t *testing.T) {
	reset(t)
	author := core.Define("Author", core.HasManyOf("books", core.Lazy("Book")))
	relation, ok := author.Relation("books")
	require.True(t, ok)

	target, err := relation.Target()
	assert.Nil(t, target)
	assert.True(t, core.IsConfigurationError(err))
	assert.False(t, relation.Resolved())

	book := core.Define("Book")
	target, err = relation.Target()
	require.NoError(t, err)
	assert.Same(t, book, target)
	assert.True(t, relation.Resolved())

	core.Registry.Reset()
	core.Define("Book")
	target, err = relation.Target()
	require.NoError(t, err)
	assert.Same(t, book, target, "a resolved target is kept")
}

func TestRelationDefaultKeys(t *testing.T) {
	reset(t)
	items := func() *core.Schema { return core.Registry.MustLookup("Item") }
	shop := core.Define("Shop",
		core.HasManyOf("items", items),
		core.HasOneOf("featured", items, core.LocalKey("slug")),
		core.BelongsToOne("owner", core.Lazy("Merchant")),
		core.Attribute("code", core.PrimaryKey()),
	)
	core.Define("Item")
	core.Define("Merchant")

	tests := []struct {
		relation   string
		localKey   string
		foreignKey string
	}{
		{relation: "items", localKey: "code", foreignKey: "shopId"},
		{relation: "featured", localKey: "slug", foreignKey: "shopId"},
		{relation: "owner", localKey: "_id", foreignKey: "merchantId"},
	}
	for _, tt := range tests {
		t.Run(tt.relation, func(t *testing.T) {
			relation, ok := shop.Relation(tt.relation)
			require.True(t, ok)
			_, err := relation.Target()
			require.NoError(t, err)
			assert.Equal(t, tt.localKey, relation.LocalKey)
			assert.Equal(t, tt.foreignKey, relation.ForeignKey)
		})
	}
}

func TestEagerHasManyOnCustomPrimaryKey(t *testing.T) {
	reset(t)
	shop := core.Define("Shop",
		core.HasManyOf("items", core.Lazy("Item")),
		core.Attribute("code", core.PrimaryKey()),
	)
	item := core.Define("Item")
	driver := memory.New()
	shops := core.NewModel(shop, driver)
	itemModel := core.NewModel(item, driver)
	ctx := context.Background()

	for _, code := range []string{"s1", "s2"} {
		created, err := shops.Create(ctx, map[string]any{"code": code, "name": "shop " + code})
		require.NoError(t, err)
		assert.Equal(t, code, created.ID())
	}
	for _, name := range []string{"lamp", "desk"} {
		_, err := itemModel.Create(ctx, map[string]any{"name": name, "shopId": "s1"})
		require.NoError(t, err)
	}
	driver.ResetCalls()

	list, err := shops.Query().With("items").OrderBy("code").Fetch(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)

	first, err := list[0].Relation("items")
	require.NoError(t, err)
	assert.Equal(t, []string{"lamp", "desk"}, names(first.Many()))
	second, err := list[1].Relation("items")
	require.NoError(t, err)
	assert.Empty(t, second.Many())
	assert.Equal(t, 2, driver.Calls(core.OperationFetch))
}
