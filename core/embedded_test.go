package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leandroluk/golem-odm/core"
)

func firstNames(entities []*core.Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i], _ = e.Get("firstName").(string)
	}
	return out
}

func members() []any {
	list := []struct {
		name string
		age  int
	}{
		{"Ana", 25}, {"Bia", 35}, {"Caio", 22}, {"Duda", 28}, {"Eva", 40},
		{"Fabio", 19}, {"Gil", 29}, {"Hugo", 31}, {"Iris", 24}, {"Joao", 27},
	}
	out := make([]any, len(list))
	for i, m := range list {
		out[i] = map[string]any{"firstName": m.name, "age": m.age}
	}
	return out
}

// newTeam stores a team with ten embedded members and returns it freshly read.
func newTeam(t *testing.T, options ...core.RelationOption) (*core.Model, *core.Entity) {
	t.Helper()
	reset(t)
	schema := core.Define("Team",
		core.EmbedsManyOf("members", nil, options...),
		core.EmbedsOneOf("address", nil),
	)
	m, _ := newModel(t, schema)
	ctx := context.Background()
	created, err := m.Create(ctx, map[string]any{
		"name":    "core",
		"members": members(),
		"address": map[string]any{"city": "Recife"},
	})
	require.NoError(t, err)
	team, err := m.Find(ctx, created.ID())
	require.NoError(t, err)
	require.NotNil(t, team)
	return m, team
}

func TestEmbeddedQueryPage(t *testing.T) {
	_, team := newTeam(t)
	coll, err := team.Embedded("members")
	require.NoError(t, err)

	page := coll.Query().Where("age", "<", 30).OrderBy("firstName", "asc").ForPage(2, 3).Get()
	assert.Equal(t, []string{"Fabio", "Gil", "Iris"}, firstNames(page))

	assert.Equal(t, 10, coll.Len())
	assert.False(t, team.IsDirty("members"))
	assert.Len(t, team.Get("members"), 10)
}

func TestEmbeddedQueryOperations(t *testing.T) {
	_, team := newTeam(t)
	coll, err := team.Embedded("members")
	require.NoError(t, err)
	young := func() *core.EmbeddedQuery { return coll.Query().Where("age", "<", 30) }

	assert.Equal(t, 7, young().Count())
	assert.True(t, young().Exists())
	assert.False(t, coll.Query().Where("age", ">", 90).Exists())
	assert.Equal(t, "Fabio", young().OrderBy("age").First().Get("firstName"))
	assert.Nil(t, coll.Query().Where("age", ">", 90).First())

	assert.Equal(t, []string{"Eva", "Bia"}, firstNames(coll.Query().OrderBy("age", "desc").Limit(2).Get()))
	assert.Equal(t, []string{"Iris"}, firstNames(coll.Query().Search("IS", "firstName").Get()))
	assert.Len(t, coll.Query().Search("", "firstName").Get(), 10)
	assert.Equal(t, []string{"Ana", "Caio"}, firstNames(coll.Query().WhereIn("firstName", "Caio", "Ana").Get()))
	assert.Equal(t, []string{"Bia", "Hugo"}, firstNames(coll.Query().WhereAny(
		core.Cond("firstName").Eq("Bia"),
		core.Cond("firstName").Eq("Hugo"),
	).Get()))
	assert.Equal(t, []string{"Duda", "Gil"}, firstNames(coll.Query().WhereAll(
		core.Cond("age").Gte(28),
		core.Cond("age").Lt(30),
	).Get()))
	assert.Equal(t, []string{"Joao"}, firstNames(coll.Query().WhereLike("firstName", "J%").Get()))
	assert.Len(t, coll.Query().WhereNull("nickname").Get(), 10)
	assert.Equal(t, []string{"Eva"}, firstNames(coll.Query().Filter(func(e *core.Entity) bool {
		return e.Get("age") == 40
	}).Get()))

	var tapped int
	assert.Equal(t, 7, young().Tap(func(items []*core.Entity) { tapped = len(items) }).Count())
	assert.Equal(t, 7, tapped)
}

func TestEmbeddedQueryPaginate(t *testing.T) {
	_, team := newTeam(t)
	coll, err := team.Embedded("members")
	require.NoError(t, err)

	page := coll.Query().Where("age", "<", 30).OrderBy("firstName").Paginate(2, 3)
	assert.Equal(t, []string{"Fabio", "Gil", "Iris"}, firstNames(page.Items))
	assert.Equal(t, 7, page.Total)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 2, page.CurrentPage)
	assert.True(t, page.HasNextPage)
	assert.True(t, page.HasPrevPage)

	last := coll.Query().Paginate(4, 3)
	assert.Equal(t, []string{"Joao"}, firstNames(last.Items))
	assert.False(t, last.HasNextPage)
}

func TestEmbeddedQueryAggregates(t *testing.T) {
	_, team := newTeam(t)
	coll, err := team.Embedded("members")
	require.NoError(t, err)

	stats := coll.Query().Aggregate("age")
	assert.Equal(t, 10, stats.Count)
	assert.InDelta(t, 280, stats.Sum, 0.001)
	assert.InDelta(t, 28, stats.Avg, 0.001)
	assert.InDelta(t, 19, stats.Min, 0.001)
	assert.InDelta(t, 40, stats.Max, 0.001)

	assert.Equal(t, core.AggregateResult{}, coll.Query().Where("age", ">", 90).Aggregate("age"))

	older := coll.Query().Where("age", ">=", 30)
	groups := older.GroupBy("age")
	assert.Len(t, groups, 3)
	assert.Equal(t, []any{35, 40, 31}, older.Distinct("age"))
}

func TestEmbeddedQuerySelect(t *testing.T) {
	_, team := newTeam(t)
	coll, err := team.Embedded("members")
	require.NoError(t, err)

	selected := coll.Query().Select("firstName").OrderBy("age").Limit(1).Get()
	require.Len(t, selected, 1)
	assert.Equal(t, "Fabio", selected[0].Get("firstName"))
	assert.False(t, selected[0].Has("age"))
	assert.True(t, coll.All()[5].Has("age"))
}

func TestEmbeddedQueryClone(t *testing.T) {
	_, team := newTeam(t)
	coll, err := team.Embedded("members")
	require.NoError(t, err)

	base := coll.Query().Where("age", "<", 30)
	narrowed := base.Clone().Where("age", ">", 25)
	assert.Equal(t, 7, base.Count())
	assert.Equal(t, 3, narrowed.Count())
}

func TestEmbeddedQueryDateBetween(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }
	q := core.NewEmbeddedQuery(nil)
	assert.Empty(t, q.WhereDateBetween("at", day(1), day(2)).Get())

	reset(t)
	schema := core.Define("Event", core.EmbedsManyOf("sessions", nil))
	m, _ := newModel(t, schema)
	e := m.New(map[string]any{"sessions": []any{
		map[string]any{"name": "a", "at": day(1)},
		map[string]any{"name": "b", "at": "2024-03-05T10:00:00Z"},
		map[string]any{"name": "c", "at": "2024-03-20"},
		map[string]any{"name": "d"},
	}})
	coll, err := e.Embedded("sessions")
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, names(coll.Query().WhereDateBetween("at", day(1), day(10)).Get()))
	assert.Equal(t, []string{"c"}, names(coll.Query().WhereDateBetween("at", day(15), day(25)).Get()))
}

func TestEmbeddedMutationsWriteBack(t *testing.T) {
	m, team := newTeam(t)
	ctx := context.Background()
	coll, err := team.Embedded("members")
	require.NoError(t, err)

	coll.Create(map[string]any{"firstName": "Kai", "age": 20})
	assert.True(t, team.IsDirty("members"))
	assert.Len(t, team.Get("members"), 11)

	assert.Equal(t, 1, coll.RemoveWhere(func(e *core.Entity) bool { return e.Get("firstName") == "Bia" }))
	popped := coll.Pop()
	require.NotNil(t, popped)
	assert.Equal(t, "Kai", popped.Get("firstName"))
	coll.All()[0].Set("age", 26)

	saved, err := m.Save(ctx, team)
	require.NoError(t, err)
	assert.True(t, saved)

	reloaded, err := m.Find(ctx, team.ID())
	require.NoError(t, err)
	reloadedMembers, err := reloaded.Embedded("members")
	require.NoError(t, err)
	assert.Equal(t, 9, reloadedMembers.Len())
	assert.Equal(t, 26, reloadedMembers.All()[0].Get("age"))
	assert.NotContains(t, firstNames(reloadedMembers.All()), "Bia")
}

func TestEmbedsOne(t *testing.T) {
	m, team := newTeam(t)
	ctx := context.Background()

	address, err := team.Embedded("address")
	require.NoError(t, err)
	require.NotNil(t, address.One())
	assert.Equal(t, "Recife", address.One().Get("city"))

	address.Create(map[string]any{"city": "Olinda"})
	assert.Equal(t, 1, address.Len())
	_, err = m.Save(ctx, team)
	require.NoError(t, err)

	reloaded, err := m.Find(ctx, team.ID())
	require.NoError(t, err)
	assert.Equal(t, "Olinda", reloaded.Get("address.city"))

	out := reloaded.ToMap()
	serialized, err := reloaded.Embedded("address")
	require.NoError(t, err)
	assert.Equal(t, "Olinda", serialized.One().Get("city"))
	assert.Contains(t, out, "address")

	_, err = team.Embedded("members.nested")
	assert.True(t, core.IsConfigurationError(err))
}

func TestEmbeddedEagerConstraintPublishesView(t *testing.T) {
	m, team := newTeam(t)

	loaded, err := m.Query().WithEmbedded("members", func(q *core.EmbeddedQuery) *core.EmbeddedQuery {
		return q.Where("age", ">=", 30)
	}).First(context.Background())
	require.NoError(t, err)

	coll, err := loaded.Embedded("members")
	require.NoError(t, err)
	assert.True(t, coll.Filtered())
	assert.Equal(t, []string{"Bia", "Eva", "Hugo"}, firstNames(coll.Items()))
	assert.Len(t, coll.All(), 10)
	assert.False(t, loaded.IsDirty("members"))
	assert.Equal(t, []string{"Bia", "Eva", "Hugo"}, firstNames(coll.Query().Get()))

	coll.ClearView()
	assert.Equal(t, 10, coll.Len())
	assert.Equal(t, team.ID(), loaded.ID())
}

func TestEmbeddedRelationConstraint(t *testing.T) {
	m, _ := newTeam(t, core.ConstrainEmbedded(func(q *core.EmbeddedQuery) *core.EmbeddedQuery {
		return q.OrderBy("age", "desc").Limit(2)
	}))

	loaded, err := m.Query().With("members").First(context.Background())
	require.NoError(t, err)
	coll, err := loaded.Embedded("members")
	require.NoError(t, err)
	assert.Equal(t, []string{"Eva", "Bia"}, firstNames(coll.Items()))

	coll.Create(map[string]any{"firstName": "Kai", "age": 20})
	assert.False(t, coll.Filtered())
	assert.Equal(t, 11, coll.Len())
}

func TestEmbeddedRelationRejectsQueryConstraints(t *testing.T) {
	m, _ := newTeam(t)
	tests := []struct {
		name   string
		query  func() *core.Query
		reason string
	}{
		{
			name: "query constraint",
			query: func() *core.Query {
				return m.Query().With("members", func(q *core.Query) { q.Where("age", ">=", 30) })
			},
			reason: "WithEmbedded",
		},
		{
			name:   "nested path",
			query:  func() *core.Query { return m.Query().With("members.pets") },
			reason: "nested path pets",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.query().First(context.Background())
			require.Error(t, err)
			assert.True(t, core.IsRelationError(err))
			assert.True(t, core.IsConfigurationError(err))
			assert.ErrorContains(t, err, tt.reason)
		})
	}
}
