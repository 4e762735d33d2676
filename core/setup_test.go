package core_test

import (
	"testing"
	"time"

	"github.com/leandroluk/golem-odm/core"
	"github.com/leandroluk/golem-odm/driver/memory"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// reset clears the process-wide registries before and after a test.
func reset(t *testing.T) {
	t.Helper()
	core.Registry.Reset()
	core.ResetSubscribers()
	core.ResetMiddlewares()
	t.Cleanup(func() {
		core.Registry.Reset()
		core.ResetSubscribers()
		core.ResetMiddlewares()
	})
}

func newModel(t *testing.T, schema *core.Schema, options ...core.ModelOption) (*core.Model, *memory.MemoryDriver) {
	t.Helper()
	driver := memory.New()
	options = append([]core.ModelOption{core.WithClock(func() time.Time { return fixedNow })}, options...)
	return core.NewModel(schema, driver, options...), driver
}

func names(entities []*core.Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i], _ = e.Get("name").(string)
	}
	return out
}
