package catalog

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"coredb/types"
)

func newTestManager(t *testing.T) *Manager {
	fs := afero.NewMemMapFs()
	cm, err := NewManager("/data", fs, nil)
	require.NoError(t, err)
	require.NoError(t, cm.CreateDatabase("school"))
	require.NoError(t, cm.UseDatabase("school"))
	return cm
}

func studentsSchema() types.TableSchema {
	return types.TableSchema{
		TableName: "students",
		Columns: []types.ColumnDef{
			{Name: "id", Type: types.ColInt, IsPrimaryKey: true},
			{Name: "name", Type: types.ColVarchar, Length: 64, NotNull: true},
		},
	}
}

func TestRegisterNewTableAssignsDistinctFileIDs(t *testing.T) {
	cm := newTestManager(t)
	heapID, idxID, err := cm.RegisterNewTable(studentsSchema())
	require.NoError(t, err)
	require.NotEqual(t, heapID, idxID)

	gotHeap, err := cm.GetTableFileID("students")
	require.NoError(t, err)
	require.Equal(t, heapID, gotHeap)
}

func TestRegisterDuplicateTableFails(t *testing.T) {
	cm := newTestManager(t)
	_, _, err := cm.RegisterNewTable(studentsSchema())
	require.NoError(t, err)
	_, _, err = cm.RegisterNewTable(studentsSchema())
	require.Error(t, err)
}

func TestGetTableSchemaSurvivesReopen(t *testing.T) {
	fs := afero.NewMemMapFs()
	cm, err := NewManager("/data", fs, nil)
	require.NoError(t, err)
	require.NoError(t, cm.CreateDatabase("school"))
	require.NoError(t, cm.UseDatabase("school"))
	_, _, err = cm.RegisterNewTable(studentsSchema())
	require.NoError(t, err)

	reopened, err := NewManager("/data", fs, nil)
	require.NoError(t, err)
	require.NoError(t, reopened.UseDatabase("school"))

	schema, err := reopened.GetTableSchema("students")
	require.NoError(t, err)
	require.Equal(t, "students", schema.TableName)
	require.Len(t, schema.Columns, 2)

	heapID, err := reopened.GetTableFileID("students")
	require.NoError(t, err)
	require.EqualValues(t, 1, heapID)
}

func TestUnregisterTableRemovesIndexesAndTriggers(t *testing.T) {
	cm := newTestManager(t)
	_, idxFileID, err := cm.RegisterNewTable(studentsSchema())
	require.NoError(t, err)

	require.NoError(t, cm.RegisterIndex(IndexDef{Name: "pk", Table: "students", Columns: []string{"id"}, Unique: true, FileID: idxFileID}))
	require.NoError(t, cm.CreateTrigger(TriggerDef{Name: "trg1", Table: "students", Event: "INSERT", Timing: "BEFORE", Body: "SELECT 1"}))

	require.NoError(t, cm.UnregisterTable("students"))
	require.False(t, cm.TableExists("students"))
	require.Empty(t, cm.IndexesForTable("students"))
	require.Empty(t, cm.TriggersForTable("students"))
}

func TestRegisterIndexRejectsDuplicateName(t *testing.T) {
	cm := newTestManager(t)
	_, idxFileID, err := cm.RegisterNewTable(studentsSchema())
	require.NoError(t, err)

	def := IndexDef{Name: "pk", Table: "students", Columns: []string{"id"}, Unique: true, FileID: idxFileID}
	require.NoError(t, cm.RegisterIndex(def))
	require.Error(t, cm.RegisterIndex(def))
}

func TestViewRoundTrip(t *testing.T) {
	cm := newTestManager(t)
	require.NoError(t, cm.CreateView(ViewDef{Name: "adults", Query: "SELECT * FROM students WHERE age >= 18"}))

	v, err := cm.GetView("adults")
	require.NoError(t, err)
	require.Contains(t, v.Query, "age >= 18")

	require.NoError(t, cm.DropView("adults"))
	_, err = cm.GetView("adults")
	require.Error(t, err)
}

func TestTriggersForTablePreservesOrder(t *testing.T) {
	cm := newTestManager(t)
	_, _, err := cm.RegisterNewTable(studentsSchema())
	require.NoError(t, err)

	require.NoError(t, cm.CreateTrigger(TriggerDef{Name: "first", Table: "students", Event: "INSERT", Timing: "BEFORE", Body: "x"}))
	require.NoError(t, cm.CreateTrigger(TriggerDef{Name: "second", Table: "students", Event: "INSERT", Timing: "BEFORE", Body: "y"}))

	triggers := cm.TriggersForTable("students")
	require.Len(t, triggers, 2)
	require.Equal(t, "first", triggers[0].Name)
	require.Equal(t, "second", triggers[1].Name)
}

func TestAllocateFileIDIsMonotonic(t *testing.T) {
	cm := newTestManager(t)
	a, err := cm.AllocateFileID()
	require.NoError(t, err)
	b, err := cm.AllocateFileID()
	require.NoError(t, err)
	require.Less(t, a, b)
}
