package catalog

import (
	"testing"

	"github.com/relational-go/coredb/common"
	"github.com/relational-go/coredb/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCatalog(t *testing.T) (*Catalog, string) {
	root := t.TempDir()
	files := storage.NewHeapFileManager(root)
	cat, err := NewCatalog(NewDiskCatalogManager(root), files)
	require.NoError(t, err)
	return cat, root
}

func TestCreateTableAssignsIncreasingIDs(t *testing.T) {
	cat, _ := newTestCatalog(t)

	id1, err := cat.CreateTable("users", []Column{{Name: "id", Type: common.IntType}})
	require.NoError(t, err)
	id2, err := cat.CreateTable("orders", []Column{{Name: "id", Type: common.IntType}})
	require.NoError(t, err)

	assert.NotEqual(t, common.InvalidTableID, id1)
	assert.NotEqual(t, id1, id2)
}

func TestCreateTableRejectsDuplicateName(t *testing.T) {
	cat, _ := newTestCatalog(t)

	_, err := cat.CreateTable("users", []Column{{Name: "id", Type: common.IntType}})
	require.NoError(t, err)

	_, err = cat.CreateTable("users", []Column{{Name: "id", Type: common.IntType}})
	require.Error(t, err)
	var dbErr common.DBError
	require.ErrorAs(t, err, &dbErr)
	assert.Equal(t, common.DBException, dbErr.Code)
}

func TestLookupByNameAndID(t *testing.T) {
	cat, _ := newTestCatalog(t)
	id, err := cat.CreateTable("users", []Column{
		{Name: "id", Type: common.IntType},
		{Name: "name", Type: common.StringType},
	})
	require.NoError(t, err)

	gotID, err := cat.GetTableID("users")
	require.NoError(t, err)
	assert.Equal(t, id, gotID)

	gotName, err := cat.GetTableName(id)
	require.NoError(t, err)
	assert.Equal(t, "users", gotName)

	desc, err := cat.GetTupleDesc(id)
	require.NoError(t, err)
	assert.Equal(t, 2, desc.NumFields())
	assert.Equal(t, "id", desc.FieldName(0))
	assert.Equal(t, common.StringType, desc.FieldType(1))
}

func TestLookupMissingTableFails(t *testing.T) {
	cat, _ := newTestCatalog(t)

	_, err := cat.GetTableID("ghost")
	require.Error(t, err)

	_, err = cat.GetTableName(common.TableID(999))
	require.Error(t, err)
}

func TestCatalogStateSurvivesReload(t *testing.T) {
	root := t.TempDir()
	files := storage.NewHeapFileManager(root)

	cat, err := NewCatalog(NewDiskCatalogManager(root), files)
	require.NoError(t, err)
	id, err := cat.CreateTable("users", []Column{{Name: "id", Type: common.IntType}})
	require.NoError(t, err)

	reopened, err := NewCatalog(NewDiskCatalogManager(root), files)
	require.NoError(t, err)

	gotName, err := reopened.GetTableName(id)
	require.NoError(t, err)
	assert.Equal(t, "users", gotName)
}

func TestTableIDIteratorReturnsCreationOrder(t *testing.T) {
	cat, _ := newTestCatalog(t)
	id1, err := cat.CreateTable("a", []Column{{Name: "x", Type: common.IntType}})
	require.NoError(t, err)
	id2, err := cat.CreateTable("b", []Column{{Name: "x", Type: common.IntType}})
	require.NoError(t, err)

	ids := cat.TableIDIterator()
	require.Equal(t, []common.TableID{id1, id2}, ids)
}
