package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSavedGameDataSetDataKeepsOrder(t *testing.T) {
	data := NewSavedGameData()
	data.SetData("b", 0, "1")
	data.SetData("a", NoSceneIndex, "2")
	data.SetData("b", 3, "updated")

	assert.Equal(t, []string{"b", "a"}, data.Keys())
	value, ok := data.GetData("b")
	assert.True(t, ok)
	assert.Equal(t, "updated", value)
	assert.Equal(t, 3, data.Records()[0].SceneIndex)

	_, ok = data.GetData("missing")
	assert.False(t, ok)
}

func TestSavedGameDataDeleteObsolete(t *testing.T) {
	data := NewSavedGameData()
	data.SetData("scene0", 0, "x")
	data.SetData("global", NoSceneIndex, "y")
	data.SetData("scene1", 1, "z")

	data.DeleteObsoleteSaveData(1)
	assert.Equal(t, []string{"global", "scene1"}, data.Keys())

	value, ok := data.GetData("scene1")
	assert.True(t, ok)
	assert.Equal(t, "z", value)
}

func TestSavedGameDataDeleteData(t *testing.T) {
	data := NewSavedGameData()
	data.SetData("a", 0, "1")
	data.SetData("b", 0, "2")
	data.SetData("c", 0, "3")

	data.DeleteData("a")
	data.DeleteData("missing")
	assert.Equal(t, 2, data.Count())

	value, ok := data.GetData("c")
	assert.True(t, ok)
	assert.Equal(t, "3", value)

	data.SetData("b", 0, "changed")
	assert.Equal(t, []string{"b", "c"}, data.Keys())
}

func TestSavedGameDataCloneIsIndependent(t *testing.T) {
	data := NewSavedGameDataFromRecords(1, "Town", []SaveRecord{
		{Key: "a", SceneIndex: 0, Data: "first"},
		{Key: "a", SceneIndex: 0, Data: "second"},
	})
	assert.Equal(t, 1, data.Count())
	assert.Equal(t, NoSceneIndex, data.SceneIndex)
	data.SceneIndex = 2

	clone := data.Clone()
	assert.Equal(t, 2, clone.SceneIndex)
	clone.SetData("b", 0, "new")
	assert.Equal(t, 1, data.Count())
	assert.Equal(t, "Town", clone.SceneName)

	value, _ := clone.GetData("a")
	assert.Equal(t, "second", value)
}
