package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDialogueDatabase(t *testing.T) {
	db, err := LoadDialogueDatabase("../../data/dialogue.json")
	require.NoError(t, err)
	assert.Empty(t, db.Validate())

	gate := db.GetConversationByTitle("Gate")
	require.NotNil(t, gate)
	entry := db.GetEntry(gate.ID, 1)
	require.NotNil(t, entry)
	assert.Equal(t, gate.ID, entry.ConversationID)
	assert.Equal(t, "Halte ! Qui va là ?", entry.Text("fr"))
	assert.Equal(t, "Halt! Who goes there?", entry.Text("de"))
	assert.Equal(t, "Halt! Who goes there?", entry.Menu(""))

	assert.Equal(t, "Guard", db.GetActor(2).Name)
	assert.True(t, db.GetActorByName("Player").IsPlayer)
	assert.Nil(t, db.GetEntry(99, 0))
}

func TestDialogueDatabaseValidate(t *testing.T) {
	db, err := ParseDialogueDatabase([]byte(`{
		"actors": [{"id": 1, "name": "Player", "is_player": true}],
		"conversations": [{
			"id": 1, "title": "Broken",
			"entries": [{"id": 1, "actor_id": 7, "links": [{"destination_conversation_id": 1, "destination_entry_id": 5}]}]
		}]
	}`))
	require.NoError(t, err)

	problems := db.Validate()
	assert.Len(t, problems, 3)

	_, err = ParseDialogueDatabase([]byte("{"))
	assert.Error(t, err)
}

func TestLinkPriorityDefaultsToNormal(t *testing.T) {
	var links []Link
	require.NoError(t, json.Unmarshal([]byte(`[
		{"destination_conversation_id": 1, "destination_entry_id": 2},
		{"destination_conversation_id": 1, "destination_entry_id": 3, "priority": 0},
		{"destination_conversation_id": 1, "destination_entry_id": 4, "priority": 4}
	]`), &links))

	require.Len(t, links, 3)
	assert.Equal(t, PriorityNormal, links[0].Priority)
	assert.Equal(t, 2, links[0].DestinationEntryID)
	assert.Equal(t, PriorityVeryLow, links[1].Priority)
	assert.Equal(t, PriorityVeryHigh, links[2].Priority)

	var link Link
	assert.Error(t, json.Unmarshal([]byte(`{"priority": "high"}`), &link))

	db, err := LoadDialogueDatabase("../../data/dialogue.json")
	require.NoError(t, err)
	for _, l := range db.GetEntry(1, 1).Links {
		assert.Equal(t, PriorityNormal, l.Priority)
	}
}
