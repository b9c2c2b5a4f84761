// internal/savesystem/serializer.go
package savesystem

import (
	"encoding/json"
	"fmt"

	"github.com/Corphon/DialogueEngine/internal/models"
)

// Serializer turns saved game data into the string storers persist.
type Serializer interface {
	Serialize(data *models.SavedGameData) (string, error)
	Deserialize(content string) (*models.SavedGameData, error)
}

// savedGameDocument is the on-disk layout of a saved game
type savedGameDocument struct {
	Version    int                 `json:"version"`
	SceneName  string              `json:"sceneName"`
	SceneIndex *int                `json:"sceneIndex,omitempty"`
	List       []models.SaveRecord `json:"list"`
}

// JSONSerializer encodes saved games as JSON
type JSONSerializer struct {
	Indent bool
}

// Serialize implements Serializer.
func (s JSONSerializer) Serialize(data *models.SavedGameData) (string, error) {
	if data == nil {
		return "", fmt.Errorf("serialize saved game: nil data")
	}
	doc := savedGameDocument{
		Version:   data.Version,
		SceneName: data.SceneName,
		List:      data.Records(),
	}
	if data.SceneIndex != models.NoSceneIndex {
		index := data.SceneIndex
		doc.SceneIndex = &index
	}

	var (
		content []byte
		err     error
	)
	if s.Indent {
		content, err = json.MarshalIndent(doc, "", "  ")
	} else {
		content, err = json.Marshal(doc)
	}
	if err != nil {
		return "", fmt.Errorf("serialize saved game: %w", err)
	}
	return string(content), nil
}

// Deserialize implements Serializer.
func (s JSONSerializer) Deserialize(content string) (*models.SavedGameData, error) {
	if content == "" {
		return nil, fmt.Errorf("deserialize saved game: empty content")
	}
	var doc savedGameDocument
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return nil, fmt.Errorf("deserialize saved game: %w", err)
	}
	data := models.NewSavedGameDataFromRecords(doc.Version, doc.SceneName, doc.List)
	if doc.SceneIndex != nil {
		data.SceneIndex = *doc.SceneIndex
	}
	return data, nil
}
