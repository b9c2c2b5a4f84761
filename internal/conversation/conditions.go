// internal/conversation/conditions.go
package conversation

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/Corphon/DialogueEngine/internal/models"
)

// Evaluator decides whether an entry is currently reachable.
type Evaluator interface {
	IsValid(entry *models.DialogueEntry) bool
}

// ScriptRunner executes an entry's script when its state is materialized.
type ScriptRunner interface {
	Run(entry *models.DialogueEntry)
}

// AlwaysValid accepts every entry.
type AlwaysValid struct{}

// IsValid implements Evaluator.
func (AlwaysValid) IsValid(*models.DialogueEntry) bool { return true }

// VariablesSaveKey is the saver key of the variable table.
const VariablesSaveKey = "dialogue_variables"

// VariableTable holds the boolean flags entry conditions and scripts use.
// It also records itself into saved games.
type VariableTable struct {
	mu    sync.RWMutex
	flags map[string]bool
}

// NewVariableTable 创建变量表
func NewVariableTable() *VariableTable {
	return &VariableTable{flags: make(map[string]bool)}
}

// Get returns the value of a flag. Unknown flags are false.
func (v *VariableTable) Get(name string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.flags[name]
}

// Set assigns a flag.
func (v *VariableTable) Set(name string, value bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.flags[name] = value
}

// Snapshot returns a copy of all flags.
func (v *VariableTable) Snapshot() map[string]bool {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make(map[string]bool, len(v.flags))
	for k, val := range v.flags {
		out[k] = val
	}
	return out
}

// Reset clears every flag.
func (v *VariableTable) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.flags = make(map[string]bool)
}

// IsValid implements Evaluator: every condition must hold.
func (v *VariableTable) IsValid(entry *models.DialogueEntry) bool {
	if entry == nil {
		return false
	}
	v.mu.RLock()
	defer v.mu.RUnlock()

	for _, cond := range entry.Conditions {
		name, want := parseFlag(cond)
		if name == "" {
			continue
		}
		if v.flags[name] != want {
			return false
		}
	}
	return true
}

// Run implements ScriptRunner.
func (v *VariableTable) Run(entry *models.DialogueEntry) {
	if entry == nil || len(entry.Script) == 0 {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, stmt := range entry.Script {
		if name, value := parseFlag(stmt); name != "" {
			v.flags[name] = value
		}
	}
}

// Key implements the saver contract.
func (v *VariableTable) Key() string { return VariablesSaveKey }

// SaveAcrossSceneChanges keeps variables when scenes change.
func (v *VariableTable) SaveAcrossSceneChanges() bool { return true }

// RecordData encodes the flags as JSON with sorted keys.
func (v *VariableTable) RecordData() string {
	snapshot := v.Snapshot()
	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	sort.Strings(names)

	type flag struct {
		Name  string `json:"name"`
		Value bool   `json:"value"`
	}
	list := make([]flag, 0, len(names))
	for _, name := range names {
		list = append(list, flag{Name: name, Value: snapshot[name]})
	}
	data, err := json.Marshal(list)
	if err != nil {
		return ""
	}
	return string(data)
}

// ApplyData restores flags recorded by RecordData. Unreadable data leaves
// the table empty.
func (v *VariableTable) ApplyData(data string) {
	var list []struct {
		Name  string `json:"name"`
		Value bool   `json:"value"`
	}
	flags := make(map[string]bool)
	if data != "" && json.Unmarshal([]byte(data), &list) == nil {
		for _, f := range list {
			flags[f.Name] = f.Value
		}
	}
	v.mu.Lock()
	v.flags = flags
	v.mu.Unlock()
}

// OnBeforeSceneChange implements the saver contract; variables are global.
func (v *VariableTable) OnBeforeSceneChange() {}

func parseFlag(expr string) (string, bool) {
	expr = strings.TrimSpace(expr)
	if strings.HasPrefix(expr, "!") {
		return strings.TrimSpace(expr[1:]), false
	}
	return expr, true
}
