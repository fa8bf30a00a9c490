package catalog

import (
	"coredb/dberr"

	"go.uber.org/zap"
)

// CreateTrigger stores a trigger definition under its table.
func (cm *Manager) CreateTrigger(def TriggerDef) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	for _, existing := range cm.triggers[def.Table] {
		if existing.Name == def.Name {
			return dberr.New(dberr.ConstraintViolation, "trigger %q already exists on table %q", def.Name, def.Table)
		}
	}
	cm.triggers[def.Table] = append(cm.triggers[def.Table], def)
	if err := cm.persistTriggers(); err != nil {
		return err
	}
	cm.log.Debug("created trigger", zap.String("table", def.Table), zap.String("trigger", def.Name))
	return nil
}

// TriggersForTable returns every trigger defined on table, in definition
// order (so multiple BEFORE INSERT triggers fire in the order they were
// created, matching the order the catalog appended them).
func (cm *Manager) TriggersForTable(table string) []TriggerDef {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	out := make([]TriggerDef, len(cm.triggers[table]))
	copy(out, cm.triggers[table])
	return out
}

func (cm *Manager) DropTrigger(table, name string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	list := cm.triggers[table]
	for i, t := range list {
		if t.Name == name {
			cm.triggers[table] = append(list[:i], list[i+1:]...)
			return cm.persistTriggers()
		}
	}
	return dberr.New(dberr.NotFound, "trigger %q not found on table %q", name, table)
}
