package catalog

import (
	"coredb/dberr"

	"go.uber.org/zap"
)

// CreateView stores a view's name and its defining SELECT text. The engine
// re-parses Query on each reference rather than the catalog round-tripping
// an AST — see DESIGN.md's Open Question resolution on view storage.
func (cm *Manager) CreateView(def ViewDef) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if _, exists := cm.views[def.Name]; exists {
		return dberr.New(dberr.ConstraintViolation, "view %q already exists", def.Name)
	}
	cm.views[def.Name] = def
	if err := cm.persistViews(); err != nil {
		return err
	}
	cm.log.Debug("created view", zap.String("view", def.Name))
	return nil
}

func (cm *Manager) GetView(name string) (ViewDef, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	v, exists := cm.views[name]
	if !exists {
		return ViewDef{}, dberr.New(dberr.NotFound, "view %q not found", name)
	}
	return v, nil
}

func (cm *Manager) ListViews() []ViewDef {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	out := make([]ViewDef, 0, len(cm.views))
	for _, v := range cm.views {
		out = append(out, v)
	}
	return out
}

func (cm *Manager) DropView(name string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if _, exists := cm.views[name]; !exists {
		return dberr.New(dberr.NotFound, "view %q not found", name)
	}
	delete(cm.views, name)
	return cm.persistViews()
}
