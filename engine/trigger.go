package engine

import (
	"coredb/catalog"
	"coredb/dberr"
	"coredb/planner"
	"coredb/sql/ast"
	"coredb/sql/parser"
	"coredb/types"
)

// fireTriggers runs every trigger registered on schema's table matching
// event/timing, in catalog.TriggersForTable order (so multiple BEFORE
// triggers on the same event fire in creation order). A trigger whose
// Condition evaluates false is skipped; its Body runs under txnID, the same
// transaction as the statement that fired it, so a later ROLLBACK undoes
// the trigger's effects along with the rest of the transaction.
func (e *StorageEngine) fireTriggers(txnID uint64, schema *types.TableSchema, event, timing string, row *types.Row) error {
	defs := e.cat.TriggersForTable(schema.TableName)
	if len(defs) == 0 {
		return nil
	}
	for _, def := range defs {
		if def.Event != event || def.Timing != timing {
			continue
		}
		if ok, err := e.evalTriggerCondition(def, row); err != nil {
			return err
		} else if !ok {
			continue
		}
		if err := e.runTriggerBody(txnID, def); err != nil {
			return dberr.Wrap(dberr.ConstraintViolation, err, "trigger %q on %s", def.Name, def.Table)
		}
	}
	return nil
}

func (e *StorageEngine) evalTriggerCondition(def catalog.TriggerDef, row *types.Row) (bool, error) {
	if def.Condition == "" {
		return true, nil
	}
	expr, err := parser.ParseExpr(def.Condition)
	if err != nil {
		return false, err
	}
	tuple := planner.Tuple{}
	for col, raw := range row.Values {
		if v, ok := raw.(types.Value); ok {
			tuple[qualifyUnqualified(col)] = v
		}
	}
	eval := planner.NewEvaluator(e.execContext())
	v, err := eval.Eval(expr, tuple)
	if err != nil {
		return false, err
	}
	return v.Type == types.ColBool && v.Bool, nil
}

// runTriggerBody parses def.Body and dispatches it through the same
// *Locked entry points Insert/Update/Delete use, since e.mu is already
// held by the statement that triggered this one. txnID is the firing
// statement's transaction (0 for autocommit DDL-originated triggers, which
// records no undo), so RecordInsert/RecordUpdate/RecordDelete attribute the
// trigger's effects to the same rollback unit as the rest of the statement.
func (e *StorageEngine) runTriggerBody(txnID uint64, def catalog.TriggerDef) error {
	stmt, err := parser.Parse(def.Body)
	if err != nil {
		return err
	}
	switch s := stmt.(type) {
	case *ast.InsertStmt:
		_, err := e.insertLocked(txnID, s)
		return err
	case *ast.UpdateStmt:
		_, err := e.updateLocked(txnID, s)
		return err
	case *ast.DeleteStmt:
		_, err := e.deleteLocked(txnID, s)
		return err
	default:
		return dberr.New(dberr.SemanticError, "trigger body must be INSERT, UPDATE, or DELETE")
	}
}
