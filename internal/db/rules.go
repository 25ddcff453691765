package db

import (
	"context"
	"fmt"

	"cropwatch/internal/models"
)

// RulesByDevice fetches the rules of a device together with their criteria.
func (d *DB) RulesByDevice(ctx context.Context, devEUI string) ([]models.Rule, error) {
	var rules []models.Rule
	err := d.run(ctx, func(db querier) error {
		rows, err := db.Query(ctx, `SELECT id, name, dev_eui, COALESCE(is_triggered, false),
				COALESCE(trigger_count, 0), last_triggered
			FROM cw_rules WHERE dev_eui = $1 ORDER BY id`, devEUI)
		if err != nil {
			return err
		}
		defer rows.Close()

		byID := map[int64]int{}
		for rows.Next() {
			var r models.Rule
			if err := rows.Scan(&r.ID, &r.Name, &r.DevEUI, &r.IsTriggered, &r.TriggerCount, &r.LastTriggered); err != nil {
				return err
			}
			byID[r.ID] = len(rules)
			rules = append(rules, r)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if len(rules) == 0 {
			return nil
		}

		ids := make([]int64, 0, len(rules))
		for _, r := range rules {
			ids = append(ids, r.ID)
		}
		crows, err := db.Query(ctx, `SELECT rule_id, subject, operator, trigger_value, reset_value
			FROM cw_rule_criteria WHERE rule_id = ANY($1) ORDER BY id`, ids)
		if err != nil {
			return err
		}
		defer crows.Close()

		for crows.Next() {
			var ruleID int64
			var c models.RuleCriterion
			if err := crows.Scan(&ruleID, &c.Subject, &c.Operator, &c.TriggerValue, &c.ResetValue); err != nil {
				return err
			}
			if i, ok := byID[ruleID]; ok {
				rules[i].Criteria = append(rules[i].Criteria, c)
			}
		}
		return crows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get rules for %s: %w", devEUI, err)
	}
	return rules, nil
}

// UpdateRuleState persists the trigger state of a rule if it is still in
// the wasTriggered state. ok is false when another writer got there first.
func (d *DB) UpdateRuleState(ctx context.Context, r models.Rule, wasTriggered bool) (ok bool, err error) {
	err = d.run(ctx, func(db querier) error {
		tag, err := db.Exec(ctx, `UPDATE cw_rules
			SET is_triggered = $2, trigger_count = $3, last_triggered = $4
			WHERE id = $1 AND COALESCE(is_triggered, false) = $5`,
			r.ID, r.IsTriggered, r.TriggerCount, r.LastTriggered, wasTriggered)
		if err != nil {
			return err
		}
		ok = tag.RowsAffected() > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to update rule %d: %w", r.ID, err)
	}
	return ok, nil
}
