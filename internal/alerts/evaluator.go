// Package alerts evaluates device rules against canonical device records
// and records trigger and reset transitions.
package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cropwatch/internal/models"
	"cropwatch/internal/telemetry"
)

const TopicPrefix = "cropwatch/alerts/"

type State string

const (
	StateTriggered State = "triggered"
	StateReset     State = "reset"
)

type Store interface {
	RulesByDevice(ctx context.Context, devEUI string) ([]models.Rule, error)
	UpdateRuleState(ctx context.Context, r models.Rule, wasTriggered bool) (bool, error)
}

// Publisher sends alert notifications, typically over MQTT.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Transition is one rule changing state.
type Transition struct {
	RuleID       int64              `json:"rule_id"`
	RuleName     string             `json:"rule_name"`
	DevEUI       string             `json:"dev_eui"`
	State        State              `json:"state"`
	TriggerCount int                `json:"trigger_count"`
	At           time.Time          `json:"at"`
	Readings     map[string]float64 `json:"readings"`
}

type Evaluator struct {
	store     Store
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewEvaluator(store Store, publisher Publisher, logger *zap.Logger) *Evaluator {
	return &Evaluator{store: store, publisher: publisher, logger: logger, now: time.Now}
}

// WithClock replaces the evaluator's time source.
func (e *Evaluator) WithClock(now func() time.Time) *Evaluator {
	e.now = now
	return e
}

// Evaluate checks every rule of the device and persists transitions. A rule
// already triggered is not counted again until it has reset.
func (e *Evaluator) Evaluate(ctx context.Context, d models.Device) ([]Transition, error) {
	rules, err := e.store.RulesByDevice(ctx, d.ID)
	if err != nil {
		return nil, fmt.Errorf("evaluate alerts for %s: %w", d.ID, err)
	}

	var out []Transition
	for _, r := range rules {
		t, ok := e.evaluateRule(ctx, r, d)
		if ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (e *Evaluator) evaluateRule(ctx context.Context, r models.Rule, d models.Device) (Transition, bool) {
	log := e.logger.With(zap.Int64("rule_id", r.ID), zap.String("dev_eui", d.ID))
	if len(r.Criteria) == 0 {
		return Transition{}, false
	}

	triggered, reset, readings := false, true, map[string]float64{}
	for _, c := range r.Criteria {
		v, ok := Reading(d, c.Subject)
		if !ok {
			log.Debug("no reading for criterion", zap.String("subject", c.Subject))
			reset = false
			continue
		}
		readings[c.Subject] = v

		hit, err := Compare(v, c.Operator, c.TriggerValue)
		if err != nil {
			log.Warn("bad criterion", zap.Error(err))
			reset = false
			continue
		}
		triggered = triggered || hit

		back, _ := resetSatisfied(v, c.Operator, c.TriggerValue, c.ResetValue)
		reset = reset && back
	}

	was := r.IsTriggered
	now := e.now().UTC()
	switch {
	case !was && triggered:
		r.IsTriggered = true
		r.TriggerCount++
		r.LastTriggered = &now
	case was && reset:
		r.IsTriggered = false
	default:
		return Transition{}, false
	}

	ok, err := e.store.UpdateRuleState(ctx, r, was)
	if err != nil {
		log.Error("failed to persist rule state", zap.Error(err))
		return Transition{}, false
	}
	if !ok {
		log.Debug("rule state changed concurrently, skipping")
		return Transition{}, false
	}

	t := Transition{
		RuleID:       r.ID,
		RuleName:     r.Name,
		DevEUI:       d.ID,
		State:        StateReset,
		TriggerCount: r.TriggerCount,
		At:           now,
		Readings:     readings,
	}
	if r.IsTriggered {
		t.State = StateTriggered
	}
	log.Info("rule transition", zap.String("state", string(t.State)), zap.Int("trigger_count", t.TriggerCount))
	e.notify(ctx, t)
	return t, true
}

func (e *Evaluator) notify(ctx context.Context, t Transition) {
	if e.publisher == nil {
		return
	}
	payload, err := json.Marshal(t)
	if err != nil {
		return
	}
	if err := e.publisher.Publish(ctx, TopicPrefix+t.DevEUI, payload); err != nil {
		e.logger.Warn("failed to publish alert", zap.String("dev_eui", t.DevEUI), zap.Error(err))
	}
}

// Reading maps a criterion subject onto the canonical device. Temperature
// subjects are expressed in the unit their label implies. A reading the
// device did not report is missing, not zero.
func Reading(d models.Device, subject string) (float64, bool) {
	k := telemetry.Classify(subject)
	switch k.Category() {
	case telemetry.CategoryTemperature:
		if !d.Reported.Temperature {
			return 0, false
		}
		return telemetry.FromCelsius(k.Unit, d.TemperatureC), true
	case telemetry.CategoryHumidity:
		if !d.Reported.Humidity {
			return 0, false
		}
		return d.Humidity, true
	case telemetry.CategoryCO2:
		if d.CO2 == nil {
			return 0, false
		}
		return *d.CO2, true
	}
	return 0, false
}
