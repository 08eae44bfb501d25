package snfix

import (
	"github.com/sirupsen/logrus"

	"github.com/sliverarmory/snfix/internal/metrics"
	"github.com/sliverarmory/snfix/sysprop"
)

// OverrideRule replaces the observed value of one property.
type OverrideRule struct {
	Name  string
	Value string
}

// DefaultRules reports a first API level of 25 (Android 7.1), which keeps
// hardware-backed attestation out of the integrity verdict.
var DefaultRules = []OverrideRule{
	{Name: "ro.product.first_api_level", Value: "25"},
}

// Filter rewrites property values on their way to a read callback. It holds
// no mutable state and is safe for concurrent use.
type Filter struct {
	rules []OverrideRule
	log   logrus.FieldLogger
}

// NewFilter returns a filter over a copy of rules. The first rule whose name
// matches exactly wins.
func NewFilter(log logrus.FieldLogger, rules ...OverrideRule) *Filter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Filter{rules: append([]OverrideRule(nil), rules...), log: log}
}

// Apply returns the value a reader of name should observe.
func (f *Filter) Apply(name, value string) (string, bool) {
	for _, rule := range f.rules {
		if rule.Name == name {
			return rule.Value, true
		}
	}
	return value, false
}

// Wrap returns a callback that forwards every read to cb, with the value
// replaced when a rule matches. cookie and serial pass through unchanged.
//
// Each read gets its own closure and cb is never stored, so concurrent
// readers cannot observe each other's callbacks.
func (f *Filter) Wrap(cb sysprop.Callback) sysprop.Callback {
	return func(cookie uintptr, name, value string, serial uint32) {
		if replaced, ok := f.Apply(name, value); ok {
			f.log.Debugf("Set %s to %s, original value: %s", name, replaced, value)
			metrics.PropertyOverrides.WithLabelValues(name).Inc()
			value = replaced
		}
		cb(cookie, name, value, serial)
	}
}

// Hook builds the replacement read entry point. original is consulted on
// every call and must return the entry point that was replaced.
func (f *Filter) Hook(original func() sysprop.ReadFunc) sysprop.ReadFunc {
	return func(pi *sysprop.PropInfo, cb sysprop.Callback, cookie uintptr) {
		original()(pi, f.Wrap(cb), cookie)
	}
}
