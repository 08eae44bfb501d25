package snfix

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sliverarmory/snfix/hook"
	"github.com/sliverarmory/snfix/payload"
	"github.com/sliverarmory/snfix/sysprop"
)

const (
	DefaultTargetPrefix    = "com.google.android.gms"
	DefaultPrimaryIdentity = "com.google.android.gms.unstable"
)

// Config is the static configuration of a Module. Zero fields fall back to
// the values of DefaultConfig.
type Config struct {
	// TargetPrefix selects the target process family, PrimaryIdentity the
	// single process that receives the payload. Both compare literally.
	TargetPrefix    string
	PrimaryIdentity string

	// Symbol is the read entry point the property filter is installed on.
	Symbol string
	Rules  []OverrideRule
	Entry  payload.EntryPoint

	// CompanionTimeout bounds each receive on the companion channel when
	// the channel supports deadlines; the deadline is renewed per read, so
	// it is not a bound on the whole transfer. Zero waits forever.
	CompanionTimeout time.Duration

	Runtime  payload.Runtime
	Resolver hook.Resolver
	Patcher  hook.Patcher[sysprop.ReadFunc]
	Logger   *logrus.Logger
}

func DefaultConfig() Config {
	return Config{
		TargetPrefix:    DefaultTargetPrefix,
		PrimaryIdentity: DefaultPrimaryIdentity,
		Symbol:          sysprop.ReadCallbackSymbol,
		Rules:           append([]OverrideRule(nil), DefaultRules...),
		Entry:           payload.DefaultEntryPoint,
		Runtime:         payload.NativeRuntime{},
		Resolver:        hook.ELFResolver{},
		Patcher:         hook.SlotPatcher[sysprop.ReadFunc]{},
		Logger:          logrus.StandardLogger(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TargetPrefix == "" {
		c.TargetPrefix = d.TargetPrefix
	}
	if c.PrimaryIdentity == "" {
		c.PrimaryIdentity = d.PrimaryIdentity
	}
	if c.Symbol == "" {
		c.Symbol = d.Symbol
	}
	if c.Rules == nil {
		c.Rules = d.Rules
	}
	if c.Entry.Class == "" || c.Entry.Method == "" {
		c.Entry = d.Entry
	}
	if c.Runtime == nil {
		c.Runtime = d.Runtime
	}
	if c.Resolver == nil {
		c.Resolver = d.Resolver
	}
	if c.Patcher == nil {
		c.Patcher = d.Patcher
	}
	if c.Logger == nil {
		c.Logger = d.Logger
	}
	return c
}
