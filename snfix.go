// Package snfix is the in-process half of a zygote injection module.
//
// A Module reacts to the specialization callbacks of its host framework.
// For the primary target process it fetches the payload from the privileged
// companion before specialization, then after specialization hooks the
// system property read entry point and activates the payload. Every other
// process releases the module straight away.
package snfix

import (
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/sliverarmory/snfix/companion"
	"github.com/sliverarmory/snfix/hook"
	"github.com/sliverarmory/snfix/internal/metrics"
	"github.com/sliverarmory/snfix/payload"
	"github.com/sliverarmory/snfix/sysprop"
)

// LogTag is the tag every log line of the module carries.
const LogTag = "SNFix/Zygisk"

var (
	ErrNoHost     = errors.New("snfix: module has no host")
	ErrOutOfOrder = errors.New("snfix: lifecycle callback out of order")
)

// Option is a request to the host framework.
type Option int

const (
	// DlcloseModuleLibrary unloads the module once the current callback
	// returns. It cannot be undone.
	DlcloseModuleLibrary Option = iota
	// ForceDenylistUnmount reverts the framework's mounts in this process.
	ForceDenylistUnmount
)

func (o Option) String() string {
	switch o {
	case DlcloseModuleLibrary:
		return "DLCLOSE_MODULE_LIBRARY"
	case ForceDenylistUnmount:
		return "FORCE_DENYLIST_UNMOUNT"
	default:
		return fmt.Sprintf("option(%d)", int(o))
	}
}

// Host is the injection framework as seen from inside the process.
type Host interface {
	SetOption(opt Option)
	// ConnectCompanion opens a channel to this module's companion process.
	ConnectCompanion() (io.ReadWriteCloser, error)
}

type AppSpecializeArgs struct {
	NiceName string
}

type State int

const (
	Unspecialized State = iota
	Classified
	Disengaged
	Fetched
	HookInstalling
	HookInstalled
	PayloadActivating
	Done
)

func (s State) String() string {
	switch s {
	case Unspecialized:
		return "unspecialized"
	case Classified:
		return "classified"
	case Disengaged:
		return "disengaged"
	case Fetched:
		return "fetched"
	case HookInstalling:
		return "hook-installing"
	case HookInstalled:
		return "hook-installed"
	case PayloadActivating:
		return "payload-activating"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type EventKind int

const (
	PreAppSpecialize EventKind = iota
	PostAppSpecialize
	PreServerSpecialize
)

// Event is one lifecycle callback, for driving a Module from a recorded or
// synthetic sequence.
type Event struct {
	Kind     EventKind
	NiceName string
}

type Module struct {
	cfg         Config
	host        Host
	log         *logrus.Entry
	filter      *Filter
	interceptor *hook.Interceptor[sysprop.ReadFunc]
	activator   *payload.Activator

	state    State
	identity string
	class    Classification
	payload  *payload.Buffer
	released bool
}

func New(cfg Config) *Module {
	cfg = cfg.withDefaults()
	log := cfg.Logger.WithField("tag", LogTag)
	return &Module{
		cfg:         cfg,
		log:         log,
		filter:      NewFilter(log, cfg.Rules...),
		interceptor: hook.NewInterceptor[sysprop.ReadFunc](cfg.Resolver, cfg.Patcher),
		activator: &payload.Activator{
			Runtime: cfg.Runtime,
			Entry:   cfg.Entry,
			Log:     log,
		},
	}
}

func (m *Module) OnLoad(host Host) {
	m.host = host
}

func (m *Module) State() State {
	return m.state
}

func (m *Module) Classification() Classification {
	return m.class
}

// Identity is the process name captured at specialization.
func (m *Module) Identity() string {
	return m.identity
}

func (m *Module) HookOutcome() hook.Outcome {
	return m.interceptor.Outcome()
}

// Handle dispatches ev to the matching lifecycle callback.
func (m *Module) Handle(ev Event) error {
	switch ev.Kind {
	case PreAppSpecialize:
		return m.PreAppSpecialize(AppSpecializeArgs{NiceName: ev.NiceName})
	case PostAppSpecialize:
		return m.PostAppSpecialize(AppSpecializeArgs{NiceName: ev.NiceName})
	case PreServerSpecialize:
		return m.PreServerSpecialize()
	default:
		return fmt.Errorf("snfix: unknown event kind %d", int(ev.Kind))
	}
}

// PreAppSpecialize classifies the process and, for the primary target,
// fetches the payload from the companion.
func (m *Module) PreAppSpecialize(args AppSpecializeArgs) error {
	if m.host == nil {
		return ErrNoHost
	}
	if m.state != Unspecialized {
		m.log.Warnf("preAppSpecialize in state %s ignored", m.state)
		return ErrOutOfOrder
	}

	m.identity = args.NiceName
	m.class = classify(m.identity, m.cfg.TargetPrefix, m.cfg.PrimaryIdentity)
	m.state = Classified
	metrics.Stage("classify", m.class.String())

	if m.class == NotTarget {
		m.disengage()
		return nil
	}

	m.host.SetOption(ForceDenylistUnmount)

	if m.class != TargetPrimary {
		m.disengage()
		return nil
	}

	buf, err := m.fetch()
	if err != nil {
		metrics.Stage("fetch", "error")
		m.log.WithError(err).Error("Error recv .dex data")
		m.disengage()
		return nil
	}
	metrics.Stage("fetch", "ok")
	m.payload = buf
	m.state = Fetched
	return nil
}

func (m *Module) fetch() (*payload.Buffer, error) {
	conn, err := m.host.ConnectCompanion()
	if err != nil {
		return nil, err
	}
	buf, err := companion.Fetch(conn, m.cfg.CompanionTimeout)
	if err != nil {
		return nil, err
	}
	if buf.Empty() {
		return nil, companion.ErrPayloadUnavailable
	}
	return buf, nil
}

// PostAppSpecialize installs the property filter and activates the fetched
// payload. It does nothing for processes that did not fetch one.
func (m *Module) PostAppSpecialize(args AppSpecializeArgs) error {
	switch m.state {
	case Fetched:
	case Classified, Disengaged:
		return nil
	default:
		m.log.Warnf("postAppSpecialize in state %s ignored", m.state)
		return ErrOutOfOrder
	}
	if args.NiceName != "" && args.NiceName != m.identity {
		m.log.Warnf("process renamed from %s to %s during specialization", m.identity, args.NiceName)
	}

	m.log.Debugf("Dex file size: %d", m.payload.Len())

	m.state = HookInstalling
	m.installHook()
	m.state = HookInstalled

	m.state = PayloadActivating
	buf := m.payload
	m.payload = nil
	err := m.activator.Activate(buf)
	m.state = Done
	if err != nil {
		metrics.Stage("activate", "error")
		m.log.WithError(err).Error("payload activation failed")
		return err
	}
	metrics.Stage("activate", "ok")
	return nil
}

func (m *Module) installHook() {
	replacement := m.filter.Hook(m.interceptor.Original)
	if err := m.interceptor.Install(m.cfg.Symbol, replacement); err != nil {
		metrics.Stage("hook", "error")
		m.log.WithError(err).Warnf("Couldn't hook %s", m.cfg.Symbol)
		m.log.Warn("Module will continue injecting the payload, but property spoofing is disabled")
		return
	}
	metrics.Stage("hook", "ok")
	if binding, ok := m.interceptor.Binding(); ok {
		m.log.Debugf("Got %s handle at %p", binding.Symbol, binding.Slot)
	}
}

// PreServerSpecialize releases the module; the system server is never a
// target.
func (m *Module) PreServerSpecialize() error {
	if m.host == nil {
		return ErrNoHost
	}
	m.payload.Release()
	m.payload = nil
	m.disengage()
	return nil
}

func (m *Module) disengage() {
	m.state = Disengaged
	if m.released {
		return
	}
	m.released = true
	m.host.SetOption(DlcloseModuleLibrary)
}
