package ngsi

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/iotagent-ngsi/internal/device"
	"github.com/nerrad567/iotagent-ngsi/internal/infrastructure/config"
	"github.com/nerrad567/iotagent-ngsi/internal/security"
)

// Logger defines the logging interface used by the NGSI service.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Deps are the collaborators of a Service. Config is required; the rest
// are optional.
type Deps struct {
	Config *config.Config

	// Registry stores registered devices. Without one every operation that
	// touches the registry fails with ErrRegistryNotAvailable.
	Registry device.Registry

	// Broker defaults to a BrokerClient built from Config.
	Broker Broker

	// Tokens is required when authentication is enabled.
	Tokens security.TokenProvider

	Logger Logger
}

// Service sequences registrations, unregistrations and updates against the
// Context Broker and keeps the device registry in step with them.
//
// Each operation runs its stages in order and stops at the first failure,
// returning that failure unchanged. The registry is written only after the
// broker accepted a registration and is deleted from only after the broker
// accepted the expiry.
type Service struct {
	cfg      *config.Config
	registry device.Registry
	broker   Broker
	tokens   security.TokenProvider
	logger   Logger
	locks    *keyedMutex
}

var _ Agent = (*Service)(nil)

// New creates a Service.
func New(deps Deps) (*Service, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("%w: ngsi service needs a configuration", config.ErrBadConfiguration)
	}
	if deps.Config.Authentication.Enabled && deps.Tokens == nil {
		return nil, fmt.Errorf("%w: authentication is enabled but no token provider was given", config.ErrBadConfiguration)
	}

	s := &Service{
		cfg:      deps.Config,
		registry: deps.Registry,
		broker:   deps.Broker,
		tokens:   deps.Tokens,
		logger:   deps.Logger,
	}
	if s.logger == nil {
		s.logger = noopLogger{}
	}
	if s.broker == nil {
		bc := NewBrokerClient(deps.Config, nil)
		bc.SetLogger(s.logger)
		s.broker = bc
	}
	if deps.Config.SerializeDeviceOperations {
		s.locks = newKeyedMutex()
	}
	return s, nil
}

// Register registers a device in the broker and then stores it.
//
// Name defaults to the id. Missing service, subservice or lazy attributes
// are taken from the type configuration, failing with ErrTypeNotFound if
// the type is unknown.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*device.Device, error) {
	if s.registry == nil {
		s.logger.Error("register called without a device registry", "device_id", req.ID)
		return nil, ErrRegistryNotAvailable
	}

	d := &device.Device{
		ID:         req.ID,
		Type:       req.Type,
		Name:       req.Name,
		Service:    req.Service,
		Subservice: req.Subservice,
		Lazy:       req.Lazy,
		InternalID: req.InternalID,
	}
	if err := device.Validate(d); err != nil {
		return nil, err
	}
	if d.Name == "" {
		s.logger.Debug("device name not given, using id", "device_id", d.ID)
		d.Name = d.ID
	}

	defaults, err := ResolveTypeDefaults(d.ID, d.Type, d.Service, d.Subservice, d.Lazy, s.cfg.Types)
	if err != nil {
		s.logger.Debug("device type not found", "device_id", d.ID, "type", d.Type)
		return nil, err
	}
	d.Service, d.Subservice, d.Lazy = defaults.Service, defaults.Subservice, defaults.Lazy

	defer s.lock(d.ID)()

	resp, err := s.broker.SendRegistration(ctx, d)
	if err != nil {
		return nil, err
	}
	d.RegistrationID = resp.RegistrationID

	stored, err := s.registry.Store(ctx, d)
	if err != nil {
		s.logger.Error("device registered in broker but not stored",
			"device_id", d.ID, "registration_id", d.RegistrationID, "error", err)
		return nil, err
	}

	s.logger.Info("device registered",
		"device_id", stored.ID, "type", stored.Type, "registration_id", stored.RegistrationID)
	return stored, nil
}

// Unregister expires the device's broker registration and then removes it
// from the registry. If the broker refuses, the record is kept.
func (s *Service) Unregister(ctx context.Context, id, deviceType string) error {
	if s.registry == nil {
		s.logger.Error("unregister called without a device registry", "device_id", id)
		return ErrRegistryNotAvailable
	}

	defer s.lock(id)()

	d, err := s.registry.Get(ctx, id)
	if err != nil {
		return err
	}

	if d.Registered() {
		if _, err := s.broker.SendRegistration(ctx, d); err != nil {
			return err
		}
	} else {
		s.logger.Warn("device has no registration to expire", "device_id", id, "type", deviceType)
	}

	if err := s.registry.Remove(ctx, id); err != nil {
		return err
	}

	s.logger.Info("device unregistered", "device_id", id, "type", d.Type)
	return nil
}

// UpdateValue sends attribute values for a device to the broker.
//
// With authentication enabled the type's trust is exchanged for a token
// first; a type without a trust fails with ErrSecurityInformationMissing
// before any request is made. The registry is not consulted.
func (s *Service) UpdateValue(ctx context.Context, id, deviceType string, attrs []AttributeValue) (*UpdateResponse, error) {
	defer s.lock(id)()

	var token string
	if s.cfg.Authentication.Enabled {
		trust := s.cfg.Types[deviceType].Trust
		if trust == "" {
			return nil, securityInformationMissing(deviceType)
		}

		var err error
		token, err = s.tokens.GetToken(ctx, trust)
		if err != nil {
			return nil, err
		}
	}

	return s.broker.SendUpdate(ctx, id, deviceType, attrs, token)
}

// ListDevices returns every registered device.
func (s *Service) ListDevices(ctx context.Context) ([]device.Device, error) {
	if s.registry == nil {
		s.logger.Error("tried to list devices before a registry was available")
		return nil, ErrRegistryNotAvailable
	}
	return s.registry.List(ctx)
}

// GetDevice returns one registered device.
func (s *Service) GetDevice(ctx context.Context, id string) (*device.Device, error) {
	if s.registry == nil {
		s.logger.Error("tried to get a device before a registry was available", "device_id", id)
		return nil, ErrRegistryNotAvailable
	}
	return s.registry.Get(ctx, id)
}

// lock serialises operations on one device id when enabled and returns
// the matching unlock.
func (s *Service) lock(id string) func() {
	if s.locks == nil {
		return func() {}
	}
	return s.locks.lock(id)
}

// keyedMutex hands out one mutex per key and forgets it when the last
// holder or waiter is done.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()

	return func() {
		m.Unlock()

		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// size returns the number of keys currently held or waited on.
func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
