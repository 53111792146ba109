package ngsi

import (
	"github.com/nerrad567/iotagent-ngsi/internal/device"
	"github.com/nerrad567/iotagent-ngsi/internal/infrastructure/config"
)

// TypeDefaults is the tenant and lazy attribute set a device registers with.
type TypeDefaults struct {
	Service    string
	Subservice string
	Lazy       []device.Attribute
}

// ResolveTypeDefaults fills the fields the caller left unspecified from the
// configuration of deviceType. Supplied values always win.
//
// When everything is supplied the type is not looked up at all. Otherwise
// an unknown type fails with ErrTypeNotFound, even if only one field was
// missing.
func ResolveTypeDefaults(id, deviceType, service, subservice string, lazy []device.Attribute, types map[string]config.TypeConfig) (TypeDefaults, error) {
	resolved := TypeDefaults{Service: service, Subservice: subservice, Lazy: lazy}
	if service != "" && subservice != "" && lazy != nil {
		return resolved, nil
	}

	tc, ok := types[deviceType]
	if !ok {
		return TypeDefaults{}, typeNotFound(id, deviceType)
	}

	if resolved.Service == "" {
		resolved.Service = tc.Service
	}
	if resolved.Subservice == "" {
		resolved.Subservice = tc.Subservice
	}
	if resolved.Lazy == nil {
		resolved.Lazy = lazyAttributes(tc.Lazy)
	}
	return resolved, nil
}

// lazyAttributes converts configured attributes. The result is never nil.
func lazyAttributes(attrs []config.AttributeConfig) []device.Attribute {
	out := make([]device.Attribute, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, device.Attribute{Name: a.Name, Type: a.Type})
	}
	return out
}
