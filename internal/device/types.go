package device

// Attribute describes a lazy attribute: one whose value the Context Broker
// fetches on demand from the agent instead of having it pushed.
type Attribute struct {
	Name string `json:"name" bson:"name"`
	Type string `json:"type" bson:"type"`
}

// Device is a locally known device mirrored as an entity in the Context Broker.
//
// ID and Type are always set. RegistrationID is assigned by the broker on the
// first successful registration and is empty until then. Name is the NGSI
// entity id and defaults to ID.
type Device struct {
	ID             string      `json:"id" bson:"id"`
	Type           string      `json:"type" bson:"type"`
	Name           string      `json:"name" bson:"name"`
	Service        string      `json:"service" bson:"service"`
	Subservice     string      `json:"subservice" bson:"subservice"`
	Lazy           []Attribute `json:"lazy" bson:"lazy"`
	RegistrationID string      `json:"registrationId,omitempty" bson:"registrationId,omitempty"`
	InternalID     string      `json:"internalId,omitempty" bson:"internalId,omitempty"`
}

// Registered reports whether the broker has accepted a registration for the device.
func (d *Device) Registered() bool {
	return d.RegistrationID != ""
}

// DeepCopy creates an independent copy of the Device.
// The Lazy slice is cloned so modifications to the copy do not affect the
// original; nil stays nil.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d
	if d.Lazy != nil {
		cpy.Lazy = make([]Attribute, len(d.Lazy))
		copy(cpy.Lazy, d.Lazy)
	}
	return &cpy
}
