package types

// InstanceSettings is applied to a compute instance when it is created.
type InstanceSettings struct {
	InitialCredits    Credits           `json:"initial_credits"`
	ComputeAllocation *uint64           `json:"compute_allocation,omitempty"`
	MemoryAllocation  *uint64           `json:"memory_allocation,omitempty"`
	FreezingThreshold *uint64           `json:"freezing_threshold,omitempty"`
	MemoryLimit       *uint64           `json:"memory_limit,omitempty"`
	Environment       map[string]string `json:"environment,omitempty"`
}

// TemplateDefinition describes one registered contract template: a versioned
// binary image plus its deployment settings.
type TemplateDefinition struct {
	Name                string           `json:"name"`
	ShortDescription    string           `json:"short_description"`
	LongDescription     string           `json:"long_description,omitempty"`
	SourceURL           string           `json:"source_url"`
	SourceTag           string           `json:"source_tag"`
	BinaryHash          string           `json:"binary_hash"`
	ActivationRequired  bool             `json:"activation_required"`
	CertificateDuration int64            `json:"certificate_duration"`
	InstanceSettings    InstanceSettings `json:"instance_settings"`
	DocumentationURL    string           `json:"documentation_url,omitempty"`
	TermsOfUseURL       string           `json:"terms_of_use_url,omitempty"`
}

// ContractTemplate is a registered template with its lifecycle markers.
// Blocking a template destroys its binary; retiring only hides it from new
// deployments.
type ContractTemplate struct {
	ID               TemplateID         `json:"id"`
	Registrar        Principal          `json:"registrar"`
	Registered       int64              `json:"registered"`
	Definition       TemplateDefinition `json:"definition"`
	Blocked          *TimestampedText   `json:"blocked,omitempty"`
	Retired          *TimestampedText   `json:"retired,omitempty"`
	DeploymentsCount int                `json:"deployments_count"`
}

// Clone returns a deep copy of the template.
func (t *ContractTemplate) Clone() *ContractTemplate {
	cp := *t
	if t.Blocked != nil {
		b := *t.Blocked
		cp.Blocked = &b
	}
	if t.Retired != nil {
		r := *t.Retired
		cp.Retired = &r
	}
	if t.Definition.InstanceSettings.Environment != nil {
		env := make(map[string]string, len(t.Definition.InstanceSettings.Environment))
		for k, v := range t.Definition.InstanceSettings.Environment {
			env[k] = v
		}
		cp.Definition.InstanceSettings.Environment = env
	}
	return &cp
}

// UploadGrant allows one operator to stage a binary of the expected length
// before registering a template around it. At most one grant is in flight.
type UploadGrant struct {
	Operator     Principal `json:"operator"`
	BinaryLength int       `json:"binary_length"`
}
