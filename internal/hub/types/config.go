package types

// RateStrategyKind selects how the conversion rate is obtained when a
// deployment is created.
type RateStrategyKind string

const (
	RateFixed     RateStrategyKind = "fixed"
	RateAuthority RateStrategyKind = "authority"
)

// RateStrategy configures the conversion-rate source.
type RateStrategy struct {
	Kind            RateStrategyKind `json:"kind"`
	CreditsPerToken uint64           `json:"credits_per_token,omitempty"`
	Authority       Principal        `json:"authority,omitempty"`
}

// ConversionRate is the rate snapshot captured on a deployment record.
type ConversionRate struct {
	Kind             RateStrategyKind `json:"kind"`
	CreditsPerToken  uint64           `json:"credits_per_token"`
	TimestampSeconds int64            `json:"timestamp_seconds,omitempty"`
}

// ConvertStrategyKind selects the credit-conversion path.
type ConvertStrategyKind string

const (
	ConvertTopUp ConvertStrategyKind = "top_up"
	ConvertSkip  ConvertStrategyKind = "skip"
)

// ConvertStrategy configures whether transit funds are topped up through the
// credit authority or conversion is left to an external service.
type ConvertStrategy struct {
	Kind      ConvertStrategyKind `json:"kind"`
	Authority Principal           `json:"authority,omitempty"`
}

// CreateStrategyKind selects the instance-creation path.
type CreateStrategyKind string

const (
	CreateOverCreditAuthority CreateStrategyKind = "over_credit_authority"
	CreateOverProvisioner     CreateStrategyKind = "over_provisioner"
)

// CreateStrategy configures which authority creates compute instances.
type CreateStrategy struct {
	Kind      CreateStrategyKind `json:"kind"`
	Authority Principal          `json:"authority,omitempty"`
}

// HubConfig is the mutable runtime policy. It is read by handlers mid-saga,
// so changing it affects in-flight deployments (chunk size drift restarts
// uploads, strategy flips change the path taken at the next step).
type HubConfig struct {
	BinaryMaxSize         int      `json:"binary_max_size"`
	BinaryUploadChunkSize int      `json:"binary_upload_chunk_size"`
	InstanceURLPatterns   []string `json:"instance_url_patterns,omitempty"`

	IsDeploymentAvailable      bool   `json:"is_deployment_available"`
	DeploymentCreditsCost      uint64 `json:"deployment_credits_cost"`
	ExpensesBufferPermyriad    uint64 `json:"expenses_buffer_permyriad"`
	ExpensesDecimalPlaces      uint8  `json:"expenses_decimal_places"`
	AllowanceExpirationTimeout int64  `json:"allowance_expiration_timeout"`

	RateStrategy    RateStrategy    `json:"rate_strategy"`
	ConvertStrategy ConvertStrategy `json:"convert_strategy"`
	CreateStrategy  CreateStrategy  `json:"create_strategy"`

	FallbackAccount string `json:"fallback_account"`

	MaxHubEventsPerChunk        int `json:"max_hub_events_per_chunk"`
	MaxTemplatesPerChunk        int `json:"max_templates_per_chunk"`
	MaxDeploymentsPerChunk      int `json:"max_deployments_per_chunk"`
	MaxDeploymentEventsPerChunk int `json:"max_deployment_events_per_chunk"`

	NameMaxLength             int `json:"name_max_length"`
	ShortDescriptionMaxLength int `json:"short_description_max_length"`
	LongDescriptionMaxLength  int `json:"long_description_max_length"`
}

// DefaultHubConfig returns the policy used until an operator sets one.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		BinaryMaxSize:         64 << 20,
		BinaryUploadChunkSize: 1 << 20,

		IsDeploymentAvailable:      true,
		DeploymentCreditsCost:      1_000_000,
		ExpensesBufferPermyriad:    500,
		ExpensesDecimalPlaces:      4,
		AllowanceExpirationTimeout: 3_600_000,

		RateStrategy:    RateStrategy{Kind: RateFixed, CreditsPerToken: 30_000},
		ConvertStrategy: ConvertStrategy{Kind: ConvertSkip},
		CreateStrategy:  CreateStrategy{Kind: CreateOverProvisioner},

		MaxHubEventsPerChunk:        100,
		MaxTemplatesPerChunk:        100,
		MaxDeploymentsPerChunk:      100,
		MaxDeploymentEventsPerChunk: 100,

		NameMaxLength:             120,
		ShortDescriptionMaxLength: 500,
		LongDescriptionMaxLength:  5000,
	}
}

// AccessPermission is an administrative permission grantable per principal.
type AccessPermission string

const (
	PermissionManageAccessRights AccessPermission = "manage_access_rights"
	PermissionManageConfig       AccessPermission = "manage_config"
	PermissionManageTemplates    AccessPermission = "manage_templates"
	PermissionBlockTemplates     AccessPermission = "block_templates"
)

// AccessRight grants a principal a permission set. A nil Permissions slice
// grants everything.
type AccessRight struct {
	Caller      Principal           `json:"caller"`
	Permissions *[]AccessPermission `json:"permissions,omitempty"`
	Description string              `json:"description,omitempty"`
}

// HubEventKind tags administrative audit events.
type HubEventKind string

const (
	HubEventAccessRightsSet HubEventKind = "access_rights_set"
	HubEventConfigSet       HubEventKind = "config_set"
	HubEventTemplateAdded   HubEventKind = "template_added"
	HubEventTemplateBlocked HubEventKind = "template_blocked"
	HubEventTemplateRetired HubEventKind = "template_retired"
)

// HubEvent is one entry of the administrative audit log.
type HubEvent struct {
	ID           uint64        `json:"id"`
	Time         int64         `json:"time"`
	Caller       Principal     `json:"caller"`
	Kind         HubEventKind  `json:"kind"`
	TemplateID   *TemplateID   `json:"template_id,omitempty"`
	AccessRights []AccessRight `json:"access_rights,omitempty"`
	Config       *HubConfig    `json:"config,omitempty"`
}
