package wire

// Tool describes a tool exposed by the gateway.
type Tool struct {
	Name         string                 `json:"name"`
	Description  string                 `json:"description,omitempty"`
	InputSchema  map[string]interface{} `json:"inputSchema"`
	OutputSchema map[string]interface{} `json:"outputSchema,omitempty"`
	Annotations  map[string]interface{} `json:"annotations,omitempty"`
}

// Resource describes a readable resource exposed by the gateway, such as a
// bill text or a legislator record.
type Resource struct {
	URI         string                 `json:"uri"`
	Name        string                 `json:"name,omitempty"`
	Description string                 `json:"description,omitempty"`
	MimeType    string                 `json:"mimeType,omitempty"`
	Annotations map[string]interface{} `json:"annotations,omitempty"`
}

// Prompt describes a prompt template exposed by the gateway.
type Prompt struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// PromptArgument describes a parameter of a prompt template.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// Entitlement is the subscription snapshot returned by the gateway at
// handshake time: the billing tier and the usage counters it meters
// tool calls against.
type Entitlement struct {
	Tier                string `json:"tier" mapstructure:"tier"`
	CallLimit           int64  `json:"callLimit" mapstructure:"callLimit"`
	CallsUsedThisPeriod int64  `json:"callsUsedThisPeriod" mapstructure:"callsUsedThisPeriod"`
}
