package router

// Capability identifies which backend handles a message. The set is closed;
// routing never invents a label outside it.
type Capability string

const (
	CapabilityNL2SQL  Capability = "NL2SQL"
	CapabilityCodeGen Capability = "CODE_GEN"
	CapabilityChat    Capability = "CHAT"
)

// Classification is the routing decision for one message.
type Classification struct {
	Capability Capability
	Confidence float64
	Rationale  string
}

// ConversationContext carries the cross-turn state a handler may use. All
// fields are optional.
type ConversationContext struct {
	SessionID  string
	PriorTurns []Turn
	Metadata   map[string]string
}

// Turn is one prior exchange in the conversation.
type Turn struct {
	Role string
	Text string
}

// ResponseKind tells the caller how to present Text.
type ResponseKind string

const (
	ResponseTable ResponseKind = "TABLE"
	ResponseText  ResponseKind = "TEXT"
	ResponseError ResponseKind = "ERROR"
)

// Response is what the router returns for every message. Text is always
// populated, including on the error path.
type Response struct {
	Text           string
	Kind           ResponseKind
	UsedCapability Capability
	Confidence     float64
}
