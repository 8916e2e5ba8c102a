package mqtt

import "fmt"

// Topic prefixes.
const (
	// TopicPrefixBridge is the base of the flat bridge scheme:
	// graylogic/{category}/{protocol}/{address}.
	TopicPrefixBridge = "graylogic"

	// TopicPrefixAdvisor is the base for all advisor topics.
	TopicPrefixAdvisor = "graylogic/advisor"
)

// Topics provides builders for the MQTT topics the advisor uses.
//
//	topics := mqtt.Topics{}
//	topics.ApprovalOutbound("family")
//	// Returns: "graylogic/advisor/approval/family/out"
type Topics struct{}

// BridgeState returns a bridge state topic, the usual source of live readings.
//
// Example: graylogic/state/modbus/battery
func (Topics) BridgeState(protocol, address string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefixBridge, protocol, address)
}

// AllBridgeStates matches every bridge state topic.
func (Topics) AllBridgeStates() string {
	return TopicPrefixBridge + "/state/+/+"
}

// AdvisorStatus is the retained online/offline status (also the LWT topic).
func (Topics) AdvisorStatus() string {
	return TopicPrefixAdvisor + "/status"
}

// AdvisorHealth is the retained periodic health report with run state.
func (Topics) AdvisorHealth() string {
	return TopicPrefixAdvisor + "/health"
}

// RunFlag is the retained boolean that requests an immediate analysis run.
func (Topics) RunFlag() string {
	return TopicPrefixAdvisor + "/run"
}

// ApprovalOutbound carries new approval batches to the chat bridge.
func (Topics) ApprovalOutbound(chatID string) string {
	return fmt.Sprintf("%s/approval/%s/out", TopicPrefixAdvisor, chatID)
}

// ApprovalEdit carries label edits for previously sent approval items.
func (Topics) ApprovalEdit(chatID string) string {
	return fmt.Sprintf("%s/approval/%s/edit", TopicPrefixAdvisor, chatID)
}

// ApprovalInbound carries callbacks and text replies from the chat bridge.
func (Topics) ApprovalInbound(chatID string) string {
	return fmt.Sprintf("%s/approval/%s/in", TopicPrefixAdvisor, chatID)
}

// ActionCommand is where dispatch handlers publish executed actions.
//
// Example: graylogic/advisor/command/water
func (Topics) ActionCommand(category string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefixAdvisor, category)
}

// Report carries the rendered daily report.
func (Topics) Report() string {
	return TopicPrefixAdvisor + "/report"
}
