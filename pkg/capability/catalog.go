// Package capability holds the static capability catalogue: per-action-type
// trust thresholds, risk assessments, and the confirmation policy the ledger
// applies before approving an action. Everything here is read-only at
// runtime.
package capability

import "warden/pkg/protocol"

// trustThresholds maps each action type to the minimum trust required to
// run it unsupervised. Reads are cheap to grant; anything that can destroy
// data or touch the system sits near the top of the scale.
var trustThresholds = map[protocol.ActionType]float64{
	protocol.ActionFileRead:         0.1,
	protocol.ActionMemoryAccess:     0.2,
	protocol.ActionEmailDraft:       0.25,
	protocol.ActionFileWrite:        0.3,
	protocol.ActionDirectoryCreate:  0.3,
	protocol.ActionAutoResearch:     0.35,
	protocol.ActionScheduleTask:     0.4,
	protocol.ActionBackupCreate:     0.4,
	protocol.ActionDatabaseQuery:    0.5,
	protocol.ActionAPICall:          0.55,
	protocol.ActionFileMove:         0.55,
	protocol.ActionWorkflowAutomate: 0.6,
	protocol.ActionEmailSend:        0.65,
	protocol.ActionCodeExecute:      0.7,
	protocol.ActionFileDelete:       0.75,
	protocol.ActionBackupRestore:    0.8,
	protocol.ActionHeritageModify:   0.9,
	protocol.ActionSystemCommand:    0.95,
}

// defaultThreshold applies to action types missing from the table. Fails
// closed: unknown work requires near-total trust.
const defaultThreshold = 0.95

// TrustRequired returns the trust threshold for an action type.
func TrustRequired(t protocol.ActionType) float64 {
	if v, ok := trustThresholds[t]; ok {
		return v
	}
	return defaultThreshold
}

// highRisk marks the action types that always require confirmation
// regardless of trust.
var highRisk = map[protocol.ActionType]bool{
	protocol.ActionFileDelete:     true,
	protocol.ActionSystemCommand:  true,
	protocol.ActionCodeExecute:    true,
	protocol.ActionEmailSend:      true,
	protocol.ActionHeritageModify: true,
	protocol.ActionBackupRestore:  true,
}

// IsHighRisk reports whether the action type always needs confirmation.
func IsHighRisk(t protocol.ActionType) bool {
	return highRisk[t]
}

// RiskFor grades an action type for metadata purposes.
func RiskFor(t protocol.ActionType) protocol.RiskLevel {
	switch {
	case t == protocol.ActionSystemCommand || t == protocol.ActionHeritageModify:
		return protocol.RiskCritical
	case highRisk[t]:
		return protocol.RiskHigh
	case TrustRequired(t) >= 0.5:
		return protocol.RiskMedium
	default:
		return protocol.RiskLow
	}
}

// RequiresConfirmation implements the confirmation gate:
// high-risk types always confirm; below 0.6 trust everything confirms;
// below 0.8 trust everything but plain reads confirms.
func RequiresConfirmation(t protocol.ActionType, trust float64) bool {
	if IsHighRisk(t) {
		return true
	}
	if trust < 0.6 {
		return true
	}
	if trust < 0.8 && t != protocol.ActionFileRead {
		return true
	}
	return false
}

// Catalog returns the static capability contracts exposed on the
// introspection surface.
func Catalog() []protocol.CapabilityContract {
	return []protocol.CapabilityContract{
		{
			Name:              "file_access",
			Description:       "Read, write, move, and delete files inside the workspace.",
			ActionTypes:       []protocol.ActionType{protocol.ActionFileRead, protocol.ActionFileWrite, protocol.ActionFileMove, protocol.ActionFileDelete, protocol.ActionDirectoryCreate},
			SandboxRoot:       "workspace",
			DryRunAvailable:   true,
			RollbackAvailable: true,
			MinTrust:          0.1,
			Risk: protocol.RiskAssessment{
				DataRisk:           protocol.RiskMedium,
				SystemRisk:         protocol.RiskLow,
				PrivacyRisk:        protocol.RiskLow,
				RecoveryDifficulty: protocol.RiskLow,
				PotentialImpact:    []string{"data_loss"},
			},
		},
		{
			Name:              "messaging",
			Description:       "Draft and send messages on the user's behalf.",
			ActionTypes:       []protocol.ActionType{protocol.ActionEmailDraft, protocol.ActionEmailSend},
			DryRunAvailable:   true,
			RollbackAvailable: false,
			MinTrust:          0.25,
			Risk: protocol.RiskAssessment{
				DataRisk:           protocol.RiskLow,
				SystemRisk:         protocol.RiskLow,
				PrivacyRisk:        protocol.RiskHigh,
				RecoveryDifficulty: protocol.RiskCritical,
				PotentialImpact:    []string{"sent_message_cannot_be_recalled", "reputation"},
			},
		},
		{
			Name:              "execution",
			Description:       "Run code and system commands.",
			ActionTypes:       []protocol.ActionType{protocol.ActionCodeExecute, protocol.ActionSystemCommand},
			SandboxRoot:       "workspace",
			DryRunAvailable:   true,
			RollbackAvailable: true,
			MinTrust:          0.7,
			Risk: protocol.RiskAssessment{
				DataRisk:           protocol.RiskHigh,
				SystemRisk:         protocol.RiskCritical,
				PrivacyRisk:        protocol.RiskMedium,
				RecoveryDifficulty: protocol.RiskHigh,
				PotentialImpact:    []string{"system_damage", "data_loss"},
			},
		},
		{
			Name:              "data_access",
			Description:       "Query databases and call external APIs.",
			ActionTypes:       []protocol.ActionType{protocol.ActionDatabaseQuery, protocol.ActionAPICall},
			DryRunAvailable:   true,
			RollbackAvailable: false,
			MinTrust:          0.5,
			Risk: protocol.RiskAssessment{
				DataRisk:           protocol.RiskMedium,
				SystemRisk:         protocol.RiskLow,
				PrivacyRisk:        protocol.RiskMedium,
				RecoveryDifficulty: protocol.RiskMedium,
				PotentialImpact:    []string{"external_side_effects"},
			},
		},
		{
			Name:              "automation",
			Description:       "Research, schedule tasks, and automate workflows.",
			ActionTypes:       []protocol.ActionType{protocol.ActionAutoResearch, protocol.ActionScheduleTask, protocol.ActionWorkflowAutomate},
			DryRunAvailable:   true,
			RollbackAvailable: true,
			MinTrust:          0.35,
			Risk: protocol.RiskAssessment{
				DataRisk:           protocol.RiskLow,
				SystemRisk:         protocol.RiskLow,
				PrivacyRisk:        protocol.RiskLow,
				RecoveryDifficulty: protocol.RiskLow,
			},
		},
		{
			Name:              "memory",
			Description:       "Access the agent's long-term memory store.",
			ActionTypes:       []protocol.ActionType{protocol.ActionMemoryAccess},
			DryRunAvailable:   false,
			RollbackAvailable: true,
			MinTrust:          0.2,
			Risk: protocol.RiskAssessment{
				DataRisk:           protocol.RiskLow,
				SystemRisk:         protocol.RiskLow,
				PrivacyRisk:        protocol.RiskMedium,
				RecoveryDifficulty: protocol.RiskLow,
			},
		},
		{
			Name:              "heritage",
			Description:       "Modify the agent's own identity and heritage records.",
			ActionTypes:       []protocol.ActionType{protocol.ActionHeritageModify},
			DryRunAvailable:   false,
			RollbackAvailable: true,
			MinTrust:          0.9,
			Risk: protocol.RiskAssessment{
				DataRisk:           protocol.RiskCritical,
				SystemRisk:         protocol.RiskLow,
				PrivacyRisk:        protocol.RiskHigh,
				RecoveryDifficulty: protocol.RiskHigh,
				PotentialImpact:    []string{"identity_drift"},
			},
		},
		{
			Name:              "backup",
			Description:       "Create and restore backups of managed resources.",
			ActionTypes:       []protocol.ActionType{protocol.ActionBackupCreate, protocol.ActionBackupRestore},
			DryRunAvailable:   true,
			RollbackAvailable: true,
			MinTrust:          0.4,
			Risk: protocol.RiskAssessment{
				DataRisk:           protocol.RiskMedium,
				SystemRisk:         protocol.RiskMedium,
				PrivacyRisk:        protocol.RiskLow,
				RecoveryDifficulty: protocol.RiskMedium,
			},
		},
	}
}
