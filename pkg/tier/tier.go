// Package tier maps the continuous trust scalar onto the discrete trust
// tier table. The table is static, sorted, non-overlapping, and covers
// [0,1] with no gaps, so exactly one tier matches any trust value. Tiers
// are never stored; they are recomputed from trust on every read.
package tier

import "warden/pkg/protocol"

// Table returns the static tier table, lowest tier first.
func Table() []protocol.TrustTier {
	return []protocol.TrustTier{
		{
			Tier:         0,
			Name:         "observer",
			TrustMin:     0.0,
			TrustMax:     0.3,
			Capabilities: []string{"read_files", "draft_messages"},
			Permissions: []protocol.Permission{
				{Action: protocol.ActionFileRead, ResourcePattern: "**", Sandbox: true, DryRunSupported: true},
				{Action: protocol.ActionEmailDraft, ResourcePattern: "drafts/**", Sandbox: true, DryRunSupported: true},
			},
		},
		{
			Tier:         1,
			Name:         "assistant",
			TrustMin:     0.3,
			TrustMax:     0.6,
			Capabilities: []string{"read_files", "draft_messages", "write_files", "research"},
			Permissions: []protocol.Permission{
				{Action: protocol.ActionFileRead, ResourcePattern: "**"},
				{Action: protocol.ActionFileWrite, ResourcePattern: "workspace/**", Sandbox: true, DryRunSupported: true, RollbackStrategy: "checkpoint"},
				{Action: protocol.ActionDirectoryCreate, ResourcePattern: "workspace/**", Sandbox: true},
				{Action: protocol.ActionEmailDraft, ResourcePattern: "drafts/**"},
				{Action: protocol.ActionAutoResearch, ResourcePattern: "**", DryRunSupported: true},
				{Action: protocol.ActionMemoryAccess, ResourcePattern: "memory/**"},
			},
		},
		{
			Tier:     2,
			Name:     "collaborator",
			TrustMin: 0.6,
			TrustMax: 0.85,
			Capabilities: []string{
				"read_files", "draft_messages", "write_files", "research",
				"send_messages", "run_code", "query_data", "schedule", "backup",
			},
			Permissions: []protocol.Permission{
				{Action: protocol.ActionFileRead, ResourcePattern: "**"},
				{Action: protocol.ActionFileWrite, ResourcePattern: "**", RollbackStrategy: "checkpoint"},
				{Action: protocol.ActionFileMove, ResourcePattern: "**", RollbackStrategy: "checkpoint"},
				{Action: protocol.ActionDirectoryCreate, ResourcePattern: "**"},
				{Action: protocol.ActionEmailSend, ResourcePattern: "contacts/**", Conditions: []string{"known_recipient"}},
				{Action: protocol.ActionCodeExecute, ResourcePattern: "workspace/**", Sandbox: true, DryRunSupported: true},
				{Action: protocol.ActionDatabaseQuery, ResourcePattern: "db/**", DryRunSupported: true},
				{Action: protocol.ActionAPICall, ResourcePattern: "api/**", Conditions: []string{"allowlisted_host"}},
				{Action: protocol.ActionScheduleTask, ResourcePattern: "**"},
				{Action: protocol.ActionWorkflowAutomate, ResourcePattern: "workspace/**"},
				{Action: protocol.ActionBackupCreate, ResourcePattern: "**"},
			},
		},
		{
			Tier:     3,
			Name:     "partner",
			TrustMin: 0.85,
			TrustMax: 1.0,
			Capabilities: []string{
				"read_files", "draft_messages", "write_files", "research",
				"send_messages", "run_code", "query_data", "schedule", "backup",
				"delete_files", "system_commands", "heritage", "restore",
			},
			Permissions: []protocol.Permission{
				{Action: protocol.ActionFileDelete, ResourcePattern: "**", RollbackStrategy: "checkpoint"},
				{Action: protocol.ActionSystemCommand, ResourcePattern: "**", Conditions: []string{"explicit_approval"}, RollbackStrategy: "checkpoint"},
				{Action: protocol.ActionHeritageModify, ResourcePattern: "heritage/**", Conditions: []string{"explicit_approval"}, RollbackStrategy: "checkpoint"},
				{Action: protocol.ActionBackupRestore, ResourcePattern: "**", RollbackStrategy: "checkpoint"},
			},
		},
	}
}

// Resolve returns the tier whose range contains trust. The table invariant
// makes a miss unreachable, but resolution fails closed to the lowest tier
// rather than guessing upward.
func Resolve(trust float64) protocol.TrustTier {
	table := Table()
	top := len(table) - 1
	for i, tt := range table {
		if tt.Contains(trust, i == top) {
			return tt
		}
	}
	return table[0]
}

// Changed reports whether moving from oldTrust to newTrust crosses a tier
// boundary. Tier-change events fire only when this is true, not on every
// trust delta.
func Changed(oldTrust, newTrust float64) (protocol.TierChange, bool) {
	oldTier := Resolve(oldTrust)
	newTier := Resolve(newTrust)
	if oldTier.Tier == newTier.Tier {
		return protocol.TierChange{}, false
	}
	return protocol.TierChange{
		OldTier: oldTier.Tier,
		NewTier: newTier.Tier,
		Name:    newTier.Name,
		Trust:   newTrust,
	}, true
}
