package management

import (
	"leaddesk_backend/internal/leads/domain"
	"leaddesk_backend/internal/leads/repository"
	"leaddesk_backend/internal/leads/transport"
)

func ToLeadResponse(lead repository.Lead) transport.LeadResponse {
	phones := lead.Phones
	if phones == nil {
		phones = []string{}
	}
	return transport.LeadResponse{
		ID:              lead.ID,
		FirstName:       lead.FirstName,
		LastName:        lead.LastName,
		Phone:           lead.Phone,
		Phones:          phones,
		Status:          transport.LeadStatus(lead.Status),
		AssignedAgentID: lead.AssignedAgentID,
		AssignedBy:      lead.AssignedBy,
		AssignedAt:      lead.AssignedAt,
		FeeEntries:      toFeeEntryResponses(lead.FeeEntries),
		ClaimTotal:      lead.ClaimSummary.Total,
		CreatedAt:       lead.CreatedAt,
		UpdatedAt:       lead.UpdatedAt,
	}
}

func toFeeEntryResponses(entries []domain.FeeEntry) []transport.FeeEntryResponse {
	out := make([]transport.FeeEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = transport.FeeEntryResponse{
			ID:           e.ID,
			Government:   e.Buckets.Government,
			Professional: e.Buckets.Professional,
			Stamp:        e.Buckets.Stamp,
			Other:        e.Buckets.Other,
			Total:        e.Buckets.Total(),
			Description:  e.Description,
			CreatedBy:    e.CreatedBy,
			CreatedAt:    e.CreatedAt,
		}
	}
	return out
}
