package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/finsight/statement-pipeline/internal/api/middleware"
	"github.com/finsight/statement-pipeline/internal/consolidate"
	"github.com/finsight/statement-pipeline/internal/domain"
)

// GroupsHandler serves the statement-group endpoints.
type GroupsHandler struct {
	store        consolidate.GroupStore
	consolidator *consolidate.Consolidator
	log          zerolog.Logger
}

// NewGroupsHandler creates a new groups handler.
func NewGroupsHandler(store consolidate.GroupStore, consolidator *consolidate.Consolidator, log zerolog.Logger) *GroupsHandler {
	return &GroupsHandler{
		store:        store,
		consolidator: consolidator,
		log:          log,
	}
}

type createGroupRequest struct {
	UserID      string `json:"user_id"`
	GroupName   string `json:"group_name"`
	GroupType   string `json:"group_type"`
	ReferenceID string `json:"reference_id,omitempty"`
}

// CreateGroup handles POST /api/groups
func (h *GroupsHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.GroupName == "" {
		middleware.WriteError(w, http.StatusBadRequest, "group_name is required")
		return
	}

	groupType := domain.GroupType(req.GroupType)
	switch groupType {
	case domain.GroupTypeSingleAccount, domain.GroupTypeMultiAccount, domain.GroupTypeLoanApplication:
	case "":
		groupType = domain.GroupTypeSingleAccount
	default:
		middleware.WriteError(w, http.StatusBadRequest, "Invalid group_type")
		return
	}

	referenceID := req.ReferenceID
	if referenceID == "" {
		referenceID = fmt.Sprintf("GRP-%d", time.Now().UnixMilli())
	}

	now := time.Now()
	group := &domain.StatementGroup{
		GroupID:     uuid.NewString(),
		UserID:      req.UserID,
		GroupName:   req.GroupName,
		GroupType:   groupType,
		ReferenceID: referenceID,
		Status:      domain.GroupStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.store.CreateGroup(r.Context(), group); err != nil {
		h.log.Error().Err(err).Msg("Failed to create group")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to create group")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, group)
}

// GetGroup handles GET /api/groups/:groupId
func (h *GroupsHandler) GetGroup(w http.ResponseWriter, r *http.Request, groupID string) {
	group, err := h.store.GetGroup(r.Context(), groupID)
	if err != nil {
		if errors.Is(err, consolidate.ErrGroupNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Group not found")
			return
		}
		h.log.Error().Err(err).Str("group_id", groupID).Msg("Failed to get group")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get group")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, group)
}

type addMemberRequest struct {
	JobID             string  `json:"job_id"`
	AccountIdentifier string  `json:"account_identifier"`
	BankName          string  `json:"bank_name,omitempty"`
	AccountType       string  `json:"account_type,omitempty"`
	PeriodStart       string  `json:"period_start"` // YYYY-MM-DD
	PeriodEnd         string  `json:"period_end"`
	OpeningBalance    float64 `json:"opening_balance"`
	ClosingBalance    float64 `json:"closing_balance"`
}

// AddMember handles POST /api/groups/:groupId/members
func (h *GroupsHandler) AddMember(w http.ResponseWriter, r *http.Request, groupID string) {
	var req addMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.JobID == "" || req.AccountIdentifier == "" {
		middleware.WriteError(w, http.StatusBadRequest, "job_id and account_identifier are required")
		return
	}

	periodStart, err := civil.ParseDate(req.PeriodStart)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "period_start must be YYYY-MM-DD")
		return
	}
	periodEnd, err := civil.ParseDate(req.PeriodEnd)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "period_end must be YYYY-MM-DD")
		return
	}

	member := &domain.GroupMember{
		GroupID:           groupID,
		JobID:             req.JobID,
		AccountIdentifier: req.AccountIdentifier,
		BankName:          req.BankName,
		AccountType:       req.AccountType,
		PeriodStart:       periodStart,
		PeriodEnd:         periodEnd,
		OpeningBalance:    req.OpeningBalance,
		ClosingBalance:    req.ClosingBalance,
	}

	if err := h.store.AddMember(r.Context(), member); err != nil {
		switch {
		case errors.Is(err, consolidate.ErrGroupNotFound):
			middleware.WriteError(w, http.StatusNotFound, "Group not found")
		case errors.Is(err, consolidate.ErrMemberJobNotCompleted):
			middleware.WriteError(w, http.StatusConflict, "Job has not completed")
		default:
			h.log.Error().Err(err).Str("group_id", groupID).Msg("Failed to add member")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to add member")
		}
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, member)
}

// GetAnalysis handles GET /api/groups/:groupId/analysis. The analysis
// is recomputed on every call from the members' stored metadata.
func (h *GroupsHandler) GetAnalysis(w http.ResponseWriter, r *http.Request, groupID string) {
	analysis, err := h.consolidator.Consolidate(r.Context(), groupID)
	if err != nil {
		switch {
		case errors.Is(err, consolidate.ErrGroupNotFound):
			middleware.WriteError(w, http.StatusNotFound, "Group not found")
		case errors.Is(err, consolidate.ErrNoCompletedMembers):
			middleware.WriteError(w, http.StatusConflict, "Group has no completed members")
		default:
			h.log.Error().Err(err).Str("group_id", groupID).Msg("Failed to consolidate group")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to consolidate group")
		}
		return
	}

	middleware.WriteJSON(w, http.StatusOK, analysis)
}
