package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/SchoolPay/app/models"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/concepts"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/usercontext"
)

// ConceptController handles payment concept administration and eligibility.
type ConceptController struct {
	service *concepts.Service
}

func NewConceptController(service *concepts.Service) *ConceptController {
	return &ConceptController{service: service}
}

type createConceptRequest struct {
	Name             string          `json:"name" validate:"required,max=150"`
	Description      string          `json:"description" validate:"max=5000"`
	Amount           decimal.Decimal `json:"amount"`
	AppliesTo        string          `json:"applies_to" validate:"omitempty,oneof=all career semester career_semester students tag"`
	StartDate        string          `json:"start_date" validate:"required"`
	EndDate          *string         `json:"end_date"`
	UserIDs          []uint          `json:"user_ids"`
	CareerIDs        []uint          `json:"career_ids"`
	Semesters        []int           `json:"semesters"`
	ExceptionUserIDs []uint          `json:"exception_user_ids"`
	ApplicantTags    []string        `json:"applicant_tags" validate:"dive,max=100"`
}

type patchConceptRequest struct {
	Name             *string          `json:"name" validate:"omitempty,max=150"`
	Description      *string          `json:"description" validate:"omitempty,max=5000"`
	Amount           *decimal.Decimal `json:"amount"`
	AppliesTo        *string          `json:"applies_to" validate:"omitempty,oneof=all career semester career_semester students tag"`
	StartDate        *string          `json:"start_date"`
	EndDate          *string          `json:"end_date"`
	UserIDs          *[]uint          `json:"user_ids"`
	CareerIDs        *[]uint          `json:"career_ids"`
	Semesters        *[]int           `json:"semesters"`
	ExceptionUserIDs *[]uint          `json:"exception_user_ids"`
	ApplicantTags    *[]string        `json:"applicant_tags"`
}

type changeStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// HandleCreate creates a concept. POST /concepts
func (cc *ConceptController) HandleCreate(c *fiber.Ctx) error {
	var req createConceptRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, err)
	}
	start, err := parseDate("start_date", req.StartDate)
	if err != nil {
		return respondError(c, err)
	}

	concept := &models.PaymentConcept{
		Name:             req.Name,
		Description:      req.Description,
		Amount:           req.Amount,
		AppliesTo:        models.AppliesTo(req.AppliesTo),
		StartDate:        start,
		UserIDs:          req.UserIDs,
		CareerIDs:        req.CareerIDs,
		Semesters:        req.Semesters,
		ExceptionUserIDs: req.ExceptionUserIDs,
		ApplicantTags:    req.ApplicantTags,
	}
	if req.EndDate != nil && *req.EndDate != "" {
		end, err := parseDate("end_date", *req.EndDate)
		if err != nil {
			return respondError(c, err)
		}
		concept.EndDate = &end
	}

	if err := cc.service.Create(c.UserContext(), concept); err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(concept)
}

// HandlePatch applies a partial update. PATCH /concepts/:id
func (cc *ConceptController) HandlePatch(c *fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid concept id")
	}
	var req patchConceptRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, err)
	}

	patch := concepts.Patch{
		Name:             req.Name,
		Description:      req.Description,
		Amount:           req.Amount,
		UserIDs:          req.UserIDs,
		CareerIDs:        req.CareerIDs,
		Semesters:        req.Semesters,
		ExceptionUserIDs: req.ExceptionUserIDs,
		ApplicantTags:    req.ApplicantTags,
	}
	if req.AppliesTo != nil {
		a := models.AppliesTo(*req.AppliesTo)
		patch.AppliesTo = &a
	}
	if req.StartDate != nil {
		start, err := parseDate("start_date", *req.StartDate)
		if err != nil {
			return respondError(c, err)
		}
		patch.StartDate = &start
	}
	if req.EndDate != nil {
		end, err := parseDate("end_date", *req.EndDate)
		if err != nil {
			return respondError(c, err)
		}
		patch.EndDate = &end
	}

	updated, err := cc.service.Update(c.UserContext(), id, patch)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(updated)
}

// HandleGet returns one concept. GET /concepts/:id
func (cc *ConceptController) HandleGet(c *fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid concept id")
	}
	concept, err := cc.service.Get(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(concept)
}

// HandleChangeStatus moves a concept through its lifecycle.
// POST /concepts/:id/status
func (cc *ConceptController) HandleChangeStatus(c *fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid concept id")
	}
	var req changeStatusRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, err)
	}
	concept, err := cc.service.ChangeStatus(c.UserContext(), id, models.ConceptStatus(req.Status))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(concept)
}

// HandleEligibility resolves a concept for a user. Users may only ask about
// themselves; staff may ask about anyone.
// GET /concepts/:id/eligibility/:userID
func (cc *ConceptController) HandleEligibility(c *fiber.Ctx) error {
	conceptID, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid concept id")
	}
	userID, ok := parseIDParam(c, "userID")
	if !ok {
		return badRequest(c, "invalid user id")
	}
	if !usercontext.GetUserContext(c).CanSeeUser(userID) {
		return forbidden(c)
	}

	decision, err := cc.service.Eligibility(c.UserContext(), conceptID, userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"concept_id": conceptID,
		"user_id":    userID,
		"allowed":    decision.Allowed,
		"reason":     decision.Reason,
	})
}
