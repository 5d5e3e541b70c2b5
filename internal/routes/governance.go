package routes

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/daoledger/daoledger/internal/amount"
	"github.com/daoledger/daoledger/internal/apperr"
	"github.com/daoledger/daoledger/internal/engine"
	"github.com/daoledger/daoledger/internal/governance"
	"github.com/daoledger/daoledger/internal/middleware"
)

type governanceHandler struct {
	engine *engine.Engine
}

// RegisterGovernanceRoutes wires proposal lifecycle and dividend endpoints.
func RegisterGovernanceRoutes(r fiber.Router, e *engine.Engine) {
	h := &governanceHandler{engine: e}
	r.Get("/proposals", h.list)
	r.Post("/proposals", h.create)
	r.Get("/proposals/:id", h.get)
	r.Post("/proposals/:id/votes", h.vote)
	r.Post("/proposals/:id/finalize", h.finalize)
	r.Post("/proposals/:id/execute", h.execute)
	r.Post("/dividends", h.dividends)
}

type proposalRequest struct {
	Title        string         `json:"title" validate:"required"`
	Description  string         `json:"description"`
	Link         string         `json:"link"`
	Tags         []string       `json:"tags"`
	Category     string         `json:"category"`
	Amount       *amount.Amount `json:"amount"`
	Target       string         `json:"target" validate:"omitempty,account_id"`
	Deadline     *time.Time     `json:"deadline"`
	RequiredRole string         `json:"required_role" validate:"omitempty,role"`
	Quorum       *amount.Amount `json:"quorum"`
}

func (r proposalRequest) draft() governance.Draft {
	return governance.Draft{
		Title:        r.Title,
		Description:  r.Description,
		Link:         r.Link,
		Tags:         r.Tags,
		Category:     r.Category,
		Amount:       r.Amount,
		Target:       r.Target,
		Deadline:     r.Deadline,
		RequiredRole: r.RequiredRole,
		Quorum:       r.Quorum,
	}
}

func proposalID(c *fiber.Ctx) (uint64, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return 0, apperr.Newf(apperr.CodeInvalidArgument, "invalid proposal id %q", c.Params("id"))
	}
	return id, nil
}

func (h *governanceHandler) list(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"proposals": h.engine.Proposals()})
}

func (h *governanceHandler) create(c *fiber.Ctx) error {
	var req proposalRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	p, err := h.engine.CreateProposal(c.UserContext(), middleware.CallerID(c), req.draft())
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(p)
}

func (h *governanceHandler) get(c *fiber.Ctx) error {
	id, err := proposalID(c)
	if err != nil {
		return err
	}
	p, err := h.engine.Proposal(id)
	if err != nil {
		return err
	}
	return c.JSON(p)
}

func (h *governanceHandler) vote(c *fiber.Ctx) error {
	id, err := proposalID(c)
	if err != nil {
		return err
	}
	var req struct {
		Support *bool `json:"support" validate:"required"`
	}
	if err := bind(c, &req); err != nil {
		return err
	}
	p, err := h.engine.Vote(c.UserContext(), middleware.CallerID(c), id, *req.Support)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(p)
}

func (h *governanceHandler) finalize(c *fiber.Ctx) error {
	id, err := proposalID(c)
	if err != nil {
		return err
	}
	p, err := h.engine.Finalize(c.UserContext(), middleware.CallerID(c), id)
	if err != nil {
		return err
	}
	return c.JSON(p)
}

func (h *governanceHandler) execute(c *fiber.Ctx) error {
	id, err := proposalID(c)
	if err != nil {
		return err
	}
	p, err := h.engine.Execute(c.UserContext(), middleware.CallerID(c), id)
	if err != nil {
		return err
	}
	return c.JSON(p)
}

func (h *governanceHandler) dividends(c *fiber.Ctx) error {
	var req struct {
		Pot amount.Amount `json:"pot"`
	}
	if err := bind(c, &req); err != nil {
		return err
	}
	plan, err := h.engine.Dividends(c.UserContext(), middleware.CallerID(c), req.Pot)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"pot": req.Pot, "payouts": plan})
}
