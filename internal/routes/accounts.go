package routes

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/daoledger/daoledger/internal/amount"
	"github.com/daoledger/daoledger/internal/apperr"
	"github.com/daoledger/daoledger/internal/engine"
	"github.com/daoledger/daoledger/internal/middleware"
)

type accountHandler struct {
	engine *engine.Engine
}

// RegisterAccountRoutes wires account, role, purchase and team endpoints.
func RegisterAccountRoutes(r fiber.Router, e *engine.Engine) {
	h := &accountHandler{engine: e}
	r.Get("/supply", h.supply)
	r.Get("/accounts", h.list)
	r.Post("/accounts", h.register)
	r.Get("/accounts/:id/balance", h.balance)
	r.Get("/accounts/:id/role", h.role)
	r.Put("/accounts/:id/role", h.assignRole)
	r.Get("/roles", h.roles)
	r.Post("/purchases", h.purchase)
	r.Get("/team", h.team)
	r.Post("/team", h.addTeamMember)
	r.Delete("/team/:id", h.removeTeamMember)
}

func (h *accountHandler) supply(c *fiber.Ctx) error {
	s, err := h.engine.Supply()
	if err != nil {
		return err
	}
	return c.JSON(s)
}

func (h *accountHandler) list(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"accounts": h.engine.Balances()})
}

func (h *accountHandler) register(c *fiber.Ctx) error {
	var req struct {
		Account string        `json:"account" validate:"omitempty,account_id"`
		Deposit amount.Amount `json:"deposit"`
	}
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.Account == "" {
		req.Account = middleware.CallerID(c)
	}
	refund, err := h.engine.RegisterAccount(c.UserContext(), middleware.CallerID(c), req.Account, req.Deposit)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"account": req.Account,
		"refund":  refund,
	})
}

func (h *accountHandler) balance(c *fiber.Ctx) error {
	id := c.Params("id")
	return c.JSON(fiber.Map{
		"account":    id,
		"balance":    h.engine.BalanceOf(id),
		"registered": h.engine.Registered(id),
	})
}

func (h *accountHandler) role(c *fiber.Ctx) error {
	id := c.Params("id")
	role, ok := h.engine.RoleOf(id)
	if !ok {
		return apperr.Newf(apperr.CodeAccountNotRegistered, "account %s has no role", id)
	}
	return c.JSON(engine.AccountRole{Account: id, Role: role})
}

func (h *accountHandler) assignRole(c *fiber.Ctx) error {
	var req struct {
		Role string `json:"role" validate:"required,role"`
	}
	if err := bind(c, &req); err != nil {
		return err
	}
	id := c.Params("id")
	if err := h.engine.AssignRole(c.UserContext(), middleware.CallerID(c), id, req.Role); err != nil {
		return err
	}
	role, _ := h.engine.RoleOf(id)
	return c.JSON(engine.AccountRole{Account: id, Role: role})
}

func (h *accountHandler) roles(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"roles": h.engine.Roles()})
}

func (h *accountHandler) purchase(c *fiber.Ctx) error {
	var req struct {
		Payment amount.Amount `json:"payment"`
	}
	if err := bind(c, &req); err != nil {
		return err
	}
	caller := middleware.CallerID(c)
	tokens, err := h.engine.Purchase(c.UserContext(), caller, req.Payment)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"account": caller,
		"tokens":  tokens,
		"balance": h.engine.BalanceOf(caller),
	})
}

func (h *accountHandler) team(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"members": h.engine.TeamMembers()})
}

func (h *accountHandler) addTeamMember(c *fiber.Ctx) error {
	var req struct {
		Account string `json:"account" validate:"required,account_id"`
	}
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.engine.AddTeamMember(c.UserContext(), middleware.CallerID(c), req.Account); err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"members": h.engine.TeamMembers()})
}

func (h *accountHandler) removeTeamMember(c *fiber.Ctx) error {
	if err := h.engine.RemoveTeamMember(c.UserContext(), middleware.CallerID(c), c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"members": h.engine.TeamMembers()})
}
